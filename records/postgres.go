// Package records implements the relational record collaborator: a single
// best-effort UPDATE that rewrites a stored image URL after conversion.
package records

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
)

// Postgres updates image URL columns over a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database at dsn.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryRecord, "records.connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperrors.Wrap(apperrors.CategoryRecord, "records.ping", err)
	}
	return &Postgres{pool: pool}, nil
}

// UpdateImageURL rewrites one image URL column. Table and column names come
// from operator configuration, not user input, but are still quoted.
func (p *Postgres) UpdateImageURL(ctx context.Context, table, id, column, url string) error {
	query := fmt.Sprintf("UPDATE %s SET %s = $1 WHERE id = $2",
		pgx.Identifier{table}.Sanitize(),
		pgx.Identifier{column}.Sanitize(),
	)

	tag, err := p.pool.Exec(ctx, query, url, id)
	if err != nil {
		return apperrors.Transient("records.update", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.New(apperrors.CategoryRecord, "records.update",
			fmt.Errorf("no row with id %s in %s", id, table))
	}
	return nil
}

// ListImageAssets pulls every record with a non-empty image URL from the
// given table, producing the batch orchestrator's input.
func (p *Postgres) ListImageAssets(ctx context.Context, table, column, bucket, folder string, class core.ImageClass) ([]core.ImageAsset, error) {
	query := fmt.Sprintf("SELECT id::text, %s FROM %s WHERE %s IS NOT NULL AND %s <> ''",
		pgx.Identifier{column}.Sanitize(),
		pgx.Identifier{table}.Sanitize(),
		pgx.Identifier{column}.Sanitize(),
		pgx.Identifier{column}.Sanitize(),
	)

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		return nil, apperrors.Transient("records.list", err)
	}
	defer rows.Close()

	var assets []core.ImageAsset
	for rows.Next() {
		var id, src string
		if err := rows.Scan(&id, &src); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryRecord, "records.list.scan", err)
		}
		assets = append(assets, core.ImageAsset{
			RecordID:  id,
			Table:     table,
			Column:    column,
			SourceURL: src,
			Bucket:    bucket,
			Folder:    folder,
			Class:     class,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Transient("records.list.rows", err)
	}
	return assets, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() { p.pool.Close() }
