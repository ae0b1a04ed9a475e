package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	imagepipeline "github.com/dulceflor/image-pipeline"
	"github.com/dulceflor/image-pipeline/config"
	"github.com/dulceflor/image-pipeline/hooks"
)

func restoreCmd() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "restore <backup-path>",
		Short: "Restore a backed-up original to its recovered path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			result := svc.Restore(cmd.Context(), args[0], target)
			if !result.Success {
				return fmt.Errorf("restore failed: %s", result.Error)
			}
			fmt.Fprintf(os.Stdout, "restored %s\n%s\n", result.RestoredPath, result.PublicURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "explicit destination path (defaults to the recovered original path)")
	return cmd
}

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete backups older than the configured retention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			result := svc.Cleanup(cmd.Context())
			fmt.Fprintf(os.Stdout, "removed %d backups\n", result.Removed)
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stderr, "  %s\n", e)
			}
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Report the backup inventory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := newService(cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			stats, err := svc.BackupStats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "backups: %d (%.1f KiB)\n", stats.TotalBackups, float64(stats.TotalBytes)/1024)
			if stats.TotalBackups > 0 {
				fmt.Fprintf(os.Stdout, "oldest:  %s\nnewest:  %s\n", stats.Oldest, stats.Newest)
			}
			return nil
		},
	}
}

func newService(cmd *cobra.Command) (*imagepipeline.Service, error) {
	settings := config.FromEnv()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	logger := hooks.NewSlogLogger(newLogger())
	return imagepipeline.New(cmd.Context(), settings, logger, nil, nil)
}
