package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	imagepipeline "github.com/dulceflor/image-pipeline"
	"github.com/dulceflor/image-pipeline/batch"
	"github.com/dulceflor/image-pipeline/config"
	"github.com/dulceflor/image-pipeline/core"
	"github.com/dulceflor/image-pipeline/hooks"
)

// classTargets maps each image class to the table/column/folder the
// storefront stores it under.
var classTargets = []struct {
	class  core.ImageClass
	table  string
	column string
	folder string
}{
	{core.ClassProducts, "products", "image_url", "products"},
	{core.ClassFlavors, "flavors", "image_url", "flavors"},
	{core.ClassCategories, "categories", "banner_url", "categories"},
}

func convertCmd() *cobra.Command {
	var dryRun bool
	var classFilter string
	var presetsFile string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert all stored images to WebP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings := config.FromEnv()
			if err := settings.Validate(); err != nil {
				// Setup failures are the only nonzero exits.
				return err
			}

			logger := hooks.NewSlogLogger(newLogger())
			metrics := hooks.NewPrometheusMetrics(prometheus.NewRegistry())

			audit, err := batch.OpenAuditLog(settings.LogDir, uuid.NewString()[:8])
			if err != nil {
				return err
			}
			defer audit.Close()

			svc, err := imagepipeline.New(cmd.Context(), settings, logger, metrics, audit)
			if err != nil {
				return err
			}
			defer svc.Close()

			overrides, err := config.LoadOverrides(presetsFile)
			if err != nil {
				return err
			}
			svc.Orchestrator.SetPresets(func(class core.ImageClass) (config.ProcessingConfig, error) {
				base, err := config.ForClass(class)
				if err != nil {
					return base, err
				}
				return overrides.Apply(base)
			})

			var assets []core.ImageAsset
			for _, target := range classTargets {
				if classFilter != "" && classFilter != string(target.class) {
					continue
				}
				found, err := svc.ListAssets(cmd.Context(), target.table, target.column, target.folder, target.class)
				if err != nil {
					return err
				}
				assets = append(assets, found...)
			}

			if dryRun {
				fmt.Fprintf(os.Stdout, "dry run: %d assets found\n", len(assets))
				return nil
			}

			report, err := svc.Run(cmd.Context(), assets)
			if report != nil {
				printSummary(report)
			}
			// Partial item failures still exit 0; only a cancelled run
			// propagates.
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list conversion candidates without converting")
	cmd.Flags().StringVar(&classFilter, "class", "", "restrict to one image class (products|flavors|categories)")
	cmd.Flags().StringVar(&presetsFile, "presets", "presets.yaml", "YAML file with per-class preset overrides")
	return cmd
}

func printSummary(report *batch.Report) {
	fmt.Fprintf(os.Stdout, "run %s finished in %s\n",
		report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(os.Stdout, "  total:     %d\n", report.Stats.TotalImages)
	fmt.Fprintf(os.Stdout, "  converted: %d\n", report.Stats.Converted)
	fmt.Fprintf(os.Stdout, "  skipped:   %d\n", report.Stats.Skipped)
	fmt.Fprintf(os.Stdout, "  errors:    %d\n", report.Stats.Errors)
	fmt.Fprintf(os.Stdout, "  saved:     %.1f KiB\n", float64(report.Stats.SizeSaved)/1024)
}
