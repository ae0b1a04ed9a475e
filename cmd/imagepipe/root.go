package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "imagepipe",
		Short: "WebP conversion pipeline for storefront images",
		Long: `imagepipe converts stored product, flavor, and category images to WebP:
it backs up originals, resizes within per-class bounds, uploads the
converted assets, rewrites database URLs, and scores conversion quality.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// Missing .env is fine; explicit environment wins regardless.
			_ = godotenv.Load()
		},
		SilenceUsage: true,
	}

	cmd.AddCommand(convertCmd())
	cmd.AddCommand(restoreCmd())
	cmd.AddCommand(cleanupCmd())
	cmd.AddCommand(statsCmd())
	return cmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
