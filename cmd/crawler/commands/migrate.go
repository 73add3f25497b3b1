package commands

import (
	"github.com/spf13/cobra"

	"prop-crawler/internal/migrator"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate-images",
	Short: "Copies every property's listing images into our storage and records their new URLs.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sink, err := newSink(cfg.StorageConfig)
		if err != nil {
			return err
		}

		m := migrator.New(migrator.Config{
			PropertyWorkers: cfg.PropertyWorkers,
			ImageWorkers:    cfg.ImageWorkers,
			MaxAttempts:     cfg.MaxAttempts,
			Strategy:        a.strategy,
			ProgressEvery:   cfg.ProgressEvery,
		}, a.fetcher, a.creds, sink, a.properties())

		result, runErr := m.Run(ctx)
		if result != nil {
			out := cmd.OutOrStdout()
			renderLedger(out, "Properties", result.Properties)
			renderCounts(out, "Images", [][2]any{
				{"Uploaded", result.ImagesUploaded.Load()},
				{"Failed", result.ImagesFailed.Load()},
			})
		}
		return runErr
	},
}
