package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"prop-crawler/internal/geocode"
)

func init() {
	rootCmd.AddCommand(boundsCmd)
}

var boundsCmd = &cobra.Command{
	Use:   "bounds",
	Short: "Adds geocoded bounding boxes to every stored town.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.GeocodeAPIKey == "" {
			return errors.New("GEOCODE_API_KEY is required")
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		towns := a.towns()
		counties, err := towns.Counties(ctx)
		if err != nil {
			return fmt.Errorf("load counties: %w", err)
		}

		client := geocode.New(geocode.DefaultBaseURL, cfg.GeocodeAPIKey, 200*time.Millisecond)
		rows := make([][2]any, 0, len(counties))
		for _, county := range counties {
			if ctx.Err() != nil {
				break
			}
			updated, n := client.AddBounds(ctx, county)
			if err := towns.SaveCounty(ctx, updated); err != nil {
				return fmt.Errorf("save county %s: %w", county.County, err)
			}
			rows = append(rows, [2]any{county.County, fmt.Sprintf("%d/%d", n, len(county.Towns))})
		}
		renderCounts(cmd.OutOrStdout(), "Towns with bounds", rows)
		return ctx.Err()
	},
}
