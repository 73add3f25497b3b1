package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"prop-crawler/internal/crawler"
	"prop-crawler/internal/fetch"
	"prop-crawler/internal/prices"
)

var pricesCounties *[]string

func init() {
	pricesCounties = pricesCmd.Flags().StringSlice("county", nil, "Scrapes only these counties. Defaults to all of them.")
	rootCmd.AddCommand(pricesCmd)
}

var pricesCmd = &cobra.Command{
	Use:   "prices [--county <name>...]",
	Short: "Scrapes median town prices per county into the town_prices collection.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		counties := prices.Counties
		if len(*pricesCounties) > 0 {
			counties = *pricesCounties
		}

		// The price site gets its own slower pacing than the listing site.
		polite := crawler.NewDomainManager(time.Second, 1, fetch.UserAgent)
		scraped := prices.NewScraper(prices.DefaultBaseURL, polite, polite).All(ctx, counties)

		towns := a.towns()
		rows := make([][2]any, 0, len(scraped))
		for _, county := range scraped {
			if err := towns.SaveCounty(ctx, county); err != nil {
				return fmt.Errorf("save county %s: %w", county.County, err)
			}
			rows = append(rows, [2]any{county.County, len(county.Towns)})
		}
		renderCounts(cmd.OutOrStdout(), "Towns per county", rows)
		return nil
	},
}
