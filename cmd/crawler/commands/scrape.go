package commands

import (
	"github.com/spf13/cobra"

	"prop-crawler/internal/scraper"
)

var scrapeMaxPages *int

func init() {
	scrapeMaxPages = scrapeCmd.Flags().Int("max-pages", 0, "Caps the number of search pages. Defaults to MAX_PAGES.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [--max-pages <n>]",
	Short: "Scrapes the search results and every listing's detail page into the properties collection.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		maxPages := cfg.MaxPages
		if *scrapeMaxPages > 0 {
			maxPages = *scrapeMaxPages
		}

		s, err := scraper.New(scraper.Config{
			SearchURL:     cfg.SearchURL,
			MaxPages:      maxPages,
			Workers:       cfg.ListingWorkers,
			MaxAttempts:   cfg.MaxAttempts,
			Strategy:      a.strategy,
			WriteBatch:    cfg.WriteBatch,
			ProgressEvery: cfg.ProgressEvery,
			RespectRobots: cfg.RespectRobots,
		}, a.fetcher, a.creds, a.domains, a.properties())
		if err != nil {
			return err
		}

		result, runErr := s.Run(ctx)
		if result != nil {
			out := cmd.OutOrStdout()
			renderLedger(out, "Search pages", result.Listings)
			renderLedger(out, "Detail pages", result.Details)
			renderCounts(out, "Properties", [][2]any{
				{"Found", result.Found},
				{"Skipped", result.Skipped},
				{"Saved", result.Saved},
			})
		}
		return runErr
	},
}
