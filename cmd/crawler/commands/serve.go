package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"prop-crawler/internal/proxy"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the image proxy and town price lookup over HTTP.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		var mediaDir string
		if cfg.Backend == "" || cfg.Backend == "fs" {
			mediaDir = cfg.Dir
		}
		handler := proxy.New(proxy.Config{MediaDir: mediaDir}, a.fetcher, a.creds, a.towns())
		srv := proxy.NewServer(cfg.ListenAddr, handler.Router())

		errs := make(chan error, 1)
		go func() {
			slog.InfoContext(ctx, "listening", "addr", cfg.ListenAddr)
			errs <- srv.ListenAndServe()
		}()

		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
		}

		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}
