package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpserver "github.com/jefflab/macroscope/internal/interfaces/http"
	"github.com/jefflab/macroscope/internal/persistence/postgres"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		Long: `Serve the dashboard JSON API, the Prometheus metrics endpoint, and the
websocket refresh channel. Read-only and bound to localhost by default.`,
		RunE: runServe,
	}
	cmd.Flags().String("host", "", "Bind host (default: 127.0.0.1)")
	cmd.Flags().Int("port", 0, "Bind port (default: 8080 or HTTP_PORT)")
	cmd.Flags().String("archive-dsn", "", "PostgreSQL DSN for the price archive (empty: archiving disabled)")
	cmd.Flags().Duration("refresh", 5*time.Minute, "Websocket dashboard refresh interval")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, err := buildEngine(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if dsn, _ := cmd.Flags().GetString("archive-dsn"); dsn != "" {
		db, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		engine.WithArchive(postgres.NewPriceRepo(db, 30*time.Second))
		log.Info().Msg("price archive enabled")
	}

	config := httpserver.DefaultServerConfig()
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		config.Host = host
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		config.Port = port
	}
	if refresh, _ := cmd.Flags().GetDuration("refresh"); refresh > 0 {
		config.RefreshInterval = refresh
	}

	server, err := httpserver.NewServer(config, engine)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
