package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/krittin/tallyscan/internal/config"
	"github.com/krittin/tallyscan/internal/server"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tallyscan server",
	Long: `Start the tallyscan HTTP server.

The server provides:
  - POST /extract  - Extract ballot reports from uploaded page images
  - POST /feedback - Submit judgments correlated to a prior extraction
  - /health, /ready - Liveness and readiness checks

Configuration changes to extraction defaults are picked up without a
restart.

Examples:
  tallyscan serve                # Start on default port 8080
  tallyscan serve --port 3000    # Start on custom port
  tallyscan serve --host 0.0.0.0 # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Blocks until shutdown
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
