package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/server"
)

var (
	serveHost     string
	servePort     string
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the folio server",
	Long: `Start the folio HTTP server.

This starts the HTTP API, the job pool and, unless defra.url points at a
running node, the DefraDB container. When the server shuts down (via
Ctrl+C or SIGTERM) the managed container is stopped too. Jobs left
running by an earlier process are resumed at start.

Examples:
  folio serve                    # Start on the configured port (8080)
  folio serve --port 3000        # Start on custom port
  folio serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := getHome()
		if err != nil {
			return err
		}
		cfgMgr, err := loadConfig(h)
		if err != nil {
			return err
		}

		level := serveLogLevel
		if level == "" {
			level = cfgMgr.Get().Server.LogLevel
		}
		logger := newLogger(level)
		if f := cfgMgr.File(); f != "" {
			logger.Info("using config file", "path", f)
		}
		cfgMgr.WatchConfig(logger)

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Home:          h,
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: server.host)")
	serveCmd.Flags().StringVar(&servePort, "port", "", "Port to listen on (default: server.port)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "", "debug, info, warn or error (default: server.log_level)")

	rootCmd.AddCommand(serveCmd)
}
