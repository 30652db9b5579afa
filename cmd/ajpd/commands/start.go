package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/ajpd/internal/logger"
	ajpproto "github.com/marmos91/ajpd/internal/protocol/ajp"
	"github.com/marmos91/ajpd/pkg/config"
	"github.com/marmos91/ajpd/pkg/server"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the AJP server",
	Long: `Start the ajpd server in the foreground.

The server answers forwarded requests with a built-in echo handler that
reports the request line, headers and body it received. Send SIGINT or
SIGTERM to stop it gracefully.

Examples:
  # Start with the default config location
  ajpd start

  # Start with a custom config file
  ajpd start --config /etc/ajpd/config.yaml

  # Override settings with environment variables
  AJPD_ADAPTERS_AJP_PORT=8010 AJPD_LOGGING_LEVEL=DEBUG ajpd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	}

	adapters, err := config.CreateAdapters(cfg, ajpproto.EchoHandler{ServerName: "ajpd"}, metricsResult.AJPMetrics)
	if err != nil {
		return fmt.Errorf("failed to create adapters: %w", err)
	}

	srv := server.New(server.Config{StopTimeout: cfg.Server.ShutdownTimeout})
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			return fmt.Errorf("failed to add %s adapter: %w", a.Protocol(), err)
		}
	}

	logger.Info("ajpd starting", "version", Version, "commit", Commit)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("Server stopped")
	return nil
}
