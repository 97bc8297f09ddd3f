package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/gamescope-dbus/internal/api"
	"github.com/bryanchriswhite/gamescope-dbus/internal/bus"
	"github.com/bryanchriswhite/gamescope-dbus/internal/engine"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
	"github.com/bryanchriswhite/gamescope-dbus/internal/window"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the property sync daemon",
	Long: `Connect to gamescope's primary XWayland display and the message bus,
expose the Manager and XWayland objects, and keep them in sync until
interrupted.

The daemon exits with a non-zero status if the X connection is lost or
stops responding for longer than discovery.hang_timeout.`,
	Example: `  # Run on the session bus against $DISPLAY
  gamescope-dbus serve

  # Run against a specific display with debug logging
  gamescope-dbus serve --display :1 --log-level debug

  # Run on the system bus
  gamescope-dbus serve --bus system`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	log := logger.WithComponent("serve")

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Bool("config_file", configMgr.Loaded()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	x11, err := window.NewX11Backend(cfg.Display, cfg.Discovery.CallTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to X11: %w", err)
	}

	dbusBackend, err := bus.NewDBusBackend(bus.Config{
		Type:        cfg.Bus.Type,
		Name:        cfg.Bus.Name,
		CallTimeout: cfg.Discovery.CallTimeout,
	})
	if err != nil {
		x11.Close()
		return err
	}

	eng := engine.New(x11, dbusBackend, engine.Options{
		DiscoveryInterval: cfg.Discovery.Interval,
		HangTimeout:       cfg.Discovery.HangTimeout,
	})
	dbusBackend.Attach(eng)

	if err := dbusBackend.Start(); err != nil {
		dbusBackend.Close()
		x11.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.API.Enabled {
		server := api.NewServer(eng, cfg.Discovery.CallTimeout)
		go func() {
			if err := server.Start(ctx, cfg.API.Listen); err != nil {
				logger.WithComponent("api").Error().Err(err).Msg("Status API stopped")
			}
		}()
	}

	log.Info().
		Str("backend", x11.Name()).
		Str("display", cfg.Display).
		Str("bus", cfg.Bus.Name).
		Msg("gamescope-dbus is running")

	runErr := eng.Run(ctx)

	log.Info().Msg("Shutting down")
	eng.Close()
	if err := dbusBackend.Close(); err != nil {
		log.Debug().Err(err).Msg("Failed to close bus connection")
	}
	if err := x11.Close(); err != nil {
		log.Debug().Err(err).Msg("Failed to close X connection")
	}

	if errors.Is(runErr, engine.ErrFatalConnectionLoss) {
		return fmt.Errorf("lost connection to gamescope: %w", runErr)
	}
	return runErr
}
