package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bryanchriswhite/gamescope-dbus/internal/config"
	"github.com/bryanchriswhite/gamescope-dbus/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "gamescope-dbus",
		Short: "gamescope-dbus - gamescope window properties over D-Bus",
		Long: `gamescope-dbus mirrors the properties gamescope keeps on its XWayland
windows onto D-Bus objects, and writes bus property changes back.

Objects:
  • Manager      compositor state on the root window
  • XWayland<N>  one object per XWayland server, appearing and
                 disappearing as gamescope starts and stops them

Bus clients read cached values, subscribe to PropertiesChanged and
set writable properties through org.freedesktop.DBus.Properties.`,
		SilenceUsage: true,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/gamescope-dbus/config.yaml)")
	rootCmd.PersistentFlags().String("display", "", "X display of gamescope's primary XWayland (default is $DISPLAY)")
	rootCmd.PersistentFlags().String("bus", "", "message bus to use (session or system)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable log output")

	// Bind flags to viper
	viper.BindPFlag("display", rootCmd.PersistentFlags().Lookup("display"))
	viper.BindPFlag("bus.type", rootCmd.PersistentFlags().Lookup("bus"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// loadConfig reads the effective configuration and initializes logging
// from it.
func loadConfig() (*config.Manager, error) {
	configMgr, err := config.NewManager(viper.GetViper(), cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	return configMgr, nil
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
