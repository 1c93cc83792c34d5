// Rotelctl controls a receiver over its serial link.
//
// It sends named commands, selects sources and record outputs, programs the
// front panel labels and shows the live display. It can also list serial
// ports and find HTTP bridges started by rotel-server on the local network.
//
// Usage:
//
//	rotelctl [command] [flags]
//
// See 'rotelctl --help' for available commands.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rotelhex/rotelhex/internal/config"
	"github.com/rotelhex/rotelhex/internal/logging"
	"github.com/rotelhex/rotelhex/internal/rotel"
	"github.com/rotelhex/rotelhex/internal/ui"
	"github.com/rotelhex/rotelhex/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		ui.NewPrinter(os.Stderr).PrintError("rotelctl", err, troubleshooting(err))
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	serialPath string
	baudRate   int
	modelName  string
	logLevel   string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "rotelctl",
	Short: "Control a receiver over its serial link",
	Long: `A command line utility for receivers with a serial control port.

Sends commands, selects sources, programs the front panel labels and shows
the live display. Settings come from the config file (see 'rotelctl config
show'); flags override them for a single run.`,
	Version:       version.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			return logging.Initialize(logLevel)
		}
		return logging.InitializeFromEnv()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is the per-user config file)")
	rootCmd.PersistentFlags().StringVar(&serialPath, "port", "", "Serial port device (e.g. /dev/ttyUSB0)")
	rootCmd.PersistentFlags().IntVar(&baudRate, "baud", 0, "Serial baud rate")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "Built-in receiver model")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default is ROTEL_LOG_LEVEL or silent")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall time limit for one command")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rotelctl %s\n", version.Full())
	},
}

// troubleshooting returns hints for errors that come from the receiver link
func troubleshooting(err error) []string {
	var rerr *rotel.Error
	if !errors.As(err, &rerr) {
		return nil
	}
	return []string{rotel.GetTroubleshootingHint(err)}
}

// loadConfig reads the config file and applies the global flag overrides
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if serialPath != "" {
		cfg.Serial.Port = serialPath
	}
	if baudRate != 0 {
		cfg.Serial.BaudRate = baudRate
	}
	if modelName != "" {
		cfg.Receiver.Model = modelName
		cfg.Receiver.ModelFile = ""
	}
	return cfg, nil
}

// saveConfig writes cfg back to where it was loaded from
func saveConfig(cfg *config.Config) (string, error) {
	if configPath != "" {
		return configPath, cfg.SaveTo(configPath)
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return "", err
	}
	return path, cfg.Save()
}
