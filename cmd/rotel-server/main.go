// Rotel-server bridges a receiver's serial link to HTTP.
//
// It keeps the receiver's front panel state current, exposes it and the
// command operations as a JSON API, streams display changes over a websocket
// and serves Prometheus metrics. The bridge announces itself over mDNS so
// 'rotelctl scan' can find it.
//
// Usage:
//
//	rotel-server serve [flags]
//
// See 'rotel-server serve --help' for available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rotelhex/rotelhex/internal/config"
	"github.com/rotelhex/rotelhex/internal/discovery"
	"github.com/rotelhex/rotelhex/internal/logging"
	"github.com/rotelhex/rotelhex/internal/metrics"
	"github.com/rotelhex/rotelhex/internal/rotel"
	"github.com/rotelhex/rotelhex/internal/server"
	"github.com/rotelhex/rotelhex/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if rotel.IsChannelUnavailable(err) || rotel.IsInvalidArgument(err) {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", rotel.GetTroubleshootingHint(err))
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rotel-server",
	Short: "HTTP and websocket bridge for a receiver",
	Long: `A standalone bridge between a receiver's serial control port and HTTP.

The bridge exposes the live front panel and the command operations as a JSON
API, pushes display changes to websocket clients and serves Prometheus
metrics on /metrics.

For one-off commands from a terminal, use 'rotelctl'.`,
	Version:       version.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// Serve command flags
var (
	configPath  string
	addr        string
	serialPath  string
	baudRate    int
	logLevel    string
	instance    string
	noAdvertise bool
	restart     bool
	applyLabels bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge",
	Long: `Connect to the receiver and start the HTTP bridge.

Settings come from the config file; flags override them. The bridge runs
until interrupted and shuts down gracefully on SIGINT or SIGTERM.`,
	Example: `  # Start with the config file settings
  rotel-server serve

  # Use a USB adapter and a different HTTP port
  rotel-server serve --port /dev/ttyUSB0 --addr :9090

  # Power cycle the receiver and program the configured labels on start
  rotel-server serve --restart --apply-labels --log-level debug`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "", "Config file (default is the per-user config file)")
	serveCmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (e.g. :8080)")
	serveCmd.Flags().StringVar(&serialPath, "port", "", "Serial port device")
	serveCmd.Flags().IntVar(&baudRate, "baud", 0, "Serial baud rate")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().StringVar(&instance, "instance", "", "mDNS instance name (default is the hostname)")
	serveCmd.Flags().BoolVar(&noAdvertise, "no-advertise", false, "Do not announce the bridge over mDNS")
	serveCmd.Flags().BoolVar(&restart, "restart", false, "Power cycle the receiver after connecting")
	serveCmd.Flags().BoolVar(&applyLabels, "apply-labels", false, "Program the configured labels after connecting")
}

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

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if serialPath != "" {
		cfg.Serial.Port = serialPath
	}
	if baudRate != 0 {
		cfg.Serial.BaudRate = baudRate
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if instance != "" {
		cfg.Server.Instance = instance
	}
	if noAdvertise {
		cfg.Server.Advertise = false
	}
	if restart {
		cfg.Receiver.RestartOnConnect = true
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// The bridge is a service: log at info unless told otherwise
	level := cfg.Logging.Level
	if level == "" && os.Getenv(logging.LogLevelEnvVar) == "" {
		level = "info"
	}
	if err := logging.InitializeWithFile(level, cfg.Logging.File); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	client, err := cfg.NewClient(rotel.WithClientRecorder(m), rotel.WithObservers(m))
	if err != nil {
		return err
	}

	logging.Info("Connecting to receiver",
		zap.String("port", cfg.Serial.Port),
		zap.Int("baud", cfg.Serial.BaudRate),
		zap.String("model", client.Model().Name),
	)
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = client.Connect(connectCtx)
	cancel()
	if err != nil {
		return err
	}
	defer client.Close()

	if applyLabels && len(cfg.Labels) > 0 {
		if err := client.ApplyLabels(ctx, cfg.Labels); err != nil {
			logging.Warn("Failed to apply configured labels", zap.Error(err))
		} else {
			logging.Info("Applied configured labels", zap.Int("count", len(cfg.Labels)))
		}
	}

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
	}, client, server.WithMetrics(reg, m))

	ln, err := srv.Listen()
	if err != nil {
		return err
	}

	if cfg.Server.Advertise {
		adv, err := advertise(cfg, client, server.Port(ln.Addr()))
		if err != nil {
			logging.Warn("mDNS advertisement failed, continuing without it", zap.Error(err))
		}
		defer adv.Shutdown()
	}

	return srv.Serve(ctx, ln)
}

func advertise(cfg *config.Config, client *rotel.Client, port int) (*discovery.Advertisement, error) {
	name := cfg.Server.Instance
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("no instance name configured and hostname unavailable: %w", err)
		}
		name = host
	}
	return discovery.Advertise(name, port, map[string]string{
		discovery.TxtModel:   client.Model().Name,
		discovery.TxtPort:    cfg.Serial.Port,
		discovery.TxtVersion: version.Version,
		discovery.TxtAPI:     "/api",
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("rotel-server %s\n", version.Full())
	},
}
