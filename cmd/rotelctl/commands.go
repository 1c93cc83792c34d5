package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rotelhex/rotelhex/internal/config"
	"github.com/rotelhex/rotelhex/internal/discovery"
	"github.com/rotelhex/rotelhex/internal/rotel"
	"github.com/rotelhex/rotelhex/internal/serialport"
	"github.com/rotelhex/rotelhex/internal/ui"
)

// Command flags
var (
	saveLabel   bool
	statusWait  time.Duration
	statusRaw   bool
	scanTimeout time.Duration
	scanName    string
)

func init() {
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(scanCmd)

	labelsCmd.AddCommand(labelsApplyCmd)
	labelsCmd.AddCommand(labelsListCmd)

	labelCmd.Flags().BoolVar(&saveLabel, "save", false, "Also store the label in the config file")
	statusCmd.Flags().DurationVar(&statusWait, "wait", 3*time.Second, "How long to wait for a display frame")
	statusCmd.Flags().BoolVar(&statusRaw, "raw", false, "Also print the decoded frame")
	scanCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long to listen for bridges")
	scanCmd.Flags().StringVar(&scanName, "instance", "", "Wait for the bridge with this instance name only")
}

// withClient loads the config, connects a client and runs fn with a context
// bounded by --timeout and interrupted by Ctrl+C
func withClient(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, c *rotel.Client) error) error {
	cfg, c, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, cfg, c)
}

// newClient builds an unconnected client. One-shot commands never power
// cycle on connect and retry a lost port at a fixed interval. tune adjusts
// the loaded config first.
func newClient(tune ...func(*config.Config)) (*config.Config, *rotel.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	for _, fn := range tune {
		fn(cfg)
	}
	c, err := cfg.NewClient(
		rotel.WithRestartOnConnect(false),
		rotel.WithTransportOptions(rotel.WithBackOff(rotel.ConstantBackOff(time.Second))),
	)
	if err != nil {
		return nil, nil, err
	}
	return cfg, c, nil
}

// capReadTimeout keeps a single blocking serial read from outlasting limit
func capReadTimeout(limit time.Duration) func(*config.Config) {
	return func(cfg *config.Config) {
		if limit > 0 && cfg.Serial.ReadTimeout > limit {
			cfg.Serial.ReadTimeout = limit
		}
	}
}

// linkParams describes the serial link for command headers
func linkParams(cfg *config.Config, c *rotel.Client) map[string]string {
	return map[string]string{
		"Port":  fmt.Sprintf("%s@%d", cfg.Serial.Port, cfg.Serial.BaudRate),
		"Model": c.Model().Name,
	}
}

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the commands the receiver model knows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		m, err := cfg.LoadModel()
		if err != nil {
			return err
		}

		p := ui.NewPrinter(nil)
		p.PrintList("commands ("+m.Name+")", m.Names())
		p.Newline()
		p.PrintList("source functions", m.Sources())
		p.Newline()
		p.PrintList("record functions", m.Records())
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send NAME...",
	Short: "Send one or more named commands",
	Long: `Send named commands in order, paced by the command gap.

Use 'rotelctl commands' to list the names the model knows.`,
	Example: `  # Turn the receiver on and raise the volume twice
  rotelctl send power_on volume_up volume_up`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, cfg *config.Config, c *rotel.Client) error {
			p := ui.NewPrinter(nil)
			p.PrintHeader("Send Commands", "rotelctl send "+strings.Join(args, " "), linkParams(cfg, c))
			for _, name := range args {
				if err := c.SendNamed(ctx, name); err != nil {
					return err
				}
			}
			p.PrintSuccess("Commands sent", map[string]string{"Commands": strings.Join(args, ", ")})
			return nil
		})
	},
}

var sourceCmd = &cobra.Command{
	Use:     "source FUNCTION",
	Short:   "Select the listening source",
	Example: `  rotelctl source cd`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, cfg *config.Config, c *rotel.Client) error {
			if err := c.SetSource(ctx, args[0]); err != nil {
				return err
			}
			ui.NewPrinter(nil).PrintSuccess("Source selected", map[string]string{"Source": args[0]})
			return nil
		})
	},
}

var recordCmd = &cobra.Command{
	Use:     "record FUNCTION",
	Short:   "Select the record output",
	Example: `  rotelctl record tape1`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, cfg *config.Config, c *rotel.Client) error {
			if err := c.SetRecord(ctx, args[0]); err != nil {
				return err
			}
			ui.NewPrinter(nil).PrintSuccess("Record output selected", map[string]string{"Record": args[0]})
			return nil
		})
	},
}

var labelCmd = &cobra.Command{
	Use:   "label FUNCTION TEXT",
	Short: "Program the front panel label of a source",
	Long: `Program the label the receiver shows for a source function.

The label is at most five characters, each of which must be in the
receiver's character map. Nothing is sent when the label is invalid.
An empty TEXT ("") clears the label.`,
	Example: `  rotelctl label cd DISC
  rotelctl label aux1 PC --save`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fn, text := args[0], args[1]
		return withClient(cmd, func(ctx context.Context, cfg *config.Config, c *rotel.Client) error {
			p := ui.NewPrinter(nil)
			params := linkParams(cfg, c)
			params["Function"] = fn
			params["Label"] = fmt.Sprintf("%q", text)
			p.PrintHeader("Set Label", "rotelctl label", params)

			if err := c.SetLabel(ctx, fn, text); err != nil {
				return err
			}

			details := map[string]string{"Function": fn, "Label": text}
			if saveLabel {
				cfg.SetLabel(fn, text)
				path, err := saveConfig(cfg)
				if err != nil {
					return fmt.Errorf("label set but not saved: %w", err)
				}
				details["Saved to"] = path
			}
			p.PrintSuccess("Label programmed", details)
			return nil
		})
	},
}

var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Work with the labels stored in the config file",
}

var labelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured labels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		p := ui.NewPrinter(nil)
		if len(cfg.Labels) == 0 {
			p.Println("No labels configured.")
			return nil
		}
		fns := make([]string, 0, len(cfg.Labels))
		for fn := range cfg.Labels {
			fns = append(fns, fn)
		}
		sort.Strings(fns)
		for _, fn := range fns {
			p.Println(fmt.Sprintf("  %-8s %q", fn, cfg.Labels[fn]))
		}
		return nil
	},
}

var labelsApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Program every configured label",
	Long: `Program every label from the config file's labels section.

All labels are checked before the first command is sent.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, cfg *config.Config, c *rotel.Client) error {
			p := ui.NewPrinter(nil)
			if len(cfg.Labels) == 0 {
				p.PrintWarning("Nothing to apply", map[string]string{"Hint": "add a labels section to the config file"})
				return nil
			}
			p.PrintHeader("Apply Labels", "rotelctl labels apply", linkParams(cfg, c))
			if err := c.ApplyLabels(ctx, cfg.Labels); err != nil {
				return err
			}
			p.PrintSuccess("Labels programmed", cfg.Labels)
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the front panel",
	Long: `Read one display frame from the receiver and show the front panel.

The receiver sends a frame whenever its display changes and periodically
while idle; --wait bounds how long to listen.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, c, err := newClient(capReadTimeout(statusWait))
		if err != nil {
			return err
		}
		defer c.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), statusWait)
		defer cancel()

		resps, err := c.Read(ctx, 1)
		if err != nil {
			return err
		}

		p := ui.NewPrinter(nil)
		if len(resps) == 0 {
			p.PrintWarning("No display frame received", map[string]string{
				"Port":   cfg.Serial.Port,
				"Waited": statusWait.String(),
			})
			return nil
		}
		p.PrintPanel(c.Display().Snapshot())
		if statusRaw {
			p.Println(resps[0].String())
		}
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Power cycle the receiver",
	Long: `Toggle power twice, waiting after each toggle, to put the receiver in a
known state.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, cfg *config.Config, c *rotel.Client) error {
			p := ui.NewPrinter(nil)
			p.PrintHeader("Restart", "rotelctl restart", linkParams(cfg, c))
			if err := c.Restart(ctx); err != nil {
				return err
			}
			p.PrintSuccess("Receiver restarted", map[string]string{"Power": c.Display().PowerState().String()})
			return nil
		})
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Show the live front panel",
	Long: `Show the front panel full screen and update it as the receiver's display
changes. Keys send common commands; press ? for the list.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, c, err := newClient()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		if err := c.Connect(ctx); err != nil {
			return fmt.Errorf("connect to %s: %w", cfg.Serial.Port, err)
		}
		defer c.Close()

		return ui.RunMonitor(c)
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serialport.ListPorts()
		if err != nil {
			return err
		}
		p := ui.NewPrinter(nil)
		if len(ports) == 0 {
			p.Println("No serial ports found.")
			return nil
		}
		p.PrintList("serial ports", ports)
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find rotel-server bridges on the network",
	Long: `Scan for HTTP bridges started by rotel-server using mDNS/DNS-SD.

With --instance the scan stops as soon as that bridge answers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if scanName != "" {
			fmt.Printf("Waiting for bridge %q (timeout: %s)...\n\n", scanName, scanTimeout)
			scanner := discovery.NewScanner()
			scanner.Timeout = scanTimeout
			b, err := scanner.WaitForBridge(cmd.Context(), scanName)
			if err != nil {
				return err
			}
			printBridge(1, b)
			return nil
		}

		fmt.Printf("Scanning for bridges (timeout: %s)...\n\n", scanTimeout)

		bridges, err := discovery.Scan(cmd.Context(), scanTimeout)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if len(bridges) == 0 {
			fmt.Println("No bridges found.")
			fmt.Println("\nTroubleshooting:")
			fmt.Println("  - Check that rotel-server is running with server.advertise enabled")
			fmt.Println("  - Multicast DNS must be allowed between the two hosts")
			fmt.Println("  - Try increasing --scan-timeout")
			return nil
		}

		fmt.Printf("Found %d bridge(s):\n\n", len(bridges))
		for i, b := range bridges {
			printBridge(i+1, b)
		}
		return nil
	},
}

func printBridge(n int, b *discovery.Bridge) {
	fmt.Printf("%d. %s\n", n, b.Instance)
	fmt.Printf("   URL:     %s\n", b.BaseURL())
	fmt.Printf("   Host:    %s\n", b.Hostname)
	if m := b.GetMetadata(discovery.TxtModel); m != "" {
		fmt.Printf("   Model:   %s\n", m)
	}
	if v := b.GetMetadata(discovery.TxtVersion); v != "" {
		fmt.Printf("   Version: %s\n", v)
	}
	fmt.Println()
}
