package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ankesh2004/go-commun/internal/config"
)

var (
	cfgFile   string
	transport string
	logLevel  string

	cfg *config.Config
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "commun",
		Short: "Point-to-point command link over TCP, WebSocket or Bluetooth",
		Long: `commun connects a client and a server node over a single transport
and lets them exchange state queries, file assignments, reports and
interact payloads. Large payloads and files are streamed in fragments.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			path := cfgFile
			if path == "" {
				path = config.DefaultPath()
			}
			var err error
			cfg, err = config.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if transport != "" {
				cfg.Transport = transport
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			level, _ := config.ParseLevel(cfg.LogLevel)
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.commun/config.yaml)")
	root.PersistentFlags().StringVarP(&transport, "transport", "t", "", "transport: tcp, websocket or bluetooth")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		serverCmd(),
		clientCmd(),
		rawCmd(),
		discoverCmd(),
	)
	return root
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
