package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ankesh2004/go-commun/pkg/p2p"
)

func discoverCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Listen for server announcements on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			if ip, err := p2p.LocalIP(); err == nil {
				fmt.Printf("Local address: %s\n", ip)
			}
			fmt.Printf("Listening for announcements on udp/%d...\n", cfg.DiscoveryPort)

			seen := make(map[string]bool)
			return p2p.Discover(ctx, cfg.DiscoveryPort, func(a p2p.Announcement) {
				key := a.Host + "@" + a.From
				if seen[key] {
					return
				}
				seen[key] = true
				fmt.Printf("  - %s from %s\n", a.Host, a.From)
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop after this long (default: until interrupted)")
	return cmd
}
