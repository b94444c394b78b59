package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Ankesh2004/go-commun/pkg/endpoint"
	"github.com/Ankesh2004/go-commun/pkg/metrics"
	"github.com/Ankesh2004/go-commun/pkg/wire"
)

func rawCmd() *cobra.Command {
	var (
		listen bool
		addr   string
	)

	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Hex console that sends and prints bare frames",
		Long: `raw talks to a peer below the command protocol. Frames are sent as a
command code followed by an optional hex payload, for example:

  send 0x0001
  send 0x0003 48656c6c6f

Every valid incoming frame is printed the same way.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := prometheus.NewRegistry()
			log := slog.Default()
			ep := endpoint.New(endpoint.Options{
				Logger:       log,
				Metrics:      metrics.New(metrics.Options{Registry: reg}),
				Notify:       printRaw,
				NewTransport: newTransportFunc(cfg, log),
			})

			p := endpoint.Params{Type: cfg.TransportType(), Role: endpoint.Client, Remote: cfg.Remote}
			if listen {
				p = endpoint.Params{Type: cfg.TransportType(), Role: endpoint.Server, Addr: cfg.Addr}
			}
			if addr != "" {
				p.Addr, p.Remote = addr, addr
			}
			if err := ep.Start(p); err != nil {
				return err
			}
			defer ep.Stop()

			commandLoop("raw", os.Stdin, os.Stdout, map[string]command{
				"send": {
					usage: "send <cmd> [hex]",
					help:  "Send one frame",
					run:   func(args []string) error { return sendRaw(ep, args) },
				},
			})
			return nil
		},
	}

	cmd.Flags().BoolVarP(&listen, "listen", "l", false, "wait for a peer instead of dialing")
	cmd.Flags().StringVar(&addr, "addr", "", "address to listen on or dial (default from config)")
	return cmd
}

// printRaw dumps link events and drains incoming frames as hex.
func printRaw(ev endpoint.Event, info endpoint.EventInfo) {
	switch ev {
	case endpoint.Started:
		fmt.Printf("\n<<< started on %s\n", info.Addr)
	case endpoint.Connected:
		fmt.Printf("\n<<< connected to %s\n", info.Addr)
		go func(link *endpoint.Link) {
			for {
				f, ok := link.Recv()
				if !ok {
					return
				}
				fmt.Printf("\n<<< %s\n", formatFrame(f))
			}
		}(info.Link)
	case endpoint.Disconnected:
		fmt.Printf("\n<<< disconnected from %s\n", info.Addr)
	}
}

func formatFrame(f *wire.Frame) string {
	if len(f.Payload) == 0 {
		return f.Command.String()
	}
	return f.Command.String() + " " + hex.EncodeToString(f.Payload)
}

// parseFrame reads "<cmd> [hex...]". The command accepts 0x-prefixed hex or
// decimal. Payload words are concatenated.
func parseFrame(args []string) (*wire.Frame, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("missing command")
	}
	code, err := strconv.ParseInt(args[0], 0, 32)
	if err != nil || code < -1<<15 || code > 1<<16-1 {
		return nil, fmt.Errorf("bad command %q", args[0])
	}
	payload, err := hex.DecodeString(strings.Join(args[1:], ""))
	if err != nil {
		return nil, fmt.Errorf("bad payload: %w", err)
	}
	if len(payload) > wire.MaxDataSize {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(payload), wire.MaxDataSize)
	}
	return wire.New(wire.Command(int16(uint16(code))), payload), nil
}

func sendRaw(ep *endpoint.Endpoint, args []string) error {
	f, err := parseFrame(args)
	if err != nil {
		return err
	}
	if !ep.Send(f) {
		return refused("frame")
	}
	return nil
}
