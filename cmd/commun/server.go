package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Ankesh2004/go-commun/pkg/commun"
	"github.com/Ankesh2004/go-commun/pkg/endpoint"
)

func serverCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Listen for a client and answer its requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.Addr = addr
			}
			opts, reg := engineOptions(cfg)

			cb := commun.ServerCallbacks{
				Callbacks:   sharedCallbacks(),
				OnReqState:  func() { fmt.Println("\n<<< state requested (answer with: state <ready|error|invalid>)") },
				OnReqAssign: func(name string) { fmt.Printf("\n<<< assigned file %s (answer with: assign <accept|reject>)\n", name) },
				OnReqReport: func() { fmt.Println("\n<<< report requested (answer with: report <file>)") },
			}
			srv := commun.NewServer(opts, cb)

			if err := srv.Start(endpoint.Params{Type: cfg.TransportType(), Role: endpoint.Server, Addr: cfg.Addr}); err != nil {
				return err
			}
			defer srv.Stop()
			stopStatus := serveStatus(cfg.StatusAddr, statusRouter(reg, snapshot("server", srv.Engine)))
			defer stopStatus()

			commandLoop("server", os.Stdin, os.Stdout, serverCommands(srv))
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func parseState(s string) (commun.State, error) {
	switch strings.ToLower(s) {
	case "ready":
		return commun.StateReady, nil
	case "error":
		return commun.StateError, nil
	case "invalid":
		return commun.StateInvalid, nil
	}
	return 0, fmt.Errorf("unknown state %q", s)
}

func parseAnswer(s string) (commun.Answer, error) {
	switch strings.ToLower(s) {
	case "accept", "yes":
		return commun.Accept, nil
	case "reject", "no":
		return commun.Reject, nil
	}
	return 0, fmt.Errorf("unknown answer %q", s)
}

func serverCommands(srv *commun.Server) map[string]command {
	cmds := engineCommands(srv.Engine)
	cmds["state"] = command{
		usage: "state <ready|error|invalid>",
		help:  "Answer a state request",
		run: func(args []string) error {
			if err := needArgs(args, 1, "state <ready|error|invalid>"); err != nil {
				return err
			}
			st, err := parseState(args[0])
			if err != nil {
				return err
			}
			if !srv.RspState(st) {
				return refused("state")
			}
			return nil
		},
	}
	cmds["assign"] = command{
		usage: "assign <accept|reject>",
		help:  "Answer an assigned file",
		run: func(args []string) error {
			if err := needArgs(args, 1, "assign <accept|reject>"); err != nil {
				return err
			}
			a, err := parseAnswer(args[0])
			if err != nil {
				return err
			}
			if !srv.RspAssign(a) {
				return refused("answer")
			}
			return nil
		},
	}
	cmds["report"] = command{
		usage: "report <file>",
		help:  "Send a report file to the client",
		run: func(args []string) error {
			if err := needArgs(args, 1, "report <file>"); err != nil {
				return err
			}
			if !srv.RspReport(args[0]) {
				return refused("report")
			}
			return nil
		},
	}
	cmds["interact"] = command{
		usage: "interact <file.json>",
		help:  "Send an interact response read from a JSON file",
		run: func(args []string) error {
			if err := needArgs(args, 1, "interact <file.json>"); err != nil {
				return err
			}
			in, err := readInteract(args[0])
			if err != nil {
				return err
			}
			return srv.RspInteract(in)
		},
	}
	return cmds
}

// engineCommands are available in both roles.
func engineCommands(e *commun.Engine) map[string]command {
	return map[string]command{
		"ping": {
			usage: "ping",
			help:  "Send a PING",
			run: func(args []string) error {
				if !e.SendCommand(commun.CmdPing) {
					return refused("ping")
				}
				return nil
			},
		},
		"status": {
			usage: "status",
			help:  "Show addresses and link state",
			run: func(args []string) error {
				fmt.Printf("Listen    : %s\n", e.Addr())
				fmt.Printf("Remote    : %s\n", e.RemoteAddr())
				fmt.Printf("Running   : %v\n", e.IsRunning())
				fmt.Printf("Connected : %v\n", e.IsConnected())
				fmt.Printf("Busy      : %v\n", e.Busy())
				return nil
			},
		},
		"disconnect": {
			usage: "disconnect",
			help:  "Drop the current peer",
			run: func(args []string) error {
				e.Disconnect()
				return nil
			},
		},
	}
}
