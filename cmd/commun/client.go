package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Ankesh2004/go-commun/pkg/commun"
	"github.com/Ankesh2004/go-commun/pkg/endpoint"
)

func clientCmd() *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Connect to a server and send it requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			if remote != "" {
				cfg.Remote = remote
			}
			opts, reg := engineOptions(cfg)

			cb := commun.ClientCallbacks{
				Callbacks:   sharedCallbacks(),
				OnRspState:  func(s commun.State) { fmt.Printf("\n<<< server state: %s\n", s) },
				OnRspAssign: func(a commun.Answer) { fmt.Printf("\n<<< assignment answer: %s\n", a) },
				OnRspReport: func(name string) { fmt.Printf("\n<<< report received: %s\n", name) },
			}
			cli := commun.NewClient(opts, cb)

			if err := cli.Start(endpoint.Params{Type: cfg.TransportType(), Role: endpoint.Client, Remote: cfg.Remote}); err != nil {
				return err
			}
			defer cli.Stop()
			stopStatus := serveStatus(cfg.StatusAddr, statusRouter(reg, snapshot("client", cli.Engine)))
			defer stopStatus()

			commandLoop("client", os.Stdin, os.Stdout, clientCommands(cli))
			return nil
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "server address (default from config)")
	return cmd
}

func clientCommands(cli *commun.Client) map[string]command {
	cmds := engineCommands(cli.Engine)
	cmds["state"] = command{
		usage: "state",
		help:  "Ask the server for its state",
		run: func(args []string) error {
			if !cli.ReqState() {
				return refused("state request")
			}
			return nil
		},
	}
	cmds["assign"] = command{
		usage: "assign <file>",
		help:  "Send a file to the server",
		run: func(args []string) error {
			if err := needArgs(args, 1, "assign <file>"); err != nil {
				return err
			}
			if _, err := os.Stat(args[0]); err != nil {
				return err
			}
			if !cli.ReqAssign(args[0]) {
				return refused("assignment")
			}
			return nil
		},
	}
	cmds["report"] = command{
		usage: "report",
		help:  "Ask the server for its report",
		run: func(args []string) error {
			if !cli.ReqReport() {
				return refused("report request")
			}
			return nil
		},
	}
	cmds["interact"] = command{
		usage: "interact <file.json>",
		help:  "Send an interact request read from a JSON file",
		run: func(args []string) error {
			if err := needArgs(args, 1, "interact <file.json>"); err != nil {
				return err
			}
			in, err := readInteract(args[0])
			if err != nil {
				return err
			}
			return cli.ReqInteract(in)
		},
	}
	return cmds
}
