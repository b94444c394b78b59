package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

type command struct {
	usage string
	help  string
	run   func(args []string) error
}

// commandLoop runs the interactive terminal until exit or end of input.
func commandLoop(prompt string, in io.Reader, out io.Writer, cmds map[string]command) {
	reader := bufio.NewReader(in)
	fmt.Fprintln(out, ">>> Type 'help' for available commands.")

	for {
		fmt.Fprintf(out, "\n%s> ", prompt)
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if input == "" {
			if err != nil {
				return
			}
			continue
		}

		parts := strings.Fields(input)
		name := parts[0]
		args := parts[1:]

		switch name {
		case "help":
			fmt.Fprintln(out, "Available Commands:")
			names := make([]string, 0, len(cmds))
			for n := range cmds {
				names = append(names, n)
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintf(out, "  %-24s - %s\n", cmds[n].usage, cmds[n].help)
			}
			fmt.Fprintf(out, "  %-24s - %s\n", "exit", "Stop the node and exit")

		case "exit", "quit":
			return

		default:
			c, ok := cmds[name]
			if !ok {
				fmt.Fprintf(out, "Unknown command: %s. Type 'help' for info.\n", name)
				break
			}
			if err := c.run(args); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
			}
		}
		if err != nil {
			return
		}
	}
}

// needArgs reports a usage error when fewer than n args were given.
func needArgs(args []string, n int, usage string) error {
	if len(args) < n {
		return fmt.Errorf("missing argument. Usage: %s", usage)
	}
	return nil
}

func refused(what string) error {
	return fmt.Errorf("%s not sent: not connected", what)
}
