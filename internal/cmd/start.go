package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/ipc"
)

var startForce bool

// startCommand is the runtime counterpart to the config file's
// `boot_start`: it resolves the requested daemons' `depends` through the
// supervisor's dependency graph and starts each level in order, instead of
// requiring the caller to re-type the daemon's command the way `run` does.
// With no ids given it starts every daemon declared in the config file.
var startCommand = &cobra.Command{
	Use:     "start [id...]",
	GroupID: GroupDaemons,
	Short:   "Start one or more config-declared daemons, resolving dependencies first",
	RunE:    runStart,
}

func init() {
	startCommand.Flags().BoolVar(&startForce, "force", false, "restart daemons that are already running")
	rootCmd.AddCommand(startCommand)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Call(ctx, ipc.Request{Start: &ipc.StartRequest{IDs: args, Force: startForce}})
	if err != nil {
		return err
	}
	if resp.Invalid != nil {
		return fmt.Errorf("invalid request: %s", resp.Invalid.Error)
	}
	if resp.Started == nil {
		return fmt.Errorf("unexpected response")
	}

	var failed bool
	for _, r := range resp.Started.Results {
		switch r.Outcome {
		case "skipped":
			fmt.Printf("%s skipped (disabled)\n", r.ID)
		case "failed_with_code":
			failed = true
			fmt.Printf("%s failed: %s\n", r.ID, r.Error)
		case "stop_failed":
			failed = true
			fmt.Printf("%s: stopping prior instance failed: %s\n", r.ID, r.Error)
		default:
			pid := 0
			if r.Record != nil {
				pid = r.Record.PID
			}
			fmt.Printf("%s %s (pid %d)\n", r.ID, r.Outcome, pid)
		}
	}
	if failed {
		return fmt.Errorf("one or more daemons failed to start")
	}
	return nil
}
