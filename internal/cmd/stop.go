package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/ipc"
)

var stopCommand = &cobra.Command{
	Use:     "stop <id>",
	GroupID: GroupDaemons,
	Short:   "Stop a running daemon",
	Args:    cobra.ExactArgs(1),
	RunE:    runStop,
}

func init() { rootCmd.AddCommand(stopCommand) }

func runStop(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Call(ctx, ipc.Request{Stop: &ipc.StopRequest{ID: args[0]}})
	if err != nil {
		return err
	}
	switch {
	case resp.Ok != nil:
		fmt.Printf("%s stopped\n", args[0])
	case resp.NotFound != nil:
		return fmt.Errorf("%s: not found", args[0])
	case resp.NotRunning != nil:
		fmt.Printf("%s not running\n", args[0])
	case resp.WasNotRunning != nil:
		fmt.Printf("%s was not running\n", args[0])
	case resp.StopFailed != nil:
		return fmt.Errorf("%s: stop failed: %s", args[0], resp.StopFailed.Message)
	default:
		return fmt.Errorf("unexpected response")
	}
	return nil
}
