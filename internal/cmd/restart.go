package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/ipc"
)

var restartForce bool

var restartCommand = &cobra.Command{
	Use:     "restart <id>",
	GroupID: GroupDaemons,
	Short:   "Stop then restart a daemon using its persisted command and options",
	Args:    cobra.ExactArgs(1),
	RunE:    runRestart,
}

func init() {
	restartCommand.Flags().BoolVar(&restartForce, "force", false, "restart even if another readiness race is in flight")
	rootCmd.AddCommand(restartCommand)
}

func runRestart(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Call(ctx, ipc.Request{Restart: &ipc.RestartRequest{ID: args[0], Force: restartForce}})
	if err != nil {
		return err
	}
	if resp.NotFound != nil {
		return fmt.Errorf("%s: not found", args[0])
	}
	return printRunResponse(resp)
}
