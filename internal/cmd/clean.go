package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/ipc"
)

var cleanCommand = &cobra.Command{
	Use:     "clean",
	GroupID: GroupInfo,
	Short:   "Remove state records for daemons that are no longer running",
	RunE:    runClean,
}

func init() { rootCmd.AddCommand(cleanCommand) }

func runClean(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Call(ctx, ipc.Request{Clean: &ipc.CleanRequest{}})
	if err != nil {
		return err
	}
	if resp.Ok == nil {
		return fmt.Errorf("unexpected response")
	}
	fmt.Println("cleaned")
	return nil
}
