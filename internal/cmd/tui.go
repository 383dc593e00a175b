package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/tui"
)

var tuiCommand = &cobra.Command{
	Use:     "tui",
	GroupID: GroupInfo,
	Short:   "Open the interactive daemon status view",
	RunE:    runTUI,
}

func init() { rootCmd.AddCommand(tuiCommand) }

func runTUI(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()
	client.Timeout = 5 * time.Second
	return tui.Run(client)
}
