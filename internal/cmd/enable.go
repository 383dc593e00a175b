package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/ipc"
)

var enableCommand = &cobra.Command{
	Use:     "enable <id>",
	GroupID: GroupDaemons,
	Short:   "Re-allow a daemon to auto-start and auto-restart",
	Args:    cobra.ExactArgs(1),
	RunE:    func(cmd *cobra.Command, args []string) error { return setEnabled(args[0], false) },
}

var disableCommand = &cobra.Command{
	Use:     "disable <id>",
	GroupID: GroupDaemons,
	Short:   "Prevent a daemon from auto-starting, cron-firing, or watch-restarting",
	Args:    cobra.ExactArgs(1),
	RunE:    func(cmd *cobra.Command, args []string) error { return setEnabled(args[0], true) },
}

func init() {
	rootCmd.AddCommand(enableCommand)
	rootCmd.AddCommand(disableCommand)
}

func setEnabled(id string, disabled bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	req := ipc.Request{}
	if disabled {
		req.Disable = &ipc.EnableRequest{ID: id}
	} else {
		req.Enable = &ipc.EnableRequest{ID: id}
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return err
	}
	if resp.Yes != nil || resp.No != nil {
		word := "enabled"
		if disabled {
			word = "disabled"
		}
		fmt.Printf("%s %s\n", id, word)
		return nil
	}
	return fmt.Errorf("unexpected response")
}
