package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/ipc"
)

// shellHookCommand is invoked from a shell prompt hook (PS1/precmd) with the
// shell's own PID and current directory, driving the autostop tracker's
// shell-presence bookkeeping (component I).
var shellHookCommand = &cobra.Command{
	Use:     "shell-hook <shell-pid>",
	GroupID: GroupInfo,
	Short:   "Report a shell's current directory for autostop tracking",
	Args:    cobra.ExactArgs(1),
	RunE:    runShellHook,
}

func init() { rootCmd.AddCommand(shellHookCommand) }

func runShellHook(cmd *cobra.Command, args []string) error {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid shell pid %q: %w", args[0], err)
	}
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	_, err = client.Call(ctx, ipc.Request{UpdateShellDir: &ipc.UpdateShellDirRequest{ShellPID: pid, Dir: dir}})
	return err
}
