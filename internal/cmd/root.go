// Package cmd provides the pitchfork CLI's cobra command tree. Every
// subcommand here is a thin internal/ipc client: none of them touch the
// process table, the lifecycle engine, or the scheduler directly, matching
// §1's "CLI is a thin IPC client" requirement. The command-group and
// prefix-matching conventions follow the teacher's own root command
// (internal/cmd/root.go).
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/config"
	"go.jdx.dev/pitchfork/internal/ipc"
)

var rootCmd = &cobra.Command{
	Use:   "pitchfork",
	Short: "A user-level process supervisor for project-local daemons",
	Long: `pitchfork starts, stops, restarts, enables, and disables long-running
daemons declared in pitchfork.toml files, keeping them alive according to
their declared readiness, retry, dependency, cron, autostop, and file-watch
policies.`,
}

// Execute runs the root command and returns a process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func init() {
	cobra.EnablePrefixMatching = true
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupDaemons, Title: "Daemon Control:"},
		&cobra.Group{ID: GroupInfo, Title: "Information:"},
		&cobra.Group{ID: GroupService, Title: "Supervisor:"},
	)
}

// Command group IDs used to organize `pitchfork --help` output.
const (
	GroupDaemons = "daemons"
	GroupInfo    = "info"
	GroupService = "service"
)

// dialClient connects to the running supervisor, auto-starting it in the
// background on first-connect failure, per spec.md §4.7.
func dialClient(ctx context.Context) (*ipc.Client, error) {
	stateDir, err := config.StateDir()
	if err != nil {
		return nil, fmt.Errorf("resolving state dir: %w", err)
	}
	socketPath := stateDir + "/ipc/main.sock"
	client, err := ipc.Dial(ctx, socketPath, ipc.Codec{}, true, []string{os.Args[0], "serve", "--background"})
	if err != nil {
		return nil, err
	}
	client.Timeout = 5 * time.Second
	return client, nil
}
