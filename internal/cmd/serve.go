package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/config"
	"go.jdx.dev/pitchfork/internal/supervisor"
)

var serveBackground bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: GroupService,
	Short:   "Run the supervisor process in the foreground",
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveBackground, "background", false, "re-exec detached and return immediately")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveBackground {
		return spawnBackground()
	}

	stateDir, err := config.StateDir()
	if err != nil {
		return err
	}
	sup, err := supervisor.Bootstrap(stateDir)
	if err != nil {
		return fmt.Errorf("starting supervisor: %w", err)
	}
	defer sup.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := sup.Serve(ctx); err != nil && err != supervisor.ErrAlreadyRunning {
		return err
	}
	return nil
}

// spawnBackground re-execs the current binary as `serve` (no --background),
// detached from this process's controlling terminal, then returns
// immediately so the caller (typically an auto-starting client) can proceed
// to retry its connection. Platform-specific detachment lives in
// spawn_unix.go / spawn_windows.go.
func spawnBackground() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	c := exec.Command(exe, "serve")
	detach(c)
	return c.Start()
}
