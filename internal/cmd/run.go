package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/ipc"
)

var (
	runForce     bool
	runWaitReady bool
	runAutostop  bool
	runRetry     uint32
	runDelay     uint64
	runOutput    string
	runHTTP      string
	runPort      uint16
	runCmd       string
	runAutoBump  bool
)

var runCommand = &cobra.Command{
	Use:     "run <id> -- <command...>",
	GroupID: GroupDaemons,
	Short:   "Start a daemon, ad-hoc or from config",
	Args:    cobra.MinimumNArgs(1),
	RunE:    runRun,
}

func init() {
	runCommand.Flags().BoolVar(&runForce, "force", false, "restart if already running")
	runCommand.Flags().BoolVar(&runWaitReady, "wait-ready", true, "block until the readiness probe resolves")
	runCommand.Flags().BoolVar(&runAutostop, "autostop", false, "stop automatically when no shell remains in its directory")
	runCommand.Flags().Uint32Var(&runRetry, "retry", 0, "retry budget (0 = no retries)")
	runCommand.Flags().Uint64Var(&runDelay, "ready-delay", 0, "readiness: fixed delay in seconds")
	runCommand.Flags().StringVar(&runOutput, "ready-output", "", "readiness: regex to match against stdout/stderr")
	runCommand.Flags().StringVar(&runHTTP, "ready-http", "", "readiness: URL polled for a 2xx response")
	runCommand.Flags().Uint16Var(&runPort, "port", 0, "port to bind, with auto-bump on conflict if set")
	runCommand.Flags().StringVar(&runCmd, "ready-cmd", "", "readiness: shell command polled for a zero exit")
	runCommand.Flags().BoolVar(&runAutoBump, "auto-bump-port", false, "bump the port on bind conflict")
	rootCmd.AddCommand(runCommand)
}

func runRun(cmd *cobra.Command, args []string) error {
	id := args[0]
	command := args[1:]
	if len(command) == 0 {
		return fmt.Errorf("run requires a command after the daemon id (use 'start' for a config-declared daemon)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Call(ctx, ipc.Request{Run: &ipc.RunRequest{
		ID:            id,
		Cmd:           command,
		Dir:           currentDir(),
		Force:         runForce,
		WaitReady:     runWaitReady,
		Autostop:      runAutostop,
		Retry:         runRetry,
		ReadyDelaySec: runDelay,
		ReadyOutput:   runOutput,
		ReadyHTTP:     runHTTP,
		ReadyCmd:      runCmd,
		Port:          runPort,
		AutoBumpPort:  runAutoBump,
	}})
	if err != nil {
		return err
	}
	return printRunResponse(resp)
}

func printRunResponse(resp ipc.Response) error {
	switch {
	case resp.Ready != nil:
		fmt.Printf("%s ready (pid %d)\n", resp.Ready.Record.ID, resp.Ready.Record.PID)
	case resp.Start != nil:
		fmt.Printf("%s started (pid %d)\n", resp.Start.Record.ID, resp.Start.Record.PID)
	case resp.AlreadyRunning != nil:
		fmt.Printf("%s already running (pid %d)\n", resp.AlreadyRunning.Record.ID, resp.AlreadyRunning.Record.PID)
	case resp.FailedWithCode != nil:
		code := -1
		if resp.FailedWithCode.ExitCode != nil {
			code = *resp.FailedWithCode.ExitCode
		}
		return fmt.Errorf("failed (exit %d): %s", code, resp.FailedWithCode.Message)
	case resp.StopFailed != nil:
		return fmt.Errorf("stop of prior instance failed: %s", resp.StopFailed.Message)
	case resp.Invalid != nil:
		return fmt.Errorf("invalid request: %s", resp.Invalid.Error)
	default:
		return fmt.Errorf("unexpected response")
	}
	return nil
}

func currentDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
