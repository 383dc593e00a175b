package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/config"
	"go.jdx.dev/pitchfork/internal/webui"
)

var webAddr string

var webCommand = &cobra.Command{
	Use:     "web",
	GroupID: GroupInfo,
	Short:   "Serve a read-only status and log-tail HTTP endpoint",
	RunE:    runWeb,
}

func init() {
	webCommand.Flags().StringVar(&webAddr, "addr", "", "listen address, default :8732")
	rootCmd.AddCommand(webCommand)
}

func runWeb(cmd *cobra.Command, args []string) error {
	dialCtx, cancelDial := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelDial()
	client, err := dialClient(dialCtx)
	if err != nil {
		return err
	}
	defer client.Close()
	client.Timeout = 5 * time.Second

	addr := webAddr
	if addr == "" {
		addr = ":8732"
	}
	stateDir, err := config.StateDir()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	fmt.Printf("pitchfork web listening on %s\n", addr)
	return webui.New(client, stateDir+"/logs", addr).ListenAndServe(ctx)
}
