package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"go.jdx.dev/pitchfork/internal/ipc"
)

var (
	statusRunningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	statusErroredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func styleStatus(status string) string {
	if !shouldUseColor() {
		return status
	}
	switch status {
	case "running":
		return statusRunningStyle.Render(status)
	case "errored":
		return statusErroredStyle.Render(status)
	default:
		return status
	}
}

var lsCommand = &cobra.Command{
	Use:     "ls",
	GroupID: GroupInfo,
	Short:   "List active daemons",
	RunE:    runLs,
}

var disabledCommand = &cobra.Command{
	Use:     "disabled",
	GroupID: GroupInfo,
	Short:   "List disabled daemon ids",
	RunE:    runDisabled,
}

func init() {
	rootCmd.AddCommand(lsCommand)
	rootCmd.AddCommand(disabledCommand)
}

func runLs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Call(ctx, ipc.Request{GetActive: &ipc.GetActiveRequest{}})
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPID\tSTATUS\tPORT\tCPU\tMEM")
	for _, d := range resp.ActiveDaemons {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%.1f%%\t%dM\n",
			d.ID, d.PID, styleStatus(d.Status), d.Port, d.CPUPercent, d.RSSBytes/(1024*1024))
	}
	return w.Flush()
}

func runDisabled(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := dialClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Call(ctx, ipc.Request{GetDisabled: &ipc.GetDisabledRequest{}})
	if err != nil {
		return err
	}
	for _, id := range resp.DisabledDaemons {
		fmt.Println(id)
	}
	return nil
}
