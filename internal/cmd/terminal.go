package cmd

import (
	"os"

	"golang.org/x/term"
)

// isTerminal reports whether stdout is attached to a TTY, following the
// teacher's own internal/ui/terminal.go helper.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// shouldUseColor mirrors the teacher's NO_COLOR/CLICOLOR_FORCE convention,
// applied here to ls's status column instead of gastown's own output.
func shouldUseColor() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if _, ok := os.LookupEnv("CLICOLOR_FORCE"); ok {
		return true
	}
	return isTerminal()
}
