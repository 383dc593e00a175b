// Command pitchfork is the CLI entrypoint: it parses arguments through
// cobra and hands off to internal/cmd, following the teacher's own
// single-line cmd/gt/main.go.
package main

import (
	"os"

	"go.jdx.dev/pitchfork/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
