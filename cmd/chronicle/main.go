// Command chronicle replays and analyzes a development workflow audit trail.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/chronicle/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
