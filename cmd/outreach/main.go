// Command outreach sends a CSV-driven email campaign within a daily limit.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/outreach/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
