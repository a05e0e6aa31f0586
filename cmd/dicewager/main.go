// Command dicewager runs the wager match engine and its tooling.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/dicewager/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
