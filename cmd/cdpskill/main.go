// Command cdpskill runs one invocation's steps against a running Chrome
// instance and prints the aggregated JSON result to stdout.
package main

import (
	"os"

	"github.com/cdpskill/cdpskill/internal/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
