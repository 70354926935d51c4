// Command fetchctl is a thin example CLI driver for the fetch package.
// The real work happens in package fetch; this is just a terminal-facing
// consumer built on top of it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fetchctl [url]",
	Short:   "Download a file with resumable, range-aware, multi-chunk fetching",
	Version: version,
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runDownload(args[0])
	},
}
