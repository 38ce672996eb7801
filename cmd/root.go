// Package cmd defines and implements the CLI commands for the ted-harvester
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ted-harvester",
		Short: "Harvests EU public procurement notices into a spreadsheet.",
		Long: `ted-harvester searches the Tenders Electronic Daily notice API for calls
for competition, downloads each notice's XML document, extracts the fields
relevant to bid/no-bid screening, and writes the result as a filterable
spreadsheet table.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newHarvestCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
