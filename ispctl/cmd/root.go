// Package cmd provides the command-line interface of ispctl.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ispctl",
	Short: "ispctl runs and inspects pipelines of simulated ISP blocks.",
	Long: `ispctl drives chains of ISP hardware blocks over simulated ` +
		`hardware. It can run frames through a pipeline, list the block ` +
		`types, and read back the dumps recorded during a run.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It exits through atexit so that recorders are flushed.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
