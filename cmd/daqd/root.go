package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:           "daqd",
	Short:         "Simulated data-acquisition engine",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the daqd CLI, returning any error from the selected
// subcommand.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(simCmd)
}
