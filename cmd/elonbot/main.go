// Command elonbot runs the Elon slack bot and offers a few maintenance commands over its goals,
// interactions and configuration
package main

import (
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := new(rootOptions)

	rootCmd := &cobra.Command{
		Use:           "elonbot",
		Short:         "Elon, the slack bot that keeps your team on its goals",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(runCmd(opts))
	rootCmd.AddCommand(checkinCmd(opts))
	rootCmd.AddCommand(sweepCmd(opts))
	rootCmd.AddCommand(goalsCmd(opts))
	rootCmd.AddCommand(interactionsCmd(opts))
	rootCmd.AddCommand(employeesCmd(opts))
	rootCmd.AddCommand(encryptCmd(opts))

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
