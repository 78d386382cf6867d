package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the EduPay operator CLI. Subcommands are attached in wire.go.
var rootCmd = &cobra.Command{
	Use:           "edupay",
	Short:         "EduPay operator CLI",
	Long:          "Operator utilities for EduPay (schema bootstrap, dev tokens, institution lifecycle, fee and analytics jobs).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
