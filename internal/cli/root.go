// Package cli defines the chalkd command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chalkd",
	Short: "Streaming tutoring backend",
	Long: `Chalkd serves the Chalk tutoring API: students ask questions against a
session and the answer streams back sentence by sentence as text,
synthesized speech and canvas directives over SSE.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
