// Command automationd serves the automation engine and job state
// machine over HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "automationd",
		Short: "Business automation engine and job lifecycle service",
		Long: `automationd runs the workflow automation engine and the job
lifecycle state machine: it reacts to business events, executes
user-configured workflows, and serves the HTTP API.`,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
