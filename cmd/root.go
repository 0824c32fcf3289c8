// Package cmd contains the CLI entry points.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cloneai",
	Short: "CloneAI - AI clone backend service",
	Long: `CloneAI is the backend service for AI clone personas.

It manages clones and their knowledge, proxies knowledge processing and
retrieval to an external RAG backend, and answers queries with a
RAG-first, direct-LLM-fallback chain.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Running without a subcommand starts the server.
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
