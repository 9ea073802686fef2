// Package main provides the appscore CLI entry point.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

// humanOutput controls whether to use human-readable output
var humanOutput bool

// logLevel controls the verbosity of diagnostics on stderr
var logLevel string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(ExitError)
	}
}

var rootCmd = &cobra.Command{
	Use:   "appscore",
	Short: "Annual Publication Performance calculator",
	Long: `appscore computes Annual Publication Performance scores for authors.

It loads a CiteScore reference table, fetches each author's publications
from the Scopus API, matches them against the table, and derives the
weighted APP total with its support-allowance eligibility tier. All
commands output JSON by default for easy integration with other tools.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level for diagnostics (debug, info, warn, error)")
	rootCmd.Version = Version
}
