// Package main provides the research CLI: one-shot runs, run lookup and the
// HTTP service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configFile    string
	storeOverride string
)

var rootCmd = &cobra.Command{
	Use:           "research",
	Short:         "Deterministic weekly strategy research",
	Long:          `Runs and memoizes research simulations over weekly signal history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&storeOverride, "store", "", "Override the run store driver (postgres, sqlite, memory)")
	rootCmd.Version = fmt.Sprintf("%s (%s)", Version, GitCommit)

	rootCmd.AddCommand(runCmd, getCmd, hashCmd, validateCmd, serveCmd, migrateCmd, ingestCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
