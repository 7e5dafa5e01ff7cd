package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "kapeview",
	Short:         "Evidence ingestion backend for KAPE triage archives.",
	Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildTime),
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/kapeview/config.yml)")
	rootCmd.AddCommand(serveCmd, importCmd, snapshotCmd)
}
