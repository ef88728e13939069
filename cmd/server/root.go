package main

import (
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:          "freightroute",
	Short:        "Route planning and cargo layout service",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "env file with configuration (defaults to ./.env)")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }
