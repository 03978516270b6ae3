package main

import (
	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cliplens version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Println("cliplens " + version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
