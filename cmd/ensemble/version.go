package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	ensemble "github.com/ensemble-dev/ensemble"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of ensemble",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ensemble version %s\n", strings.TrimSpace(ensemble.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
