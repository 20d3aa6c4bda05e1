package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/proxyshape"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of proxyshape",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "proxyshape version %s\n", strings.TrimSpace(proxyshape.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
