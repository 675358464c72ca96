package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/legout/flowerpower-sub010/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("flowerpower", version.Get().String())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
