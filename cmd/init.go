package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridwatch/collector-cli/internal/config"
)

var initOut string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml with all defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteExample(initOut); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", initOut)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initOut, "out", "config.yaml", "output path")
	rootCmd.AddCommand(initCmd)
}
