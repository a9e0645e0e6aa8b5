package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nucleus/etl-flows/internal/flows"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered flows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, name := range flows.DefaultRegistry().List() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
