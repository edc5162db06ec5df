package main

import (
	"fmt"

	"github.com/docalist/migration-prisme-2015/internal/migrate"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the migration tools in the order they should be run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for i, t := range migrate.Tools {
			fmt.Fprintf(out, "%d. %-10s %s\n   %s\n", i+1, t.Command, t.Name, t.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
