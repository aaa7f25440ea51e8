package main

import (
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables [table]",
	Short: "List the available tables or describe one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTables,
}

func init() {
	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(&rootFlags)
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return printTables(cmd.OutOrStdout(), registry)
	}
	spec, err := registry.Lookup(args[0])
	if err != nil {
		return err
	}
	return printSchema(cmd.OutOrStdout(), spec)
}
