package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run one SQL statement and print the result",
	Example: `  cmdsql query "SELECT pid, command FROM ps() ORDER BY cpu_percent DESC LIMIT 5"
  cmdsql query "SELECT * FROM df(host('db1'), '-x', 'tmpfs')"
  cmdsql query "SELECT host, load_1m FROM uptime(hostgroup('web'))"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp(&rootFlags)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := queryContext(cmd.Context(), &rootFlags)
	defer cancel()

	res, err := a.engine.Query(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), res)
}
