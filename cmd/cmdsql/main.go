// Command cmdsql queries the output of administrative commands with SQL.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
