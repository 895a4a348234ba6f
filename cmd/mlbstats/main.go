// Command mlbstats is the MLB data lake pipeline CLI.
package main

import (
	"os"

	"github.com/pithecene-io/mlbstats/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
