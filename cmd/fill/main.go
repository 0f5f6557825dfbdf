// Package main is the fill command.
package main

import (
	"os"

	"github.com/sherlockq/fill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
