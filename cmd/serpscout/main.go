// Package main is the entry point for the serpscout CLI.
package main

import (
	"os"

	"github.com/serpscout/serpscout/cmd/serpscout/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
