// Package main is the entry point for vmtopo.
package main

import (
	"os"

	"github.com/javanstorm/vmtopo/internal/cli"
)

func main() {
	// Execute prints the error itself
	if err := cli.Execute(cli.Options{}); err != nil {
		os.Exit(1)
	}
}
