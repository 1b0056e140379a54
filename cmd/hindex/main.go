// Package main provides the entry point for the hindex CLI.
package main

import (
	"os"

	"github.com/reelpipe/hindex/cmd/hindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
