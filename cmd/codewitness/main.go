// Package main provides the entry point for the codewitness CLI.
package main

import (
	"os"

	"github.com/codewitness/codewitness/cmd/codewitness/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
