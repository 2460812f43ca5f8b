// Package main provides the entry point for the hybridindex CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/hybridindex/cmd/hybridindex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
