// Package main is the entry point for gencamctl.
package main

import (
	"fmt"
	"os"

	"gencam.dev/gencam/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
