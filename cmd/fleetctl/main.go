// Package main is the entry point for the fleetctl CLI.
// The CLI is the operator terminal tool for inspecting the simulated fleet.
package main

import (
	"os"

	"tankersim/cmd/fleetctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
