// Package main is the entry point for the zoocari service.
//
// Usage:
//
//	zoocari [flags] <command> [args]
//
// Commands:
//
//	serve    - Run the HTTP API
//	ask      - Ask one question from the terminal
//	ingest   - Add knowledge-base documents to the index
//	probe    - Check the local providers
//	config   - Show the effective configuration
//	version  - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/zoocari/cmd/zoocari/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
