// Command assetq is the entry point for the asset database chat agent.
// It provides a CLI interface (via Cobra) and an optional HTTP server
// exposing the agent over a REST/SSE API.
package main

import (
	"fmt"
	"os"

	"github.com/prodkit/assetq-go/cmd/assetq/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
