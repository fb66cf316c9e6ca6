// Command adab is the entry point for the Adab parenting coach service.
// It provides a CLI interface (via Cobra) for running the HTTP gateway,
// loading knowledge into the vector store, and managing API keys.
package main

import (
	"fmt"
	"os"

	"github.com/adab-ai/adab-go/cmd/adab/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
