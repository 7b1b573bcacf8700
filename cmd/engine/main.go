// Command engine is the instrumental-extraction pipeline's entry
// point: it claims job bundles from configured queues, runs them
// through the Processor, and (via its sync-* subcommands) routes
// published artifacts to their configured destinations.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/svidal-nlive/instrumental-dbo/cmd/engine/cmd"
)

func main() {
	err := cmd.Execute()
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "error: %v\n", err)

	var exit cmd.ExitError
	if errors.As(err, &exit) {
		os.Exit(exit.Code)
	}
	os.Exit(64)
}
