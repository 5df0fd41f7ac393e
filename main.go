// Command brokkctl is the operator CLI entry point for the Brokk Workbench
// Core: session archive management, file-watch inspection, and build
// config canonicalization.
package main

import (
	"fmt"
	"os"

	"github.com/brokkworkbench/core/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
