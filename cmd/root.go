// Package cmd implements brokkctl, a thin operator CLI over the workbench
// core: session archive inspection/management, file-watch smoke-testing,
// and build-config canonicalization. It exercises pkg/session, pkg/watch,
// and pkg/buildconfig directly rather than wrapping a GUI (out of scope,
// spec.md §1).
//
// Grounded on the teacher's cmd/root.go: persistent root command, cobra
// subcommand registration via init(), package-level *cobra.Command vars.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "brokkctl",
	Short: "Operator CLI for the Brokk Workbench Core",
	Long: `brokkctl is a command-line tool for inspecting and operating the
Brokk Workbench Core outside of its IDE host: list and manage session
archives, watch a project directory and print the change batches the
Context Manager would see, and inspect/canonicalize build configuration.

Available commands:
  session   - List, rename, copy, and delete session archives
  watch     - Watch a project directory and print classified change batches
  config    - Inspect and canonicalize build configuration (.brokk/project.properties)
  version   - Print version information`,
}

// Execute adds all child commands to the root command and runs it. Called
// by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("project", ".", "project directory")
}

func projectDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("project")
	if dir == "" {
		dir = "."
	}
	return dir
}
