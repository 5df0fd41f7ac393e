package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brokkworkbench/core/pkg/buildconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and canonicalize build configuration (.brokk/project.properties)",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the project's build details, migrating legacy keys if present",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := projectDir(cmd)
		bd, err := buildconfig.Load(dir)
		if err != nil {
			return err
		}
		fmt.Printf("buildLintCommand: %s\n", bd.BuildLintCommand)
		fmt.Printf("testAllCommand:   %s\n", bd.TestAllCommand)
		fmt.Printf("testSomeCommand:  %s\n", bd.TestSomeCommand)
		fmt.Println("exclusionPatterns:")
		for _, p := range bd.ExclusionPatterns {
			fmt.Printf("  %s\n", p)
		}
		for k, v := range bd.EnvironmentVariables {
			fmt.Printf("env %s=%s\n", k, v)
		}
		return nil
	},
}

var configCanonicalizeCmd = &cobra.Command{
	Use:   "canonicalize <pattern...>",
	Short: "Canonicalize exclusion patterns and merge them into the build details",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := projectDir(cmd)
		canon := buildconfig.CanonicalizeExclusionPatterns(dir, args)

		bd, err := buildconfig.Load(dir)
		if err != nil {
			return err
		}
		merged := make(map[string]bool, len(bd.ExclusionPatterns)+len(canon))
		for _, p := range bd.ExclusionPatterns {
			merged[p] = true
		}
		for _, p := range canon {
			merged[p] = true
		}
		bd.ExclusionPatterns = bd.ExclusionPatterns[:0]
		for p := range merged {
			bd.ExclusionPatterns = append(bd.ExclusionPatterns, p)
		}
		bd.ExclusionPatterns = buildconfig.CanonicalizeExclusionPatterns(dir, bd.ExclusionPatterns)

		if err := buildconfig.Save(dir, bd); err != nil {
			return err
		}
		for _, p := range bd.ExclusionPatterns {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configCanonicalizeCmd)
	rootCmd.AddCommand(configCmd)
}
