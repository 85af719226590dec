package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "iterz",
		Short: "Lazy dataset pipeline demos",
		Long: `iterz is a CLI tool for exploring lazy, pull-based dataset pipelines
through interactive demonstrations.

Run transformation pipelines, watch short-circuit projection planning in
action, and experiment with checkpointing a pipeline mid-stream.`,
		Version: version,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	// Add commands
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(checkpointCmd)
}
