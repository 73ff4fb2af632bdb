// Package cli implements the logwire command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Persistent flags available to all subcommands
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "logwire",
	Short: "logwire receives delimited log lines over TCP and routes them by tag",
	Long: `logwire accepts newline (or custom) delimited messages on one or more TCP
listeners, turns every message into a tagged event and routes it to outputs
such as stdout, an MQTT broker or a WebSocket collector.

Configuration is read from a YAML or JSON file and may be overridden with
LOGWIRE_* environment variables or flags.`,
	SilenceUsage:  true,
	SilenceErrors: true, // Main prints errors
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Main runs the command line and returns the process exit code.
func Main() int {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")
}

// printJSON writes indented JSON to w.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
