// Package cli implements sandboxd's command tree, adapted from
// boxed/internal/cli/root.go: a persistent --verbose flag, but logging
// setup is deferred to the "serve" subcommand (see serve.go) since it
// needs internal/config.Config.Environment, which is only known once the
// config file and environment have been loaded — there is no
// PersistentPreRun logging setup here the way the teacher's root command
// had, since sandboxd has no other subcommand that would need it earlier.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

// RootCmd is the base command for the sandboxd binary.
var RootCmd = &cobra.Command{
	Use:   "sandboxd",
	Short: "Sandboxed test orchestrator server",
	Long: `sandboxd runs untrusted, test-annotated function submissions inside
disposable Docker containers and reports per-test verdicts.`,
}

// Execute runs the command tree, exiting non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	RootCmd.AddCommand(serveCmd)
}
