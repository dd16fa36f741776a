// Package cli implements sandboxctl's command tree: a thin HTTP client
// over sandboxd's /v1 API, adapted from boxed/internal/cli's run.go,
// list.go, and repl.go, narrowed to this domain's submit-a-job contract
// (there is no sandbox listing or filesystem surface to drive here, since
// a submission is a single synchronous run rather than a long-lived
// sandbox the client manages piecemeal).
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	apiAddr string
	apiKey  string
)

// RootCmd is the base command for the sandboxctl binary.
var RootCmd = &cobra.Command{
	Use:   "sandboxctl",
	Short: "Client for the sandboxed test orchestrator",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		}
	},
}

// Execute runs the command tree, exiting non-zero on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	RootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://localhost:8080", "sandboxd server address")
	RootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SANDBOXD_API_KEY"), "API key for authentication")
	RootCmd.AddCommand(runCmd)
	RootCmd.AddCommand(streamCmd)
}
