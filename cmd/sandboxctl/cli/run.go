package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/akshayaggarwal99/sandboxd/internal/orchestrator"
	"github.com/akshayaggarwal99/sandboxd/internal/verdict"
	"github.com/spf13/cobra"
)

var submissionFile string

var runCmd = &cobra.Command{
	Use:   "run [submission.json]",
	Short: "Submit a function and its tests for sandboxed execution",
	Long: `run reads a submission (language, code, script_name,
script_parameters, tests, and optional libraries/docker_image/timeout_ms)
from a file or stdin, posts it to the server's /v1/run endpoint, and
prints the resulting verdict.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 1 {
			submissionFile = args[0]
		}
		runSubmission()
	},
}

func init() {
	runCmd.Flags().StringVar(&submissionFile, "file", "", "path to a submission JSON file (default: stdin)")
}

func readSubmission() (orchestrator.Submission, error) {
	var r io.Reader = os.Stdin
	if submissionFile != "" && submissionFile != "-" {
		f, err := os.Open(submissionFile)
		if err != nil {
			return orchestrator.Submission{}, fmt.Errorf("open submission file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var sub orchestrator.Submission
	if err := json.NewDecoder(r).Decode(&sub); err != nil {
		return orchestrator.Submission{}, fmt.Errorf("decode submission: %w", err)
	}
	return sub, nil
}

func runSubmission() {
	sub, err := readSubmission()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	body, err := json.Marshal(sub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode submission: %v\n", err)
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, apiAddr+"/v1/run", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(os.Stderr, "build request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Sandboxd-API-Key", apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\nIs sandboxd running at %s?\n", err, apiAddr)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		fmt.Fprintf(os.Stderr, "server returned %s\n", resp.Status)
		io.Copy(os.Stderr, resp.Body)
		os.Exit(1)
	}

	var result verdict.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fmt.Fprintf(os.Stderr, "decode response: %v\n", err)
		os.Exit(1)
	}

	printResult(result)
	if result.Status != verdict.Success {
		os.Exit(1)
	}
}

func printResult(result verdict.RunResult) {
	fmt.Printf("status: %s\n", result.Status)
	if result.InstallOutput != "" {
		fmt.Printf("install output:\n%s\n", result.InstallOutput)
	}
	if result.Error != nil {
		fmt.Printf("error: [%s] %s\n", result.Error.Type, result.Error.Message)
	}
	for _, tv := range result.TestStatuses {
		line := fmt.Sprintf("  %s (%s): %s", tv.ID, tv.Name, tv.Status)
		if tv.Error != nil {
			line += fmt.Sprintf(" - [%s] %s", tv.Error.Type, tv.Error.Message)
		}
		fmt.Println(line)
	}
}
