package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/akshayaggarwal99/sandboxd/internal/orchestrator"
	"github.com/akshayaggarwal99/sandboxd/internal/verdict"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var streamCmd = &cobra.Command{
	Use:   "stream [submission.json]",
	Short: "Submit a run and print each stage as the server reaches it",
	Long: `stream connects to the server's websocket endpoint and prints one
line per orchestrator stage transition (validate, provision, install,
whitelist, stage, upload, execute, report) before the final verdict,
replacing boxed's interactive repl with a one-shot progress feed.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 1 {
			submissionFile = args[0]
		}
		streamSubmission()
	},
}

func streamSubmission() {
	sub, err := readSubmission()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	u, err := url.Parse(apiAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --addr: %v\n", err)
		os.Exit(1)
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)
	u.Path = "/v1/run/stream"
	if apiKey != "" {
		u.RawQuery = "api_key=" + apiKey
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	body, err := json.Marshal(sub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode submission: %v\n", err)
		os.Exit(1)
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		fmt.Fprintf(os.Stderr, "send submission: %v\n", err)
		os.Exit(1)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
			os.Exit(1)
		}

		var event orchestrator.ProgressEvent
		if err := json.Unmarshal(msg, &event); err == nil && event.Stage != "" {
			fmt.Printf("-> %s\n", event.Stage)
			continue
		}

		var errMsg struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(msg, &errMsg); err == nil && errMsg.Error != "" {
			fmt.Fprintln(os.Stderr, errMsg.Error)
			os.Exit(1)
		}

		var result verdict.RunResult
		if err := json.Unmarshal(msg, &result); err != nil {
			fmt.Fprintf(os.Stderr, "decode message: %v\n", err)
			os.Exit(1)
		}
		printResult(result)
		if result.Status != verdict.Success {
			os.Exit(1)
		}
		return
	}
}
