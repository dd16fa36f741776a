package orchestrator

import "encoding/json"

// TestCase is one entry in a Submission's test suite, matching the wire
// envelope's `tests[]` shape: an ordered argument list, an ordered list of
// expected results (only the first is ever compared), and an optional
// stable identifier.
type TestCase struct {
	ID         string            `json:"id,omitempty"`
	Parameters []json.RawMessage `json:"parameters"`
	Results    []json.RawMessage `json:"results"`
}

// Submission is the immutable input to one orchestrator run: one function's
// source, its declared dependencies, and the test suite to run it against.
// Field names mirror the wire envelope (`language`, `code`, `libraries`,
// `script_name`, `script_parameters`, `tests`, `docker_image`,
// `timeout_ms`) rather than internal component naming, since this is the
// type `internal/apiserver` decodes requests into directly.
type Submission struct {
	Language         string     `json:"language"`
	Code             string     `json:"code"`
	Libraries        []string   `json:"libraries"`
	ScriptName       string     `json:"script_name"`
	ScriptParameters []string   `json:"script_parameters"`
	Tests            []TestCase `json:"tests"`
	DockerImage      string     `json:"docker_image,omitempty"`
	TimeoutMS        int        `json:"timeout_ms,omitempty"`
}
