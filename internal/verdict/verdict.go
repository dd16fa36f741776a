// Package verdict classifies a driver harness invocation's (stdout, stderr,
// exit code) triple into the external result schema, matching
// _parse_test_results in the original runner.
package verdict

import (
	"encoding/json"
	"strings"
)

// Kind enumerates the error taxonomy from the wire contract.
type Kind string

const (
	EmptyOutput          Kind = "EMPTY_OUTPUT"
	RuntimeError         Kind = "RUNTIME_ERROR"
	InvalidTestStructure Kind = "INVALID_TEST_STRUCTURE"
	TestFailure          Kind = "TEST_FAILURE"
	ParseError           Kind = "PARSE_ERROR"
	SecurityViolation    Kind = "SECURITY_VIOLATION"
	ImportError          Kind = "IMPORT_ERROR"
	Timeout              Kind = "TIMEOUT"
	AssertionError       Kind = "ASSERTION_ERROR"
	InvalidOutput        Kind = "INVALID_OUTPUT"
	NonZeroExit          Kind = "NON_ZERO_EXIT"
	MainNotFound         Kind = "MAIN_NOT_FOUND"
)

// Status is the coarse pass/fail outcome carried by both TestVerdict and
// RunResult.
type Status string

const (
	Success Status = "success"
	Fail    Status = "fail"
)

// ErrorDetail is the {type, message} shape attached to a failing verdict or
// top-level result.
type ErrorDetail struct {
	Type    Kind   `json:"type"`
	Message string `json:"message"`
}

// TestVerdict is the outcome record for one test case, as emitted by the
// driver harness and echoed back unchanged except for the bare-string
// error rewrite described in spec.md §4.6.
type TestVerdict struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Status    Status       `json:"status"`
	Error     *ErrorDetail `json:"error,omitempty"`
	Traceback string       `json:"traceback,omitempty"`
}

// rawVerdict mirrors TestVerdict but leaves Error untyped so a bare string
// (as opposed to an {type, message} object) can be detected and rewritten.
type rawVerdict struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    Status          `json:"status"`
	Error     json.RawMessage `json:"error,omitempty"`
	Traceback string          `json:"traceback,omitempty"`
}

// RunResult is the top-level outcome of one submission's driver harness
// invocation.
type RunResult struct {
	Status        Status        `json:"status"`
	InstallOutput string        `json:"install_output"`
	TestOutput    string        `json:"test_output,omitempty"`
	TestStatuses  []TestVerdict `json:"test_statuses,omitempty"`
	Error         *ErrorDetail  `json:"error,omitempty"`
	RawOutput     string        `json:"raw_output,omitempty"`
	Stderr        string        `json:"stderr,omitempty"`
}

// Classify maps the driver harness's raw stdout/stderr/exit-code triple
// into a RunResult, following the classification table in spec.md §4.6.
func Classify(stdout, stderr []byte, exitCode int, installOutput string) RunResult {
	out := strings.TrimSpace(string(stdout))
	errOut := strings.TrimSpace(string(stderr))

	if out == "" {
		if errOut == "" {
			return RunResult{
				Status:        Fail,
				InstallOutput: installOutput,
				Error:         &ErrorDetail{Type: EmptyOutput, Message: "no output produced"},
				RawOutput:     out,
				Stderr:        errOut,
			}
		}
		return RunResult{
			Status:        Fail,
			InstallOutput: installOutput,
			Error:         &ErrorDetail{Type: RuntimeError, Message: errOut},
			RawOutput:     out,
			Stderr:        errOut,
		}
	}

	var rawList []rawVerdict
	if err := json.Unmarshal([]byte(out), &rawList); err != nil {
		return classifyUnparseable(out, errOut, installOutput)
	}

	verdicts := make([]TestVerdict, 0, len(rawList))
	for _, rv := range rawList {
		verdicts = append(verdicts, normalizeVerdict(rv))
	}

	status := Success
	if exitCode != 0 {
		status = Fail
	}
	for _, v := range verdicts {
		if v.Status == Fail {
			status = Fail
		}
	}

	return RunResult{
		Status:        status,
		InstallOutput: installOutput,
		TestOutput:    out,
		TestStatuses:  verdicts,
	}
}

// normalizeVerdict rewrites a bare-string error field into a
// {type: TEST_FAILURE, message} object, per spec.md §4.6.
func normalizeVerdict(rv rawVerdict) TestVerdict {
	v := TestVerdict{ID: rv.ID, Name: rv.Name, Status: rv.Status, Traceback: rv.Traceback}
	if rv.Status != Fail || len(rv.Error) == 0 {
		return v
	}

	var detail ErrorDetail
	if err := json.Unmarshal(rv.Error, &detail); err == nil && detail.Type != "" {
		v.Error = &detail
		return v
	}

	var bare string
	if err := json.Unmarshal(rv.Error, &bare); err == nil {
		v.Error = &ErrorDetail{Type: TestFailure, Message: bare}
		return v
	}

	v.Error = &ErrorDetail{Type: TestFailure, Message: "test failed"}
	return v
}

func classifyUnparseable(out, errOut, installOutput string) RunResult {
	if json.Valid([]byte(out)) {
		return RunResult{
			Status:        Fail,
			InstallOutput: installOutput,
			Error:         &ErrorDetail{Type: InvalidTestStructure, Message: "expected a list of verdict records"},
			RawOutput:     out,
			Stderr:        errOut,
		}
	}

	kind, message := classifyStderrPrefix(errOut)
	return RunResult{
		Status:        Fail,
		InstallOutput: installOutput,
		Error:         &ErrorDetail{Type: kind, Message: message},
		RawOutput:     out,
		Stderr:        errOut,
	}
}

func classifyStderrPrefix(stderr string) (Kind, string) {
	switch {
	case strings.Contains(stderr, "SECURITY_ERROR:"):
		return SecurityViolation, lastSplit(stderr, "SECURITY_ERROR:")
	case strings.Contains(stderr, "IMPORT_ERROR:"):
		return ImportError, lastSplit(stderr, "IMPORT_ERROR:")
	case strings.Contains(stderr, "RUNTIME_ERROR:"):
		return RuntimeError, lastSplit(stderr, "RUNTIME_ERROR:")
	default:
		return ParseError, stderr
	}
}

func lastSplit(s, sep string) string {
	parts := strings.Split(s, sep)
	return strings.TrimSpace(parts[len(parts)-1])
}
