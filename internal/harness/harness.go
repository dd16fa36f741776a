// Package harness renders the two Python programs the sandbox executes for
// every submission: the subject harness, which wraps the submitted function
// with the audit-hook security boundary and a JSON calling convention, and
// the driver harness, which spawns the subject once per test case and
// classifies its outcome.
//
// Both are generated with text/template against typed data, never with
// fmt.Sprintf string interpolation of submission content. The submitted
// source is the only field inserted verbatim, at a single {{.UserCode}}
// sentinel; every other field is run through encoding/json first so it
// renders as a quoted, escaped literal no matter what it contains.
package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

var (
	subjectTemplate        = template.Must(template.New("subject").Parse(subjectTemplateSource))
	driverTemplate         = template.Must(template.New("driver").Parse(driverTemplateSource))
	whitelistProbeTemplate = template.Must(template.New("whitelist_probe").Parse(whitelistProbeTemplateSource))
)

// TestCase is the minimal shape the driver harness needs for one test
// invocation: an identifier, the JSON-encoded positional arguments to pass
// on argv, and the expected return value.
type TestCase struct {
	ID       string
	Args     []json.RawMessage
	Expected json.RawMessage
}

type subjectTemplateData struct {
	UserCode         string
	FunctionNameJSON string
}

// GenerateSubject renders the subject harness for a submission. userCode is
// the submission's raw Python source, inserted verbatim; functionName is
// the entry point the harness looks up in globals() after execution.
func GenerateSubject(userCode, functionName string) ([]byte, error) {
	nameJSON, err := json.Marshal(functionName)
	if err != nil {
		return nil, fmt.Errorf("harness: encode function name: %w", err)
	}

	data := subjectTemplateData{
		UserCode:         strings.TrimRight(userCode, "\n"),
		FunctionNameJSON: string(nameJSON),
	}

	var buf bytes.Buffer
	if err := subjectTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("harness: render subject: %w", err)
	}
	return buf.Bytes(), nil
}

type driverCase struct {
	ID       string            `json:"id"`
	Args     []json.RawMessage `json:"args"`
	Expected json.RawMessage   `json:"expected"`
}

type driverTemplateData struct {
	CasesJSONLiteral string
	TimeoutSec       float64
	SubjectPathJSON  string
}

// GenerateDriver renders the driver harness for a set of test cases. It
// runs subjectPath (the path the subject harness will be staged at inside
// the container) once per case via subprocess, each bounded by
// timeoutSeconds.
func GenerateDriver(cases []TestCase, timeoutSeconds float64, subjectPath string) ([]byte, error) {
	encoded := make([]driverCase, 0, len(cases))
	for _, c := range cases {
		args := c.Args
		if args == nil {
			args = []json.RawMessage{}
		}
		encoded = append(encoded, driverCase{ID: c.ID, Args: args, Expected: c.Expected})
	}

	casesJSON, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("harness: encode test cases: %w", err)
	}

	// Double-encoded: JSON's true/false/null are not valid Python literals,
	// so the array is embedded as a quoted string and parsed at runtime
	// with json.loads rather than spliced in as Python source.
	casesJSONLiteral, err := json.Marshal(string(casesJSON))
	if err != nil {
		return nil, fmt.Errorf("harness: encode test case literal: %w", err)
	}

	subjectPathJSON, err := json.Marshal(subjectPath)
	if err != nil {
		return nil, fmt.Errorf("harness: encode subject path: %w", err)
	}

	data := driverTemplateData{
		CasesJSONLiteral: string(casesJSONLiteral),
		TimeoutSec:       timeoutSeconds,
		SubjectPathJSON:  string(subjectPathJSON),
	}

	var buf bytes.Buffer
	if err := driverTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("harness: render driver: %w", err)
	}
	return buf.Bytes(), nil
}

type whitelistProbeTemplateData struct {
	RequestedLibrariesJSONLiteral string
}

// GenerateWhitelistProbe renders the introspection script that resolves the
// importable module names available inside a provisioned sandbox, plus the
// root name of each of requestedLibraries (the submission's declared
// dependencies) that imports successfully inside the sandbox.
func GenerateWhitelistProbe(requestedLibraries []string) ([]byte, error) {
	if requestedLibraries == nil {
		requestedLibraries = []string{}
	}

	requestedJSON, err := json.Marshal(requestedLibraries)
	if err != nil {
		return nil, fmt.Errorf("harness: encode requested libraries: %w", err)
	}

	requestedJSONLiteral, err := json.Marshal(string(requestedJSON))
	if err != nil {
		return nil, fmt.Errorf("harness: encode requested libraries literal: %w", err)
	}

	data := whitelistProbeTemplateData{
		RequestedLibrariesJSONLiteral: string(requestedJSONLiteral),
	}

	var buf bytes.Buffer
	if err := whitelistProbeTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("harness: render whitelist probe: %w", err)
	}
	return buf.Bytes(), nil
}
