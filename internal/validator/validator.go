// Package validator statically vets an untrusted submission before a
// sandbox is ever provisioned for it.
//
// This is the first-line defence described by the orchestrator's security
// model: it rejects submissions that plainly cannot satisfy the required
// function signature, or that reach for a hard-blocked module or builtin
// at module scope. It is not the authoritative boundary — the in-container
// audit hook installed by the subject harness is — so this package only
// needs to be as precise as a line-oriented scan of Python source allows.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrSyntax indicates the submission could not be parsed as Python source.
var ErrSyntax = errors.New("syntax error in submission")

// ErrFunctionMissing indicates no top-level function with the required
// name was found.
var ErrFunctionMissing = errors.New("function not found in submission")

// ParamMissingError names the required parameters absent from the
// submitted function's signature.
type ParamMissingError struct {
	FunctionName string
	Missing      []string
}

func (e *ParamMissingError) Error() string {
	return fmt.Sprintf("function %q is missing required parameters: %s", e.FunctionName, strings.Join(e.Missing, ", "))
}

// ForbiddenConstructError names a hard-blocked module or builtin found at
// module scope.
type ForbiddenConstructError struct {
	Construct string
	Line      string
}

func (e *ForbiddenConstructError) Error() string {
	return fmt.Sprintf("forbidden construct %q at module scope: %s", e.Construct, strings.TrimSpace(e.Line))
}

// hardBlockedModules must never be importable, regardless of whitelist
// contents. Mirrors the audit hook's BLACKLIST core.
var hardBlockedModules = map[string]bool{
	"os":         true,
	"sys":        true,
	"subprocess": true,
	"socket":     true,
}

// hardBlockedBuiltins must never be called at module scope.
var hardBlockedBuiltins = map[string]bool{
	"eval":        true,
	"exec":        true,
	"compile":     true,
	"open":        true,
	"__import__":  true,
}

var (
	defRe        = regexp.MustCompile(`(?m)^def\s+([A-Za-z_]\w*)\s*\(`)
	importRe     = regexp.MustCompile(`^import\s+([A-Za-z_][\w.]*)`)
	fromImportRe = regexp.MustCompile(`^from\s+([A-Za-z_][\w.]*)\s+import\b`)
)

func builtinCallRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*\(`)
}

// Validate parses source, locates a top-level function named functionName,
// and checks that its declared parameters are a superset of
// requiredParams. It additionally scans module-scope statements for
// hard-blocked imports and builtin calls.
//
// Returns ErrSyntax, ErrFunctionMissing, *ParamMissingError, or
// *ForbiddenConstructError on failure.
func Validate(source, functionName string, requiredParams []string) error {
	if err := checkBalanced(source); err != nil {
		return err
	}

	fn, err := findFunction(source, functionName)
	if err != nil {
		return err
	}

	var missing []string
	for _, want := range requiredParams {
		if !contains(fn.params, want) {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return &ParamMissingError{FunctionName: functionName, Missing: missing}
	}

	return scanModuleScope(source)
}

type functionSig struct {
	name   string
	params []string
}

// findFunction scans top-level `def name(...)` declarations (lines with no
// leading whitespace) and returns the one matching functionName.
func findFunction(source, functionName string) (*functionSig, error) {
	lines := strings.Split(source, "\n")
	offsets := make([]int, 0, len(lines))
	offset := 0
	for _, l := range lines {
		offsets = append(offsets, offset)
		offset += len(l) + 1
	}

	matches := defRe.FindAllStringSubmatchIndex(source, -1)
	for _, m := range matches {
		start := m[0]
		lineIdx := lineAt(offsets, start)
		if lineIdx >= 0 && len(lines[lineIdx]) > 0 && (lines[lineIdx][0] == ' ' || lines[lineIdx][0] == '\t') {
			// indented def: not a top-level declaration
			continue
		}

		name := source[m[2]:m[3]]
		openParen := m[1] - 1
		params, err := extractParams(source, openParen)
		if err != nil {
			return nil, err
		}
		if name == functionName {
			return &functionSig{name: name, params: params}, nil
		}
	}

	return nil, ErrFunctionMissing
}

func lineAt(offsets []int, pos int) int {
	for i := len(offsets) - 1; i >= 0; i-- {
		if offsets[i] <= pos {
			return i
		}
	}
	return -1
}

// extractParams walks the parenthesised parameter list starting at
// openParen (the index of '(') and returns the cleaned parameter names.
func extractParams(source string, openParen int) ([]string, error) {
	depth := 0
	start := -1
	var raw []string
	for i := openParen; i < len(source); i++ {
		switch source[i] {
		case '(', '[', '{':
			if source[i] == '(' && depth == 0 {
				start = i + 1
			}
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 && source[i] == ')' {
				raw = splitArgs(source[start:i])
				return cleanParams(raw), nil
			}
			if depth < 0 {
				return nil, ErrSyntax
			}
		}
	}
	return nil, ErrSyntax
}

// splitArgs splits a parameter list on top-level commas, respecting
// nested brackets so default values like `x=[1,2]` aren't split.
func splitArgs(s string) []string {
	var out []string
	depth := 0
	last := 0
	for i, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	if strings.TrimSpace(s[last:]) != "" {
		out = append(out, s[last:])
	}
	return out
}

func cleanParams(raw []string) []string {
	var out []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		p = strings.TrimLeft(p, "*")
		if idx := strings.Index(p, "="); idx >= 0 {
			p = p[:idx]
		}
		if idx := strings.Index(p, ":"); idx >= 0 {
			p = p[:idx]
		}
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// scanModuleScope rejects hard-blocked imports or builtin calls appearing
// on lines with no leading whitespace (i.e. not nested inside a function
// or class body). Occurrences nested inside a function are left for the
// in-container audit hook, which is authoritative.
func scanModuleScope(source string) error {
	for _, line := range strings.Split(source, "\n") {
		if line == "" || line[0] == ' ' || line[0] == '\t' {
			continue
		}

		if m := importRe.FindStringSubmatch(line); m != nil {
			root := strings.SplitN(m[1], ".", 2)[0]
			if hardBlockedModules[root] {
				return &ForbiddenConstructError{Construct: "import " + root, Line: line}
			}
		}
		if m := fromImportRe.FindStringSubmatch(line); m != nil {
			root := strings.SplitN(m[1], ".", 2)[0]
			if hardBlockedModules[root] {
				return &ForbiddenConstructError{Construct: "from " + root + " import", Line: line}
			}
		}
		for name := range hardBlockedBuiltins {
			if builtinCallRe(name).MatchString(line) {
				return &ForbiddenConstructError{Construct: name + "(...)", Line: line}
			}
		}
	}
	return nil
}

// checkBalanced is a minimal syntax sanity check: unbalanced brackets mean
// the source cannot be a valid Python module.
func checkBalanced(source string) error {
	depth := 0
	for _, r := range source {
		switch r {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth < 0 {
				return ErrSyntax
			}
		}
	}
	if depth != 0 {
		return ErrSyntax
	}
	return nil
}
