// Package whitelist resolves the set of importable module roots available
// to a provisioned sandbox session: the pre-baked manifest an image ships
// with, or a live introspection script run inside the session, unioned
// with the submission's requested libraries either way.
package whitelist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akshayaggarwal99/sandboxd/internal/harness"
	"github.com/akshayaggarwal99/sandboxd/internal/sandbox"
)

// ManifestPath is the well-known in-container location of the resolved
// whitelist, read by the subject harness before it installs the audit
// hook.
const ManifestPath = "/allowed_modules.json"

const probeScratchDir = "/tmp/sandboxd-whitelist-probe"

// Manifest is the resolved set of module-root names admissible to the
// in-container import audit hook.
type Manifest struct {
	Modules map[string]struct{}
}

// Contains reports whether root is in the manifest.
func (m Manifest) Contains(root string) bool {
	_, ok := m.Modules[root]
	return ok
}

// Slice returns the manifest's contents as a sorted-free slice, suitable
// for writing back out as JSON.
func (m Manifest) Slice() []string {
	out := make([]string, 0, len(m.Modules))
	for name := range m.Modules {
		out = append(out, name)
	}
	return out
}

func newManifest(names []string) Manifest {
	m := Manifest{Modules: make(map[string]struct{}, len(names))}
	for _, n := range names {
		m.Modules[n] = struct{}{}
	}
	return m
}

// Resolve determines the importable module set for session. It first tries
// to read a pre-baked manifest at ManifestPath; if that is absent or
// malformed, it falls back to uploading and running a generated
// introspection script. Either way, requestedLibraries is unioned into the
// result so a freshly installed dependency is immediately importable.
func Resolve(ctx context.Context, session sandbox.Session, requestedLibraries []string) (Manifest, error) {
	names, err := readPrebaked(ctx, session)
	if err != nil {
		names, err = liveGenerate(ctx, session, requestedLibraries)
		if err != nil {
			return Manifest{}, fmt.Errorf("whitelist: resolve: %w", err)
		}
	}

	manifest := newManifest(names)
	for _, lib := range requestedLibraries {
		manifest.Modules[rootOf(lib)] = struct{}{}
	}
	return manifest, nil
}

func readPrebaked(ctx context.Context, session sandbox.Session) ([]string, error) {
	stdout, _, exitCode, err := session.Exec(ctx, []string{"cat", ManifestPath})
	if err != nil {
		return nil, fmt.Errorf("exec cat %s: %w", ManifestPath, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%s not present in image", ManifestPath)
	}

	var names []string
	if err := json.Unmarshal(stdout, &names); err != nil {
		return nil, fmt.Errorf("%s is not a well-formed JSON array: %w", ManifestPath, err)
	}
	return names, nil
}

// liveGenerate uploads the whitelist probe script and runs it so it writes
// ManifestPath itself, then reads it back.
func liveGenerate(ctx context.Context, session sandbox.Session, requestedLibraries []string) ([]string, error) {
	script, err := harness.GenerateWhitelistProbe(requestedLibraries)
	if err != nil {
		return nil, fmt.Errorf("generate probe: %w", err)
	}

	scratch, err := os.MkdirTemp("", "sandboxd-whitelist-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	probePath := filepath.Join(scratch, "probe.py")
	if err := os.WriteFile(probePath, script, 0o644); err != nil {
		return nil, fmt.Errorf("write probe script: %w", err)
	}

	if err := session.Upload(ctx, scratch, probeScratchDir); err != nil {
		return nil, fmt.Errorf("upload probe: %w", err)
	}

	_, stderr, exitCode, err := session.Exec(ctx, []string{"python3", probeScratchDir + "/probe.py"})
	if err != nil {
		return nil, fmt.Errorf("exec probe: %w", err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("probe script failed: %s", string(stderr))
	}

	return readPrebaked(ctx, session)
}

func rootOf(lib string) string {
	for _, sep := range []string{">=", "==", "<=", "~=", "<", ">"} {
		if idx := strings.Index(lib, sep); idx >= 0 {
			lib = lib[:idx]
		}
	}
	return strings.TrimSpace(lib)
}
