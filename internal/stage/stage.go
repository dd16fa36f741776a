// Package stage owns the host-side scratch directory for one submission:
// acquiring it, writing generated artefacts into it, and guaranteeing its
// removal on every exit path, including when the caller never gets as far
// as uploading it.
package stage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Scratch is a host-side working directory for one submission. Close
// removes it; it is safe to call Close multiple times.
type Scratch struct {
	dir    string
	closed bool
}

// Acquire creates a fresh scratch directory. The caller must defer Close
// immediately, before any error path can skip it.
func Acquire() (*Scratch, error) {
	dir, err := os.MkdirTemp("", "sandboxd-*")
	if err != nil {
		return nil, fmt.Errorf("stage: acquire scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Dir returns the scratch directory's host path.
func (s *Scratch) Dir() string {
	return s.dir
}

// WriteFile writes content to name, relative to the scratch root.
func (s *Scratch) WriteFile(name string, content []byte) error {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("stage: write %s: %w", name, err)
	}
	return nil
}

// Close removes the scratch directory. Idempotent.
func (s *Scratch) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("stage: remove scratch dir %s: %w", s.dir, err)
	}
	return nil
}
