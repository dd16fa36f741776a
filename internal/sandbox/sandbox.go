// Package sandbox defines the narrow lifecycle interface one ephemeral
// container session exposes to the orchestrator: provision, install
// dependencies, upload a working tree, exec a command with demultiplexed
// output, and tear down. Docker is the only backend, in
// internal/sandbox/docker.
package sandbox

import (
	"context"
	"errors"
	"fmt"
)

// ErrTornDown is returned by any Session operation invoked after Teardown.
var ErrTornDown = errors.New("sandbox: session has been torn down")

// InstallError wraps a non-zero dependency-installer exit with its combined
// output, verbatim.
type InstallError struct {
	Output string
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("sandbox: install failed: %s", e.Output)
}

// Session owns one container's full lifecycle. Implementations must make
// Teardown idempotent and safe to call on a partially provisioned session,
// and must reject every operation after Teardown with ErrTornDown.
type Session interface {
	// Install runs the package installer for the given external library
	// identifiers and returns its combined output. A non-zero installer
	// exit returns *InstallError; the output is still returned verbatim on
	// that error so the caller can surface it as a diagnostic.
	Install(ctx context.Context, libraries []string) (diagnostics string, err error)

	// Upload ensures containerDir exists, packs hostDir into a tar archive
	// rooted at ".", and writes it into the container at containerDir.
	Upload(ctx context.Context, hostDir, containerDir string) error

	// Exec runs argv inside the container and returns its demultiplexed
	// stdout and stderr separately, alongside the exit code. stdout must
	// never be contaminated by stderr bytes.
	Exec(ctx context.Context, argv []string) (stdout, stderr []byte, exitCode int, err error)

	// Teardown kills and removes the container. Idempotent.
	Teardown(ctx context.Context) error
}

// Provisioner starts new Sessions.
type Provisioner interface {
	// Provision starts a long-lived container from image and returns a
	// Session bound to it. The container runs an idle keep-alive command;
	// callers must use Exec to run anything in it.
	Provision(ctx context.Context, image string) (Session, error)

	// Healthy reports whether the backing container runtime is reachable.
	Healthy(ctx context.Context) error

	// Close releases process-wide resources held by the provisioner.
	Close() error
}
