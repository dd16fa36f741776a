package docker_test

import (
	"context"
	"os"
	"testing"
	"time"

	sandboxdocker "github.com/akshayaggarwal99/sandboxd/internal/sandbox/docker"
	"github.com/stretchr/testify/require"
)

const testImage = "python:3.11-slim"

func newProvisioner(t *testing.T) *sandboxdocker.Provisioner {
	t.Helper()
	p, err := sandboxdocker.New("")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Healthy(ctx); err != nil {
		t.Skipf("docker daemon unreachable, skipping integration test: %v", err)
	}
	return p
}

func TestSession_ExecDemultiplexesStdoutAndStderr(t *testing.T) {
	p := newProvisioner(t)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := p.Provision(ctx, testImage)
	require.NoError(t, err)
	defer session.Teardown(ctx)

	stdout, stderr, exitCode, err := session.Exec(ctx, []string{"sh", "-c", "echo out-line; echo err-line 1>&2"})
	require.NoError(t, err)
	require.Equal(t, 0, exitCode)
	require.Equal(t, "out-line\n", string(stdout))
	require.Equal(t, "err-line\n", string(stderr))
}

func TestSession_TeardownIsIdempotent(t *testing.T) {
	p := newProvisioner(t)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := p.Provision(ctx, testImage)
	require.NoError(t, err)

	require.NoError(t, session.Teardown(ctx))
	require.NoError(t, session.Teardown(ctx))
}

func TestSession_OperationsFailAfterTeardown(t *testing.T) {
	p := newProvisioner(t)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := p.Provision(ctx, testImage)
	require.NoError(t, err)
	require.NoError(t, session.Teardown(ctx))

	_, _, _, err = session.Exec(ctx, []string{"true"})
	require.Error(t, err)
}

func TestSession_UploadPlacesFilesFlat(t *testing.T) {
	p := newProvisioner(t)
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	session, err := p.Provision(ctx, testImage)
	require.NoError(t, err)
	defer session.Teardown(ctx)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/main.py", []byte("print('hi')\n"), 0o644))

	require.NoError(t, session.Upload(ctx, dir, "/mnt/app"))

	stdout, _, exitCode, err := session.Exec(ctx, []string{"python3", "/mnt/app/main.py"})
	require.NoError(t, err)
	require.Equal(t, 0, exitCode)
	require.Equal(t, "hi\n", string(stdout))
}
