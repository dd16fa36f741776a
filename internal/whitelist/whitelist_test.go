package whitelist_test

import (
	"context"
	"testing"

	"github.com/akshayaggarwal99/sandboxd/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession is a minimal in-memory sandbox.Session stand-in that answers
// exec/upload calls from a small scripted table, enough to drive Resolve
// without a real container.
type fakeSession struct {
	catOutput   string
	catExit     int
	uploadedDir string
	probeOutput string
}

func (f *fakeSession) Install(ctx context.Context, libs []string) (string, error) { return "", nil }

func (f *fakeSession) Upload(ctx context.Context, hostDir, containerDir string) error {
	f.uploadedDir = containerDir
	return nil
}

func (f *fakeSession) Exec(ctx context.Context, argv []string) ([]byte, []byte, int, error) {
	if len(argv) >= 2 && argv[0] == "cat" {
		if f.uploadedDir != "" || f.probeOutput != "" {
			return []byte(f.probeOutput), nil, 0, nil
		}
		return []byte(f.catOutput), nil, f.catExit, nil
	}
	if len(argv) >= 1 && argv[0] == "python3" {
		f.probeOutput = `["numpy", "json", "pandas"]`
		return nil, nil, 0, nil
	}
	return nil, nil, 0, nil
}

func (f *fakeSession) Teardown(ctx context.Context) error { return nil }

func TestResolve_PrebakedManifestWins(t *testing.T) {
	session := &fakeSession{catOutput: `["json", "math"]`, catExit: 0}
	manifest, err := whitelist.Resolve(context.Background(), session, []string{"requests"})
	require.NoError(t, err)

	assert.True(t, manifest.Contains("json"))
	assert.True(t, manifest.Contains("math"))
	assert.True(t, manifest.Contains("requests"))
}

func TestResolve_FallsBackToLiveGenerationOnMissingManifest(t *testing.T) {
	session := &fakeSession{catExit: 1}
	manifest, err := whitelist.Resolve(context.Background(), session, []string{"pandas>=2.0"})
	require.NoError(t, err)

	assert.True(t, manifest.Contains("numpy"))
	assert.True(t, manifest.Contains("pandas"))
}

func TestResolve_RequestedLibrariesAlwaysUnioned(t *testing.T) {
	session := &fakeSession{catOutput: `[]`, catExit: 0}
	manifest, err := whitelist.Resolve(context.Background(), session, []string{"scikit-learn==1.2.0"})
	require.NoError(t, err)

	assert.True(t, manifest.Contains("scikit-learn"))
}
