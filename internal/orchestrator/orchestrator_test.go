package orchestrator_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/akshayaggarwal99/sandboxd/internal/orchestrator"
	"github.com/akshayaggarwal99/sandboxd/internal/sandbox"
	"github.com/akshayaggarwal99/sandboxd/internal/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execResponse struct {
	stdout   string
	stderr   string
	exitCode int
}

// fakeSession scripts Exec responses by joined argv, so tests never touch a
// real container.
type fakeSession struct {
	execResponses map[string]execResponse
	installOutput string
	installErr    error
	teardownErr   error
	teardownCalls int
	uploadCalls   []string
	driverSource  string
}

func (f *fakeSession) Install(ctx context.Context, libraries []string) (string, error) {
	return f.installOutput, f.installErr
}

func (f *fakeSession) Upload(ctx context.Context, hostDir, containerDir string) error {
	f.uploadCalls = append(f.uploadCalls, containerDir)
	if b, err := os.ReadFile(filepath.Join(hostDir, "driver.py")); err == nil {
		f.driverSource = string(b)
	}
	return nil
}

func (f *fakeSession) Exec(ctx context.Context, argv []string) ([]byte, []byte, int, error) {
	key := strings.Join(argv, " ")
	if resp, ok := f.execResponses[key]; ok {
		return []byte(resp.stdout), []byte(resp.stderr), resp.exitCode, nil
	}
	return nil, nil, 0, nil
}

func (f *fakeSession) Teardown(ctx context.Context) error {
	f.teardownCalls++
	return f.teardownErr
}

type fakeProvisioner struct {
	session    *fakeSession
	provideErr error
}

func (p *fakeProvisioner) Provision(ctx context.Context, image string) (sandbox.Session, error) {
	if p.provideErr != nil {
		return nil, p.provideErr
	}
	return p.session, nil
}

func (p *fakeProvisioner) Healthy(ctx context.Context) error { return nil }
func (p *fakeProvisioner) Close() error                      { return nil }

func baseSubmission() orchestrator.Submission {
	return orchestrator.Submission{
		Language:         "python",
		Code:             "def add(a, b):\n    return a + b\n",
		ScriptName:       "add",
		ScriptParameters: []string{"a", "b"},
		Tests: []orchestrator.TestCase{
			{Parameters: []json.RawMessage{json.RawMessage("1"), json.RawMessage("2")}, Results: []json.RawMessage{json.RawMessage("3")}},
		},
	}
}

func TestRun_RejectsUnsupportedLanguage(t *testing.T) {
	o := orchestrator.New(&fakeProvisioner{}, "python:3.11-slim", 2*time.Second)
	sub := baseSubmission()
	sub.Language = "ruby"

	_, err := o.Run(context.Background(), sub)
	require.Error(t, err)
	assert.ErrorIs(t, err, orchestrator.ErrUnsupportedLanguage)
}

func TestRun_RejectsInvalidSubmissionBeforeProvisioning(t *testing.T) {
	provisioner := &fakeProvisioner{provideErr: assert.AnError}
	o := orchestrator.New(provisioner, "python:3.11-slim", 2*time.Second)

	sub := baseSubmission()
	sub.ScriptName = "not_the_function"

	_, err := o.Run(context.Background(), sub)
	require.Error(t, err)
	// Provision must never be reached for a submission-validation failure.
	assert.Contains(t, err.Error(), "validate submission")
}

func TestRun_EndToEndSuccessWithFakeSandbox(t *testing.T) {
	session := &fakeSession{
		execResponses: map[string]execResponse{
			"cat /allowed_modules.json":  {stdout: `["json", "math"]`, exitCode: 0},
			"python3 /mnt/app/driver.py": {stdout: `[{"id":"1","name":"test_1","status":"success"}]`, exitCode: 0},
		},
	}
	o := orchestrator.New(&fakeProvisioner{session: session}, "python:3.11-slim", 2*time.Second)

	result, err := o.Run(context.Background(), baseSubmission())
	require.NoError(t, err)
	assert.Equal(t, verdict.Success, result.Status)
	require.Len(t, result.TestStatuses, 1)
	assert.Equal(t, "1", result.TestStatuses[0].ID)
	assert.Equal(t, 1, session.teardownCalls)
}

func TestRun_InstallFailureProducesFailResultNotError(t *testing.T) {
	session := &fakeSession{
		installErr: &sandbox.InstallError{Output: "ERROR: could not find a version that satisfies nope"},
		execResponses: map[string]execResponse{
			"cat /allowed_modules.json": {stdout: `["json"]`, exitCode: 0},
		},
	}
	o := orchestrator.New(&fakeProvisioner{session: session}, "python:3.11-slim", 2*time.Second)

	sub := baseSubmission()
	sub.Libraries = []string{"nope"}

	result, err := o.Run(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, verdict.Fail, result.Status)
	require.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Message, "nope")
	assert.Equal(t, 1, session.teardownCalls)
}

func TestRun_TeardownErrorSurfacesWhenNoEarlierError(t *testing.T) {
	session := &fakeSession{
		teardownErr: assert.AnError,
		execResponses: map[string]execResponse{
			"cat /allowed_modules.json":  {stdout: `["json"]`, exitCode: 0},
			"python3 /mnt/app/driver.py": {stdout: `[{"id":"1","name":"t","status":"success"}]`, exitCode: 0},
		},
	}
	o := orchestrator.New(&fakeProvisioner{session: session}, "python:3.11-slim", 2*time.Second)

	_, err := o.Run(context.Background(), baseSubmission())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teardown")
}

func TestRun_ProgressCallbackSeesEveryStage(t *testing.T) {
	session := &fakeSession{
		execResponses: map[string]execResponse{
			"cat /allowed_modules.json":  {stdout: `["json"]`, exitCode: 0},
			"python3 /mnt/app/driver.py": {stdout: `[{"id":"1","name":"t","status":"success"}]`, exitCode: 0},
		},
	}
	o := orchestrator.New(&fakeProvisioner{session: session}, "python:3.11-slim", 2*time.Second)

	var stages []string
	ctx := orchestrator.WithProgress(context.Background(), func(ev orchestrator.ProgressEvent) {
		stages = append(stages, ev.Stage)
	})

	_, err := o.Run(ctx, baseSubmission())
	require.NoError(t, err)
	assert.Equal(t, []string{"validate", "provision", "install", "whitelist", "stage", "upload", "execute", "report"}, stages)
}

func TestRun_DefaultsTestCaseIDToPosition(t *testing.T) {
	session := &fakeSession{
		execResponses: map[string]execResponse{
			"cat /allowed_modules.json": {stdout: `[]`, exitCode: 0},
		},
	}
	o := orchestrator.New(&fakeProvisioner{session: session}, "python:3.11-slim", 2*time.Second)

	sub := baseSubmission()
	sub.Tests = append(sub.Tests, orchestrator.TestCase{
		Parameters: []json.RawMessage{json.RawMessage("2"), json.RawMessage("2")},
		Results:    []json.RawMessage{json.RawMessage("4")},
	})
	// Neither case carries an explicit id, so the staged driver harness must
	// number them by position. The driver itself is not scripted: Exec is
	// keyed only by argv and returns the default empty response, so Run
	// reports an empty-output result rather than an error.
	_, err := o.Run(context.Background(), sub)
	require.NoError(t, err)
	assert.Contains(t, session.driverSource, `\"id\":\"1\"`)
	assert.Contains(t, session.driverSource, `\"id\":\"2\"`)
}
