package verdict_test

import (
	"testing"

	"github.com/akshayaggarwal99/sandboxd/internal/verdict"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_EmptyStdoutAndStderr(t *testing.T) {
	r := verdict.Classify(nil, nil, 1, "installed")
	assert.Equal(t, verdict.Fail, r.Status)
	require.NotNil(t, r.Error)
	assert.Equal(t, verdict.EmptyOutput, r.Error.Type)
}

func TestClassify_EmptyStdoutNonEmptyStderr(t *testing.T) {
	r := verdict.Classify(nil, []byte("traceback explosion"), 1, "")
	assert.Equal(t, verdict.Fail, r.Status)
	require.NotNil(t, r.Error)
	assert.Equal(t, verdict.RuntimeError, r.Error.Type)
	assert.Equal(t, "traceback explosion", r.Error.Message)
}

func TestClassify_SuccessfulVerdictArray(t *testing.T) {
	stdout := `[{"id":"1","name":"test_case_1","status":"success"}]`
	r := verdict.Classify([]byte(stdout), nil, 0, "ok")
	assert.Equal(t, verdict.Success, r.Status)
	require.Len(t, r.TestStatuses, 1)
	assert.Equal(t, "1", r.TestStatuses[0].ID)
}

func TestClassify_AnyFailingVerdictFailsTheEnvelope(t *testing.T) {
	stdout := `[{"id":"1","name":"a","status":"success"},{"id":"2","name":"b","status":"fail","error":"bad"}]`
	r := verdict.Classify([]byte(stdout), nil, 0, "")
	assert.Equal(t, verdict.Fail, r.Status)
}

func TestClassify_BareStringErrorRewrittenToTestFailure(t *testing.T) {
	stdout := `[{"id":"2","name":"b","status":"fail","error":"expected 21, got 20"}]`
	r := verdict.Classify([]byte(stdout), nil, 0, "")
	require.Len(t, r.TestStatuses, 1)
	require.NotNil(t, r.TestStatuses[0].Error)
	assert.Equal(t, verdict.TestFailure, r.TestStatuses[0].Error.Type)
	assert.Equal(t, "expected 21, got 20", r.TestStatuses[0].Error.Message)
}

func TestClassify_StructuredErrorPreserved(t *testing.T) {
	stdout := `[{"id":"2","name":"b","status":"fail","error":{"type":"SECURITY_VIOLATION","message":"import of module 'os' is not permitted"}}]`
	r := verdict.Classify([]byte(stdout), nil, 0, "")
	require.NotNil(t, r.TestStatuses[0].Error)
	assert.Equal(t, verdict.SecurityViolation, r.TestStatuses[0].Error.Type)
}

func TestClassify_NonZeroExitWithValidArrayIsStillFail(t *testing.T) {
	stdout := `[{"id":"1","name":"a","status":"success"}]`
	r := verdict.Classify([]byte(stdout), nil, 1, "")
	assert.Equal(t, verdict.Fail, r.Status)
}

func TestClassify_NonArrayJSONIsInvalidTestStructure(t *testing.T) {
	r := verdict.Classify([]byte(`{"not": "a list"}`), nil, 1, "")
	require.NotNil(t, r.Error)
	assert.Equal(t, verdict.InvalidTestStructure, r.Error.Type)
}

func TestClassify_UnparseableStdoutFallsBackToStderrPrefix(t *testing.T) {
	r := verdict.Classify([]byte("not json"), []byte("SECURITY_ERROR: blocked import"), 1, "")
	require.NotNil(t, r.Error)
	assert.Equal(t, verdict.SecurityViolation, r.Error.Type)
	assert.Equal(t, "blocked import", r.Error.Message)
}

func TestClassify_UnparseableStdoutNoRecognisedPrefixIsParseError(t *testing.T) {
	r := verdict.Classify([]byte("not json"), []byte("something unexpected"), 1, "")
	require.NotNil(t, r.Error)
	assert.Equal(t, verdict.ParseError, r.Error.Type)
}
