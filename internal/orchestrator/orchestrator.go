// Package orchestrator implements the top-level state machine tying the
// submission validator, harness generator, whitelist resolver, sandbox
// session, file staging, and verdict mapper together for one submission:
// Received -> Validated -> Provisioned -> Installed -> Whitelisted ->
// Staged -> Executed -> Reported -> Torn-down.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/akshayaggarwal99/sandboxd/internal/harness"
	"github.com/akshayaggarwal99/sandboxd/internal/sandbox"
	"github.com/akshayaggarwal99/sandboxd/internal/stage"
	"github.com/akshayaggarwal99/sandboxd/internal/telemetry"
	"github.com/akshayaggarwal99/sandboxd/internal/validator"
	"github.com/akshayaggarwal99/sandboxd/internal/verdict"
	"github.com/akshayaggarwal99/sandboxd/internal/whitelist"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedLanguage is returned when a submission names a language
// other than the single supported interpreter family.
var ErrUnsupportedLanguage = errors.New("orchestrator: only python is supported")

// containerWorkDir is where the staged working tree is unpacked inside the
// sandbox, matching the original runner's /mnt/app mount point.
const containerWorkDir = "/mnt/app"

const defaultTimeoutMS = 2000

// Orchestrator runs submissions end to end against one Docker-backed
// sandbox provisioner.
type Orchestrator struct {
	Provisioner        sandbox.Provisioner
	DefaultImage       string
	DefaultTestTimeout time.Duration
}

// New builds an Orchestrator. defaultTestTimeout is used when a submission
// omits timeout_ms.
func New(provisioner sandbox.Provisioner, defaultImage string, defaultTestTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		Provisioner:        provisioner,
		DefaultImage:       defaultImage,
		DefaultTestTimeout: defaultTestTimeout,
	}
}

// Run executes sub to completion. The returned error distinguishes
// submission errors (typed *validator.* errors or ErrUnsupportedLanguage,
// returned before any container exists) and infrastructure errors
// (wrapped session failures) from execution errors (install failure,
// driver crash), which are reported as a RunResult with Status: fail and
// never surface as a Go error. Teardown always runs and is logged, but
// only becomes the returned error when nothing earlier already failed.
func (o *Orchestrator) Run(ctx context.Context, sub Submission) (result verdict.RunResult, err error) {
	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("orchestrator: recovered panic")
			err = fmt.Errorf("orchestrator: panic: %v", r)
		}
	}()

	rootCtx, rootSpan := telemetry.Tracer().Start(ctx, "orchestrator.run")
	defer rootSpan.End()
	ctx = rootCtx

	if sub.Language != "python" {
		return verdict.RunResult{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, sub.Language)
	}

	if verr := stageOp(ctx, "validate", func() error {
		return validator.Validate(sub.Code, sub.ScriptName, sub.ScriptParameters)
	}); verr != nil {
		return verdict.RunResult{}, fmt.Errorf("orchestrator: validate submission: %w", verr)
	}

	image := sub.DockerImage
	if image == "" {
		image = o.DefaultImage
	}

	var session sandbox.Session
	if provErr := stageOp(ctx, "provision", func() error {
		s, pErr := o.Provisioner.Provision(ctx, image)
		if pErr != nil {
			return pErr
		}
		session = s
		return nil
	}); provErr != nil {
		return verdict.RunResult{}, fmt.Errorf("orchestrator: provision sandbox: %w", provErr)
	}

	defer func() {
		tErr := session.Teardown(context.Background())
		if tErr != nil {
			logger.Error().Err(tErr).Msg("orchestrator: teardown failed")
			if err == nil {
				err = fmt.Errorf("orchestrator: teardown: %w", tErr)
			}
		}
	}()

	var installOutput string
	installErr := stageOp(ctx, "install", func() error {
		out, iErr := session.Install(ctx, sub.Libraries)
		installOutput = out
		return iErr
	})

	var installFailure *sandbox.InstallError
	if errors.As(installErr, &installFailure) {
		logger.Warn().Str("output", installFailure.Output).Msg("orchestrator: dependency install failed")
		return verdict.RunResult{
			Status:        verdict.Fail,
			InstallOutput: installOutput,
			Error:         &verdict.ErrorDetail{Type: verdict.RuntimeError, Message: installFailure.Output},
		}, nil
	}
	if installErr != nil {
		return verdict.RunResult{}, fmt.Errorf("orchestrator: install libraries: %w", installErr)
	}

	var manifest whitelist.Manifest
	if werr := stageOp(ctx, "whitelist", func() error {
		m, rErr := whitelist.Resolve(ctx, session, sub.Libraries)
		if rErr != nil {
			return rErr
		}
		manifest = m
		return writeManifest(ctx, session, manifest)
	}); werr != nil {
		return verdict.RunResult{}, fmt.Errorf("orchestrator: resolve whitelist: %w", werr)
	}

	scratch, err := stage.Acquire()
	if err != nil {
		return verdict.RunResult{}, fmt.Errorf("orchestrator: acquire scratch dir: %w", err)
	}
	defer scratch.Close()

	timeoutMS := sub.TimeoutMS
	if timeoutMS <= 0 {
		timeoutMS = int(o.DefaultTestTimeout / time.Millisecond)
	}
	if timeoutMS <= 0 {
		timeoutMS = defaultTimeoutMS
	}

	subjectPath := containerWorkDir + "/main.py"
	if serr := stageOp(ctx, "stage", func() error {
		subjectBytes, genErr := harness.GenerateSubject(sub.Code, sub.ScriptName)
		if genErr != nil {
			return genErr
		}
		if wErr := scratch.WriteFile("main.py", subjectBytes); wErr != nil {
			return wErr
		}

		driverBytes, genErr := harness.GenerateDriver(buildCases(sub.Tests), float64(timeoutMS)/1000.0, subjectPath)
		if genErr != nil {
			return genErr
		}
		return scratch.WriteFile("driver.py", driverBytes)
	}); serr != nil {
		return verdict.RunResult{}, fmt.Errorf("orchestrator: render harness artefacts: %w", serr)
	}

	if uerr := stageOp(ctx, "upload", func() error {
		return session.Upload(ctx, scratch.Dir(), containerWorkDir)
	}); uerr != nil {
		return verdict.RunResult{}, fmt.Errorf("orchestrator: upload working tree: %w", uerr)
	}

	var stdout, stderr []byte
	var exitCode int
	if eerr := stageOp(ctx, "execute", func() error {
		out, errOut, code, xErr := session.Exec(ctx, []string{"python3", containerWorkDir + "/driver.py"})
		stdout, stderr, exitCode = out, errOut, code
		return xErr
	}); eerr != nil {
		return verdict.RunResult{}, fmt.Errorf("orchestrator: exec driver harness: %w", eerr)
	}

	var runResult verdict.RunResult
	_ = stageOp(ctx, "report", func() error {
		runResult = verdict.Classify(stdout, stderr, exitCode, installOutput)
		return nil
	})

	return runResult, nil
}

// stageOp wraps one state-machine transition in its own span, named to
// match the stages in spec.md's state diagram, and notifies any progress
// listener attached to ctx before running fn.
func stageOp(ctx context.Context, name string, fn func() error) error {
	_, span := telemetry.Tracer().Start(ctx, name)
	defer span.End()

	progressFromContext(ctx)(ProgressEvent{Stage: name})
	return fn()
}

// ProgressEvent names one state-machine transition as Run reaches it.
type ProgressEvent struct {
	Stage string `json:"stage"`
}

// ProgressFunc receives one ProgressEvent per stage transition.
type ProgressFunc func(ProgressEvent)

type progressCtxKey struct{}

// WithProgress returns a context that causes Run to invoke fn once per
// stage transition, for callers that want to stream progress (the
// websocket endpoint in internal/apiserver) rather than just awaiting the
// final RunResult.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressCtxKey{}, fn)
}

func progressFromContext(ctx context.Context) ProgressFunc {
	if fn, ok := ctx.Value(progressCtxKey{}).(ProgressFunc); ok && fn != nil {
		return fn
	}
	return func(ProgressEvent) {}
}

// buildCases converts the submission's wire-shaped test cases into the
// harness package's driver input, defaulting missing identifiers to their
// 1-based position.
func buildCases(tests []TestCase) []harness.TestCase {
	cases := make([]harness.TestCase, 0, len(tests))
	for i, t := range tests {
		id := t.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}

		var expected json.RawMessage
		if len(t.Results) > 0 {
			expected = t.Results[0]
		} else {
			expected = json.RawMessage("null")
		}

		cases = append(cases, harness.TestCase{ID: id, Args: t.Parameters, Expected: expected})
	}
	return cases
}

// writeManifest uploads the final, merged whitelist manifest to the
// session's import-audit-hook-visible path, overwriting whatever the
// image baked in or the live probe produced with the requested-library
// union whitelist.Resolve computed.
func writeManifest(ctx context.Context, session sandbox.Session, manifest whitelist.Manifest) error {
	names := manifest.Slice()
	sort.Strings(names)

	body, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	dir, err := os.MkdirTemp("", "sandboxd-manifest-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	if err := os.WriteFile(filepath.Join(dir, "allowed_modules.json"), body, 0o644); err != nil {
		return fmt.Errorf("write manifest file: %w", err)
	}

	return session.Upload(ctx, dir, "/")
}
