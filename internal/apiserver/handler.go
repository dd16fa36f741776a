// Package apiserver exposes the orchestrator over HTTP: a synchronous
// submission endpoint, a progress-streaming websocket, and a health
// check, adapted from boxed/internal/api/handler.go's Echo-based Handler.
package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/akshayaggarwal99/sandboxd/internal/orchestrator"
	"github.com/akshayaggarwal99/sandboxd/internal/validator"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// apiKeyHeader is the header submissions authenticate with, analogous to
// the teacher's X-Boxed-API-Key.
const apiKeyHeader = "X-Sandboxd-API-Key"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler wires one Orchestrator to an Echo router. It owns the
// fixed-size worker pool spec.md §5 requires: POST /v1/run blocks on a
// semaphore slot before running a submission, so at most WorkerPoolSize
// submissions execute concurrently regardless of how many requests the
// HTTP server itself is handling.
type Handler struct {
	orchestrator *orchestrator.Orchestrator
	apiKey       string
	sem          chan struct{}
}

// NewHandler builds a Handler. apiKey, when non-empty, is required on
// every /v1 request. workerPoolSize bounds concurrent submissions.
func NewHandler(o *orchestrator.Orchestrator, apiKey string, workerPoolSize int) *Handler {
	if workerPoolSize <= 0 {
		workerPoolSize = 1
	}
	return &Handler{
		orchestrator: o,
		apiKey:       apiKey,
		sem:          make(chan struct{}, workerPoolSize),
	}
}

// RegisterRoutes mounts every route this handler serves onto e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.healthz)

	v1 := e.Group("/v1")
	if h.apiKey != "" {
		v1.Use(h.authMiddleware)
	}
	v1.POST("/run", h.runSubmission)
	v1.GET("/run/stream", h.streamRun)
}

func (h *Handler) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Request().Header.Get(apiKeyHeader)
		if key == "" {
			key = c.QueryParam("api_key")
		}
		if key != h.apiKey {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
		}
		return next(c)
	}
}

func (h *Handler) healthz(c echo.Context) error {
	if err := h.orchestrator.Provisioner.Healthy(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// runSubmission is the single synchronous submission endpoint, matching
// the original Flask /run handler's blocking-on-future.result() contract:
// the HTTP response IS the RunResult, not a handle to poll later.
func (h *Handler) runSubmission(c echo.Context) error {
	var sub orchestrator.Submission
	if err := c.Bind(&sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request").SetInternal(err)
	}

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-c.Request().Context().Done():
		return echo.NewHTTPError(http.StatusRequestTimeout, "request cancelled while queued")
	}

	result, err := h.orchestrator.Run(c.Request().Context(), sub)
	if err != nil {
		return mapOrchestratorError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// streamRun upgrades to a websocket, reads one JSON submission message,
// and streams a ProgressEvent per stage transition followed by the final
// RunResult — a one-directional generalization of the teacher's
// interactSandbox two-goroutine REPL pipe, now piping orchestrator
// progress instead of a shell session. Per-test-case verdicts are not
// streamed incrementally: the driver harness reports them all at once
// when the Python process exits, so the final RunResult's test_statuses
// array is sent as a whole after the "report" stage event rather than one
// frame per completed case.
func (h *Handler) streamRun(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	_, msg, err := ws.ReadMessage()
	if err != nil {
		return nil
	}

	var sub orchestrator.Submission
	if err := json.Unmarshal(msg, &sub); err != nil {
		_ = ws.WriteJSON(map[string]string{"error": "invalid submission: " + err.Error()})
		return nil
	}

	select {
	case h.sem <- struct{}{}:
		defer func() { <-h.sem }()
	case <-c.Request().Context().Done():
		_ = ws.WriteJSON(map[string]string{"error": "cancelled while queued"})
		return nil
	}

	ctx := orchestrator.WithProgress(c.Request().Context(), func(ev orchestrator.ProgressEvent) {
		if werr := ws.WriteJSON(ev); werr != nil {
			log.Warn().Err(werr).Msg("apiserver: progress write failed")
		}
	})

	result, runErr := h.orchestrator.Run(ctx, sub)
	if runErr != nil {
		_ = ws.WriteJSON(map[string]string{"error": runErr.Error()})
		return nil
	}
	return ws.WriteJSON(result)
}

// mapOrchestratorError partitions orchestrator.Run's error into the 4xx
// submission-error class and the 5xx infrastructure-error class, per
// spec.md §7.
func mapOrchestratorError(err error) error {
	var paramErr *validator.ParamMissingError
	var forbiddenErr *validator.ForbiddenConstructError

	isSubmissionError := errors.Is(err, orchestrator.ErrUnsupportedLanguage) ||
		errors.Is(err, validator.ErrSyntax) ||
		errors.Is(err, validator.ErrFunctionMissing) ||
		errors.As(err, &paramErr) ||
		errors.As(err, &forbiddenErr)

	if isSubmissionError {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
