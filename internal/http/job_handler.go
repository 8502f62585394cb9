package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/example/lounge-reconciler/internal/jobs"
	"github.com/example/lounge-reconciler/internal/scheduler"
)

type jobRunner interface {
	RunNow(ctx context.Context, name string) (jobs.Report, error)
	Jobs() []scheduler.JobInfo
}

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// JobHandler serves manual triggers and job listings.
type JobHandler struct {
	runner    jobRunner
	responder responder
	logger    *slog.Logger
}

// NewJobHandler wires the handler to the scheduler.
func NewJobHandler(runner jobRunner, logger *slog.Logger) *JobHandler {
	base := defaultLogger(logger)
	return &JobHandler{runner: runner, responder: newResponder(base), logger: base}
}

func (h *JobHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "JobHandler", operation, attrs...)
}

// List writes the registered jobs.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.runner == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, jobListResponse{Jobs: h.runner.Jobs()})
}

// Run triggers the job named in the request context.
func (h *JobHandler) Run(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.runner == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	name, ok := JobNameFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingJobName)
		return
	}

	logger := h.log(r.Context(), "Run", "job", name)
	logger.InfoContext(r.Context(), "manual job trigger")

	// The run outlives a disconnecting client; the scheduler bounds it.
	report, err := h.runner.RunNow(context.WithoutCancel(r.Context()), name)
	if report.RunID == "" {
		h.responder.handleRunError(r.Context(), w, err)
		return
	}

	resp := runResponse{Report: report}
	status := http.StatusOK
	if err != nil {
		logger.WarnContext(r.Context(), "manual run finished with errors", "error", err)
		resp.Error = err.Error()
		status = http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
	}
	h.responder.writeJSON(r.Context(), w, status, resp)
}

// HealthHandler serves liveness checks.
type HealthHandler struct {
	store     Pinger
	storeName string
	runner    jobRunner
	responder responder
}

// NewHealthHandler reports on store and, when runner is set, on scheduled jobs.
func NewHealthHandler(store Pinger, storeName string, runner jobRunner, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, storeName: storeName, runner: runner, responder: newResponder(defaultLogger(logger))}
}

// Check writes the health status.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: h.storeName}
	status := http.StatusOK
	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			h.responder.loggerFor(r.Context()).WarnContext(r.Context(), "store ping failed", "error", err)
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	if h.runner != nil {
		resp.Jobs = h.runner.Jobs()
	}
	h.responder.writeJSON(r.Context(), w, status, resp)
}

type jobListResponse struct {
	Jobs []scheduler.JobInfo `json:"jobs"`
}

type runResponse struct {
	Report jobs.Report `json:"report"`
	Error  string      `json:"error,omitempty"`
}

type healthResponse struct {
	Status string              `json:"status"`
	Store  string              `json:"store,omitempty"`
	Jobs   []scheduler.JobInfo `json:"jobs,omitempty"`
}
