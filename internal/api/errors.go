package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/moogar0880/problems"

	"github.com/valter-silva-au/opsboard/internal/core"
)

const problemContentType = "application/problem+json"

// taskProblem extends the RFC 7807 document with task error context.
type taskProblem struct {
	*problems.Problem
	Kind              core.ErrorKind `json:"kind,omitempty"`
	TaskID            string         `json:"task_id,omitempty"`
	ConflictingTaskID string         `json:"conflicting_task_id,omitempty"`
	Retryable         bool           `json:"retryable,omitempty"`
}

func writeProblem(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", problemContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write problem response", "error", err)
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	problem := problems.NewStatusProblem(http.StatusBadRequest).
		WithInstance(r.URL.Path).
		WithType("validation_error").
		WithDetail(detail)
	writeProblem(w, http.StatusBadRequest, problem)
}

func notFound(w http.ResponseWriter, r *http.Request, detail string) {
	problem := problems.NewStatusProblem(http.StatusNotFound).
		WithInstance(r.URL.Path).
		WithType("not_found").
		WithDetail(detail)
	writeProblem(w, http.StatusNotFound, problem)
}

// statusForKind maps task error kinds onto HTTP status codes.
func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindDuplicateWorkflowInstance, core.KindVersionConflict, core.KindAlreadyTerminal:
		return http.StatusConflict
	case core.KindRemote:
		return http.StatusBadGateway
	case core.KindRead:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleTaskError renders err as a problem document. Unclassified errors
// are logged and reported without detail.
func handleTaskError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := core.KindOf(err)
	if !ok {
		slog.Error("unhandled task error", "path", r.URL.Path, "error", err)
		problem := problems.NewStatusProblem(http.StatusInternalServerError).
			WithInstance(r.URL.Path).
			WithType("internal_error")
		writeProblem(w, http.StatusInternalServerError, problem)
		return
	}

	status := statusForKind(kind)
	if status >= http.StatusInternalServerError {
		slog.Warn("store call failed", "path", r.URL.Path, "kind", kind, "error", err)
	}

	body := taskProblem{
		Problem: problems.NewStatusProblem(status).
			WithInstance(r.URL.Path).
			WithType(string(kind)).
			WithDetail(err.Error()),
		Kind:              kind,
		ConflictingTaskID: core.ConflictingTaskID(err),
		Retryable:         core.IsRetryable(err),
	}
	var te *core.TaskError
	if errors.As(err, &te) {
		body.TaskID = te.TaskID
	}
	writeProblem(w, status, body)
}
