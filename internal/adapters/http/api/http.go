// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/gavel/internal/adapters/mq/queue"
	"github.com/okian/gavel/internal/adapters/repository"
	"github.com/okian/gavel/internal/domain/assignment"
	"github.com/okian/gavel/internal/domain/model"
)

// IdempotencyKeyHeader names the header that makes assignment requests
// idempotent.
const IdempotencyKeyHeader = "Idempotency-Key"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AssignmentDependencies
	IntakeDependencies
	ReadDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	assignmentsHandler *AssignmentsHandler
	intakeHandler      *IntakeHandler
	coverageHandler    *CoverageHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps),
		assignmentsHandler: NewAssignmentsHandler(deps),
		intakeHandler:      NewIntakeHandler(deps),
		coverageHandler:    NewCoverageHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /coverage", MetricsMiddleware(s.coverageHandler.HandleCoverage, "coverage"))

	mux.HandleFunc("POST /judges/{judgeID}/assignments", MetricsMiddleware(s.assignmentsHandler.HandleCreate, "assignments_create"))
	mux.HandleFunc("POST /judges/{judgeID}/assignments/next", MetricsMiddleware(s.assignmentsHandler.HandleNext, "assignments_next"))
	mux.HandleFunc("GET /judges/{judgeID}/assignments", MetricsMiddleware(s.assignmentsHandler.HandleList, "assignments_list"))
	mux.HandleFunc("POST /assignments/{assignmentID}/rating", MetricsMiddleware(s.assignmentsHandler.HandleRate, "assignments_rate"))

	mux.HandleFunc("PUT /submissions/{submissionID}", MetricsMiddleware(s.intakeHandler.HandlePutSubmission, "submissions_put"))
	mux.HandleFunc("PUT /judges/{judgeID}", MetricsMiddleware(s.intakeHandler.HandlePutJudge, "judges_put"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ackResponse struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps err onto a status code and error code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, assignment.ErrPersistence):
		return http.StatusServiceUnavailable, "persistence"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidOutcome):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, assignment.ErrNoEligibleSubmission):
		return http.StatusConflict, "no_eligible_submission"
	case errors.Is(err, repository.ErrAlreadyCompleted):
		return http.StatusConflict, "already_completed"
	case errors.Is(err, assignment.ErrUnknownJudge):
		return http.StatusNotFound, "unknown_judge"
	case errors.Is(err, assignment.ErrInconsistentReference):
		return http.StatusInternalServerError, "inconsistent_reference"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, queue.ErrBackpressure):
		return http.StatusServiceUnavailable, "backpressure"
	case errors.Is(err, queue.ErrStopped):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name + ": " + strconv.Quote(raw))
	}
	return id, nil
}

// decodeBody reads a JSON body into v, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
