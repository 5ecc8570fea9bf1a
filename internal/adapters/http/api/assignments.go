package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/gavel/internal/domain/types"
)

// AssignmentDependencies defines the assignment operations the handlers use.
type AssignmentDependencies interface {
	CreateAssignment(ctx context.Context, judgeID int64, key string) (types.AssignResponse, error)
	NextAssignment(ctx context.Context, judgeID int64, key string) (types.AssignResponse, error)
	JudgeAssignments(ctx context.Context, judgeID int64) ([]types.Assignment, error)
	CompleteRating(ctx context.Context, assignmentID int64, r types.Rating) (types.Assignment, error)
}

// AssignmentsHandler handles judge assignment requests.
type AssignmentsHandler struct {
	deps AssignmentDependencies
}

// NewAssignmentsHandler creates a new assignments handler.
func NewAssignmentsHandler(deps AssignmentDependencies) *AssignmentsHandler {
	return &AssignmentsHandler{deps: deps}
}

// HandleCreate handles POST /judges/{judgeID}/assignments.
func (h *AssignmentsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, "api.create_assignment", h.deps.CreateAssignment)
}

// HandleNext handles POST /judges/{judgeID}/assignments/next.
func (h *AssignmentsHandler) HandleNext(w http.ResponseWriter, r *http.Request) {
	h.assign(w, r, "api.next_assignment", h.deps.NextAssignment)
}

func (h *AssignmentsHandler) assign(w http.ResponseWriter, r *http.Request, op string,
	call func(ctx context.Context, judgeID int64, key string) (types.AssignResponse, error),
) {
	judgeID, err := pathID(r, "judgeID")
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))

	resp, err := call(r.Context(), judgeID, key)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}

	status := http.StatusOK
	if resp.Created && !resp.Replayed {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// HandleList handles GET /judges/{judgeID}/assignments.
func (h *AssignmentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_assignments"
	judgeID, err := pathID(r, "judgeID")
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	list, err := h.deps.JudgeAssignments(r.Context(), judgeID)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleRate handles POST /assignments/{assignmentID}/rating.
func (h *AssignmentsHandler) HandleRate(w http.ResponseWriter, r *http.Request) {
	const op = "api.complete_rating"
	assignmentID, err := pathID(r, "assignmentID")
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var body types.Rating
	if err := decodeBody(w, r, &body); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := body.Outcome().Validate(); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	done, err := h.deps.CompleteRating(r.Context(), assignmentID, body)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, done)
}
