package api

import (
	"context"
	"net/http"

	"github.com/okian/gavel/internal/domain/types"
)

// IntakeDependencies defines the venue setup operations.
type IntakeDependencies interface {
	PutSubmission(ctx context.Context, id int64, s types.Submission) error
	PutJudge(ctx context.Context, id int64, j types.Judge) error
}

// IntakeHandler handles submission and judge upserts.
type IntakeHandler struct {
	deps IntakeDependencies
}

// NewIntakeHandler creates a new intake handler.
func NewIntakeHandler(deps IntakeDependencies) *IntakeHandler {
	return &IntakeHandler{deps: deps}
}

// HandlePutSubmission handles PUT /submissions/{submissionID}.
func (h *IntakeHandler) HandlePutSubmission(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_submission"
	id, err := pathID(r, "submissionID")
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var body types.Submission
	if err := decodeBody(w, r, &body); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.PutSubmission(r.Context(), id, body); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "stored"})
}

// HandlePutJudge handles PUT /judges/{judgeID}.
func (h *IntakeHandler) HandlePutJudge(w http.ResponseWriter, r *http.Request) {
	const op = "api.put_judge"
	id, err := pathID(r, "judgeID")
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var body types.Judge
	if err := decodeBody(w, r, &body); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.PutJudge(r.Context(), id, body); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "stored"})
}
