// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/okian/gavel/internal/domain/types"
)

// ReadDependencies defines the read-model operations.
type ReadDependencies interface {
	Coverage(ctx context.Context) ([]types.Coverage, error)
	Stats(ctx context.Context) (types.Stats, error)
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	deps ReadDependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps ReadDependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.deps.Stats(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.stats", err))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// CoverageHandler handles coverage requests.
type CoverageHandler struct {
	deps ReadDependencies
}

// NewCoverageHandler creates a new coverage handler.
func NewCoverageHandler(deps ReadDependencies) *CoverageHandler {
	return &CoverageHandler{deps: deps}
}

// HandleCoverage handles GET /coverage requests.
func (h *CoverageHandler) HandleCoverage(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.Coverage(r.Context())
	if err != nil {
		writeFailure(w, Wrap("api.coverage", err))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
