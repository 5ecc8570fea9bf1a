// Package venue models the circular walking order of submission tables
// and computes forward distances along it.
package venue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/okian/gavel/internal/domain/model"
)

// Mode selects how the walk counts distance.
type Mode int

const (
	// ModeFromReference compares every visited location with the reference
	// location only, so each submission passed that is not at the reference
	// adds one. This is how deployed venues have always been walked.
	ModeFromReference Mode = iota
	// ModeLocationChanges compares each visited location with the previous
	// one, so distance grows only when the location value changes.
	ModeLocationChanges
)

// String returns the config name of the mode.
func (m Mode) String() string {
	switch m {
	case ModeFromReference:
		return "reference"
	case ModeLocationChanges:
		return "changes"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a config value to a Mode. Empty means ModeFromReference.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reference":
		return ModeFromReference, nil
	case "changes":
		return ModeLocationChanges, nil
	default:
		return 0, fmt.Errorf("unknown distance mode: %s", s)
	}
}

// ForwardDistances walks the venue forward from ref, wrapping from the
// highest location back to the lowest, and returns the distance of every
// submission keyed by submission ID. The input slice is not modified.
func ForwardDistances(subs []model.Submission, ref int, mode Mode) map[int64]int {
	out := make(map[int64]int, len(subs))
	if len(subs) == 0 {
		return out
	}

	byLoc := make([]model.Submission, len(subs))
	copy(byLoc, subs)
	sort.SliceStable(byLoc, func(i, j int) bool {
		return byLoc[i].Location < byLoc[j].Location
	})

	// First stop at or after ref; wraps to 0 when ref is past the end.
	start := sort.Search(len(byLoc), func(i int) bool {
		return byLoc[i].Location >= ref
	}) % len(byLoc)

	dist := 0
	last := ref
	for i := range byLoc {
		s := byLoc[(start+i)%len(byLoc)]
		if s.Location != last {
			dist++
		}
		if mode == ModeLocationChanges {
			last = s.Location
		}
		out[s.ID] = dist
	}
	return out
}
