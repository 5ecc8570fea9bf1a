package repository

import "github.com/okian/gavel/internal/domain/model"

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithSubmissions seeds the store with submissions. Invalid ones are skipped.
func WithSubmissions(subs ...model.Submission) Option {
	return func(s *MemoryStore) {
		for _, sub := range subs {
			if ValidateSubmission(sub) == nil {
				s.submissions[sub.ID] = sub
			}
		}
	}
}

// WithJudges seeds the store with judges. Invalid ones are skipped.
func WithJudges(judges ...model.Judge) Option {
	return func(s *MemoryStore) {
		for _, j := range judges {
			if ValidateJudge(j) == nil {
				s.judges[j.ID] = j
			}
		}
	}
}
