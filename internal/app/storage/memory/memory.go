// Package memory provides the in-memory storage implementation used when
// no database is configured, and by tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
	"github.com/hastrology/lottery-service/internal/app/storage"
)

// Store keeps bounded in-memory histories, newest first.
type Store struct {
	mu        sync.Mutex
	max       int
	rounds    []lottery.RoundRecord
	attempts  []lottery.DrawAttempt
	incidents []lottery.Incident
}

var _ storage.RoundStore = (*Store)(nil)
var _ storage.AttemptStore = (*Store)(nil)
var _ storage.IncidentStore = (*Store)(nil)

// New returns a store retaining at most max entries per history (default 500).
func New(max int) *Store {
	if max <= 0 {
		max = 500
	}
	return &Store{max: max}
}

func (s *Store) RecordRound(ctx context.Context, rec lottery.RoundRecord) (lottery.RoundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds = prepend(s.rounds, rec, s.max)
	return rec, nil
}

func (s *Store) ListRounds(ctx context.Context, limit int) ([]lottery.RoundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clip(s.rounds, limit), nil
}

func (s *Store) RecordAttempt(ctx context.Context, attempt lottery.DrawAttempt) (lottery.DrawAttempt, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = prepend(s.attempts, attempt, s.max)
	return attempt, nil
}

func (s *Store) ListAttempts(ctx context.Context, limit int) ([]lottery.DrawAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clip(s.attempts, limit), nil
}

func (s *Store) RecordIncident(ctx context.Context, inc lottery.Incident) (lottery.Incident, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = prepend(s.incidents, inc, s.max)
	return inc, nil
}

func (s *Store) ListIncidents(ctx context.Context, limit int) ([]lottery.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clip(s.incidents, limit), nil
}

func prepend[T any](list []T, item T, max int) []T {
	list = append([]T{item}, list...)
	if len(list) > max {
		list = list[:max]
	}
	return list
}

func clip[T any](list []T, limit int) []T {
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]T, limit)
	copy(out, list[:limit])
	return out
}
