// Package storage defines persistence interfaces for round history, draw
// attempts, and health incidents.
package storage

import (
	"context"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
)

// RoundStore archives completed rounds.
type RoundStore interface {
	RecordRound(ctx context.Context, rec lottery.RoundRecord) (lottery.RoundRecord, error)
	ListRounds(ctx context.Context, limit int) ([]lottery.RoundRecord, error)
}

// AttemptStore records draw attempts.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt lottery.DrawAttempt) (lottery.DrawAttempt, error)
	ListAttempts(ctx context.Context, limit int) ([]lottery.DrawAttempt, error)
}

// IncidentStore records health monitor findings.
type IncidentStore interface {
	RecordIncident(ctx context.Context, inc lottery.Incident) (lottery.Incident, error)
	ListIncidents(ctx context.Context, limit int) ([]lottery.Incident, error)
}
