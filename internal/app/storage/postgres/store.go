// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
	"github.com/hastrology/lottery-service/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.RoundStore = (*Store)(nil)
var _ storage.AttemptStore = (*Store)(nil)
var _ storage.IncidentStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lottery_rounds (
			round_id            BIGINT PRIMARY KEY,
			participants        BIGINT NOT NULL,
			winner_ticket_index BIGINT NOT NULL,
			winner              TEXT NOT NULL,
			prize_lamports      BIGINT NOT NULL,
			payout_signature    TEXT NOT NULL,
			completed_at        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS draw_attempts (
			id                  TEXT PRIMARY KEY,
			trigger_source      TEXT NOT NULL,
			round_id            BIGINT NOT NULL,
			started_at          TIMESTAMPTZ NOT NULL,
			finished_at         TIMESTAMPTZ NOT NULL,
			outcome             TEXT NOT NULL,
			winner_ticket_index BIGINT NOT NULL,
			winner              TEXT NOT NULL,
			prize_lamports      BIGINT NOT NULL,
			draw_signature      TEXT NOT NULL,
			payout_signature    TEXT NOT NULL,
			error               TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS health_incidents (
			id          TEXT PRIMARY KEY,
			condition   TEXT NOT NULL,
			severity    TEXT NOT NULL,
			round_id    BIGINT NOT NULL,
			detected_at TIMESTAMPTZ NOT NULL,
			details     TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// --- RoundStore -------------------------------------------------------------

func (s *Store) RecordRound(ctx context.Context, rec lottery.RoundRecord) (lottery.RoundRecord, error) {
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lottery_rounds (round_id, participants, winner_ticket_index, winner, prize_lamports, payout_signature, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (round_id) DO NOTHING
	`, int64(rec.RoundID), int64(rec.Participants), int64(rec.WinnerTicketIndex), rec.Winner, int64(rec.PrizeLamports), rec.PayoutSignature, rec.CompletedAt)
	if err != nil {
		return lottery.RoundRecord{}, err
	}
	return rec, nil
}

func (s *Store) ListRounds(ctx context.Context, limit int) ([]lottery.RoundRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, participants, winner_ticket_index, winner, prize_lamports, payout_signature, completed_at
		FROM lottery_rounds
		ORDER BY round_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lottery.RoundRecord
	for rows.Next() {
		var rec lottery.RoundRecord
		var roundID, participants, winnerIdx, prize int64
		if err := rows.Scan(&roundID, &participants, &winnerIdx, &rec.Winner, &prize, &rec.PayoutSignature, &rec.CompletedAt); err != nil {
			return nil, err
		}
		rec.RoundID = uint64(roundID)
		rec.Participants = uint64(participants)
		rec.WinnerTicketIndex = uint64(winnerIdx)
		rec.PrizeLamports = uint64(prize)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// --- AttemptStore -----------------------------------------------------------

func (s *Store) RecordAttempt(ctx context.Context, attempt lottery.DrawAttempt) (lottery.DrawAttempt, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO draw_attempts (id, trigger_source, round_id, started_at, finished_at, outcome, winner_ticket_index, winner, prize_lamports, draw_signature, payout_signature, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, attempt.ID, string(attempt.Trigger), int64(attempt.RoundID), attempt.StartedAt, attempt.FinishedAt,
		string(attempt.Outcome), int64(attempt.WinnerTicketIndex), attempt.Winner, int64(attempt.PrizeLamports),
		attempt.DrawSignature, attempt.PayoutSignature, attempt.Error)
	if err != nil {
		return lottery.DrawAttempt{}, err
	}
	return attempt, nil
}

func (s *Store) ListAttempts(ctx context.Context, limit int) ([]lottery.DrawAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_source, round_id, started_at, finished_at, outcome, winner_ticket_index, winner, prize_lamports, draw_signature, payout_signature, error
		FROM draw_attempts
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lottery.DrawAttempt
	for rows.Next() {
		var a lottery.DrawAttempt
		var trigger, outcome string
		var roundID, winnerIdx, prize int64
		if err := rows.Scan(&a.ID, &trigger, &roundID, &a.StartedAt, &a.FinishedAt, &outcome, &winnerIdx, &a.Winner, &prize, &a.DrawSignature, &a.PayoutSignature, &a.Error); err != nil {
			return nil, err
		}
		a.Trigger = lottery.TriggerSource(trigger)
		a.Outcome = lottery.AttemptOutcome(outcome)
		a.RoundID = uint64(roundID)
		a.WinnerTicketIndex = uint64(winnerIdx)
		a.PrizeLamports = uint64(prize)
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- IncidentStore ----------------------------------------------------------

func (s *Store) RecordIncident(ctx context.Context, inc lottery.Incident) (lottery.Incident, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	if inc.DetectedAt.IsZero() {
		inc.DetectedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO health_incidents (id, condition, severity, round_id, detected_at, details)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, inc.ID, string(inc.Condition), string(inc.Severity), int64(inc.RoundID), inc.DetectedAt, inc.Details)
	if err != nil {
		return lottery.Incident{}, err
	}
	return inc, nil
}

func (s *Store) ListIncidents(ctx context.Context, limit int) ([]lottery.Incident, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, condition, severity, round_id, detected_at, details
		FROM health_incidents
		ORDER BY detected_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []lottery.Incident
	for rows.Next() {
		var inc lottery.Incident
		var condition, severity string
		var roundID int64
		if err := rows.Scan(&inc.ID, &condition, &severity, &roundID, &inc.DetectedAt, &inc.Details); err != nil {
			return nil, err
		}
		inc.Condition = lottery.Condition(condition)
		inc.Severity = lottery.Severity(severity)
		inc.RoundID = uint64(roundID)
		out = append(out, inc)
	}
	return out, rows.Err()
}
