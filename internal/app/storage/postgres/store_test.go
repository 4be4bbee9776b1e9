package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db), mock
}

func TestRecordAttemptAssignsID(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO draw_attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	attempt, err := store.RecordAttempt(context.Background(), lottery.DrawAttempt{
		Trigger:   lottery.TriggerManual,
		RoundID:   5,
		StartedAt: time.Now().UTC(),
		Outcome:   lottery.OutcomeTimeout,
	})
	require.NoError(t, err)
	require.NotEmpty(t, attempt.ID, "expected generated attempt id")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRounds(t *testing.T) {
	store, mock := newMockStore(t)

	completed := time.Date(2025, 6, 1, 19, 5, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"round_id", "participants", "winner_ticket_index", "winner", "prize_lamports", "payout_signature", "completed_at",
	}).AddRow(int64(5), int64(12), int64(7), "WinnerAddr", int64(2_000_000_000), "sig", completed)

	mock.ExpectQuery("SELECT (.+) FROM lottery_rounds").
		WithArgs(10).
		WillReturnRows(rows)

	records, err := store.ListRounds(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	require.Equal(t, uint64(5), rec.RoundID)
	require.Equal(t, uint64(7), rec.WinnerTicketIndex)
	require.Equal(t, uint64(2_000_000_000), rec.PrizeLamports)
	require.Equal(t, completed, rec.CompletedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordIncidentDefaults(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO health_incidents").
		WillReturnResult(sqlmock.NewResult(0, 1))

	inc, err := store.RecordIncident(context.Background(), lottery.Incident{
		Condition: lottery.ConditionStuckDrawing,
		Severity:  lottery.SeverityCritical,
		RoundID:   5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, inc.ID)
	require.False(t, inc.DetectedAt.IsZero(), "detected_at should default to now")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRoundConflictIgnored(t *testing.T) {
	store, mock := newMockStore(t)

	// Re-archiving the same round is a no-op thanks to ON CONFLICT.
	mock.ExpectExec("INSERT INTO lottery_rounds").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.RecordRound(context.Background(), lottery.RoundRecord{
		RoundID:     5,
		Winner:      "WinnerAddr",
		CompletedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
