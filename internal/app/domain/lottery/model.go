// Package lottery defines the domain records shared by the draw
// orchestrator, health monitor, resolver, storage, and HTTP layers.
package lottery

import "time"

// LamportsPerUnit converts raw ledger amounts to whole display units.
const LamportsPerUnit = 1_000_000_000

// ToUnits converts lamports to whole units for display.
func ToUnits(lamports uint64) float64 {
	return float64(lamports) / LamportsPerUnit
}

// Phase is the orchestrator's view of a round's lifecycle position.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"  // now < endTimestamp
	PhaseEligible Phase = "eligible" // ended, has participants, draw not requested
	PhaseDrawing  Phase = "drawing"  // draw requested, randomness unresolved
	PhaseResolved Phase = "resolved" // winner index set, payout pending
	PhaseEmpty    Phase = "empty"    // ended with no participants
)

// TriggerSource identifies what initiated a draw attempt.
type TriggerSource string

const (
	TriggerSchedule TriggerSource = "schedule"
	TriggerManual   TriggerSource = "manual"
	TriggerClient   TriggerSource = "client"
	TriggerHealth   TriggerSource = "health"
)

// AttemptOutcome classifies how a draw attempt ended.
type AttemptOutcome string

const (
	OutcomeCompleted AttemptOutcome = "completed" // payout confirmed
	OutcomeTooEarly  AttemptOutcome = "too_early" // round still open
	OutcomeEmpty     AttemptOutcome = "empty"     // no participants, reset path
	OutcomeBusy      AttemptOutcome = "busy"      // another draw in flight
	OutcomeTimeout   AttemptOutcome = "timeout"   // poll budget exhausted
	OutcomeFailed    AttemptOutcome = "failed"    // instruction rejected or read failure
)

// DrawAttempt records one pass through the draw lifecycle.
type DrawAttempt struct {
	ID                string
	Trigger           TriggerSource
	RoundID           uint64
	StartedAt         time.Time
	FinishedAt        time.Time
	Outcome           AttemptOutcome
	WinnerTicketIndex uint64 // 0-based, valid when Outcome == completed
	Winner            string
	PrizeLamports     uint64
	DrawSignature     string // request_draw transaction, when submitted
	PayoutSignature   string // payout or reset transaction, when submitted
	Error             string
}

// RoundRecord archives a completed round.
type RoundRecord struct {
	RoundID           uint64
	Participants      uint64
	WinnerTicketIndex uint64 // 0-based
	Winner            string
	PrizeLamports     uint64
	PayoutSignature   string
	CompletedAt       time.Time
}

// Condition names a health finding over the current round state.
type Condition string

const (
	ConditionExpiredNoDraw Condition = "EXPIRED_NO_DRAW"
	ConditionStuckDrawing  Condition = "STUCK_DRAWING"
	ConditionUnpaidWinner  Condition = "UNPAID_WINNER"
)

// Severity ranks a health finding.
type Severity string

const (
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Incident records a health finding and the recovery attempt's outcome.
type Incident struct {
	ID         string
	Condition  Condition
	Severity   Severity
	RoundID    uint64
	DetectedAt time.Time
	Details    string
}

// ResultStatus is what the resolver shows a participant.
type ResultStatus string

const (
	ResultCountdown  ResultStatus = "countdown"   // entered, round still open
	ResultDrawing    ResultStatus = "drawing"     // entered, round ended, awaiting draw
	ResultWon        ResultStatus = "won"         // previous round, their ticket won
	ResultLost       ResultStatus = "lost"        // previous round, another ticket won
	ResultNotEntered ResultStatus = "not_entered" // no receipt in current or previous round
)

// WinnerInfo describes a winning ticket for display.
type WinnerInfo struct {
	Address       string  `json:"address"`
	DisplayHandle string  `json:"display_handle,omitempty"`
	TicketIndex   uint64  `json:"ticket_index"`
	PrizeLamports uint64  `json:"prize_lamports"`
	Prize         float64 `json:"prize"`
}

// Resolution is the resolver's answer for a participant.
type Resolution struct {
	Status       ResultStatus `json:"status"`
	RoundID      uint64       `json:"round_id"`
	TicketNumber *uint64      `json:"ticket_number,omitempty"`
	EndTimestamp uint64       `json:"end_timestamp,omitempty"`
	Winner       *WinnerInfo  `json:"winner,omitempty"`      // winning ticket of the round the status refers to
	LastWinner   *WinnerInfo  `json:"last_winner,omitempty"` // social proof for not_entered
}
