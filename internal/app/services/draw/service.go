// Package draw owns the round lifecycle: it drives a round from expiry
// through randomness resolution to payout against the ledger.
package draw

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
	"github.com/hastrology/lottery-service/internal/app/metrics"
	"github.com/hastrology/lottery-service/internal/app/storage"
	"github.com/hastrology/lottery-service/internal/chain"
	"github.com/hastrology/lottery-service/internal/retry"
	"github.com/hastrology/lottery-service/pkg/logger"
)

// Ledger is the gateway surface the orchestrator depends on. Satisfied by
// *chain.Gateway.
type Ledger interface {
	FetchRoundState(ctx context.Context) (chain.RoundState, error)
	FetchTicket(ctx context.Context, roundID, ticketIndex uint64) (chain.Ticket, error)
	TicketAddress(roundID, ticketIndex uint64) (chain.Address, error)
	PotBalance(ctx context.Context) (uint64, error)
	SubmitRequestDraw(ctx context.Context) (string, error)
	SubmitPayout(ctx context.Context, platformWallet, winningTicket, winner chain.Address) (string, error)
	SubmitReset(ctx context.Context) (string, error)
	Confirm(ctx context.Context, signature string) error
}

// runState is the orchestrator's process-local lifecycle position.
type runState int

const (
	stateIdle runState = iota
	stateDrawing
)

// Service coordinates draw execution. At most one draw runs at a time
// within the process; the ledger's own isDrawing flag remains the
// authoritative serialization across processes.
type Service struct {
	ledger   Ledger
	attempts storage.AttemptStore
	rounds   storage.RoundStore
	log      *logger.Logger

	pollAttempts int
	pollInterval time.Duration
	now          func() time.Time

	mu    sync.Mutex
	state runState
}

// Options tunes the orchestrator's polling budget.
type Options struct {
	PollAttempts int           // default 30
	PollInterval time.Duration // default 2s
	Now          func() time.Time
}

// New creates a configured draw service.
func New(ledger Ledger, attempts storage.AttemptStore, rounds storage.RoundStore, log *logger.Logger, opts Options) *Service {
	if log == nil {
		log = logger.NewDefault("draw")
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 30
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		ledger:       ledger,
		attempts:     attempts,
		rounds:       rounds,
		log:          log,
		pollAttempts: opts.PollAttempts,
		pollInterval: opts.PollInterval,
		now:          opts.Now,
	}
}

// InFlight reports whether a draw is currently executing in this process.
func (s *Service) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateDrawing
}

// ComputePhase classifies a round state at a point in time.
func ComputePhase(state chain.RoundState, now time.Time) lottery.Phase {
	switch {
	case uint64(now.Unix()) < state.EndTimestamp:
		return lottery.PhaseWaiting
	case state.HasWinner():
		return lottery.PhaseResolved
	case state.TotalParticipants == 0:
		return lottery.PhaseEmpty
	case state.IsDrawing:
		return lottery.PhaseDrawing
	default:
		return lottery.PhaseEligible
	}
}

// ExecuteDraw runs one pass of the draw lifecycle. Every step re-fetches
// ledger state: the orchestrator never assumes its own reads are fresher
// than a concurrent external mutation. Safe to call from any trigger; a
// second concurrent call returns immediately with OutcomeBusy.
func (s *Service) ExecuteDraw(ctx context.Context, trigger lottery.TriggerSource) (lottery.DrawAttempt, error) {
	attempt := lottery.DrawAttempt{
		Trigger:   trigger,
		StartedAt: s.now().UTC(),
	}

	s.mu.Lock()
	if s.state == stateDrawing {
		s.mu.Unlock()
		attempt.Outcome = lottery.OutcomeBusy
		attempt.FinishedAt = s.now().UTC()
		metrics.ObserveDrawAttempt(string(trigger), string(attempt.Outcome))
		return attempt, nil
	}
	s.state = stateDrawing
	s.mu.Unlock()

	// The in-flight flag must drop on every exit path.
	defer func() {
		s.mu.Lock()
		s.state = stateIdle
		s.mu.Unlock()
	}()

	attempt, err := s.run(ctx, attempt)
	attempt.FinishedAt = s.now().UTC()
	if err != nil && attempt.Error == "" {
		attempt.Error = err.Error()
	}
	metrics.ObserveDrawAttempt(string(trigger), string(attempt.Outcome))
	s.record(attempt)
	return attempt, err
}

func (s *Service) run(ctx context.Context, attempt lottery.DrawAttempt) (lottery.DrawAttempt, error) {
	state, err := s.ledger.FetchRoundState(ctx)
	if err != nil {
		attempt.Outcome = lottery.OutcomeFailed
		return attempt, fmt.Errorf("fetch round state: %w", err)
	}
	attempt.RoundID = state.RoundID
	metrics.SetRoundState(state.RoundID, state.TotalParticipants)

	log := s.log.WithField("round_id", state.RoundID).WithField("trigger", string(attempt.Trigger))

	switch ComputePhase(state, s.now()) {
	case lottery.PhaseWaiting:
		log.WithField("end_timestamp", state.EndTimestamp).Debug("round still open; nothing to draw")
		attempt.Outcome = lottery.OutcomeTooEarly
		return attempt, nil

	case lottery.PhaseEmpty:
		return s.resetEmptyRound(ctx, attempt, log)
	}

	if !state.IsDrawing && !state.HasWinner() {
		signature, err := s.ledger.SubmitRequestDraw(ctx)
		if err != nil {
			metrics.ObserveInstruction("request_draw", "rejected")
			attempt.Outcome = lottery.OutcomeFailed
			return attempt, fmt.Errorf("request draw: %w", err)
		}
		metrics.ObserveInstruction("request_draw", "submitted")
		attempt.DrawSignature = signature
		log.WithField("signature", signature).Info("draw requested")
	} else if state.IsDrawing {
		// A prior invocation or an external trigger already requested the
		// draw; resume at the polling step.
		log.Info("draw already in progress; resuming")
	}

	resolved, err := s.awaitWinner(ctx, state.RoundID)
	if err != nil {
		if errors.Is(err, retry.ErrBudgetExhausted) {
			log.Warn("randomness not resolved within budget; leaving round for a later retry")
			attempt.Outcome = lottery.OutcomeTimeout
			return attempt, nil
		}
		attempt.Outcome = lottery.OutcomeFailed
		return attempt, fmt.Errorf("await winner: %w", err)
	}

	return s.payout(ctx, attempt, resolved, log)
}

// awaitWinner polls the round state until a winner index appears.
func (s *Service) awaitWinner(ctx context.Context, roundID uint64) (chain.RoundState, error) {
	start := s.now()
	var resolved chain.RoundState

	err := retry.Poll(ctx, s.pollAttempts, s.pollInterval, func(ctx context.Context) (bool, error) {
		state, err := s.ledger.FetchRoundState(ctx)
		if err != nil {
			return false, err
		}
		if state.RoundID != roundID {
			// The round rolled over underneath us: another authority
			// process completed the payout. Nothing left to do.
			return false, retry.Fatal(fmt.Errorf("round rolled over from %d to %d during poll", roundID, state.RoundID))
		}
		if state.HasWinner() {
			resolved = state
			return true, nil
		}
		return false, nil
	})
	metrics.ObserveDrawPoll(s.now().Sub(start))
	if err != nil {
		return chain.RoundState{}, err
	}
	return resolved, nil
}

func (s *Service) payout(ctx context.Context, attempt lottery.DrawAttempt, state chain.RoundState, log *logger.Logger) (lottery.DrawAttempt, error) {
	winnerIndex := state.WinningTicketIndex()
	attempt.WinnerTicketIndex = winnerIndex

	ticketAddr, err := s.ledger.TicketAddress(state.RoundID, winnerIndex)
	if err != nil {
		attempt.Outcome = lottery.OutcomeFailed
		return attempt, fmt.Errorf("derive winning ticket: %w", err)
	}
	ticket, err := s.ledger.FetchTicket(ctx, state.RoundID, winnerIndex)
	if err != nil {
		attempt.Outcome = lottery.OutcomeFailed
		return attempt, fmt.Errorf("fetch winning ticket: %w", err)
	}
	attempt.Winner = ticket.Owner.String()

	pot, err := s.ledger.PotBalance(ctx)
	if err != nil {
		// Prize display only; payout proceeds without it.
		log.WithError(err).Warn("fetch pot balance")
	}

	signature, err := s.ledger.SubmitPayout(ctx, state.PlatformWallet, ticketAddr, ticket.Owner)
	if err != nil {
		metrics.ObserveInstruction("payout", "rejected")
		attempt.Outcome = lottery.OutcomeFailed
		return attempt, fmt.Errorf("submit payout: %w", err)
	}
	metrics.ObserveInstruction("payout", "submitted")
	attempt.PayoutSignature = signature

	if err := s.ledger.Confirm(ctx, signature); err != nil {
		attempt.Outcome = lottery.OutcomeFailed
		return attempt, fmt.Errorf("confirm payout: %w", err)
	}
	metrics.ObserveInstruction("payout", "confirmed")

	prize := computePrize(pot, state.PlatformFeeBps)
	attempt.PrizeLamports = prize
	attempt.Outcome = lottery.OutcomeCompleted

	log.WithField("winner", ticket.Owner.String()).
		WithField("ticket_index", winnerIndex).
		WithField("prize_lamports", prize).
		Info("round paid out")

	if s.rounds != nil {
		_, err := s.rounds.RecordRound(ctx, lottery.RoundRecord{
			RoundID:           state.RoundID,
			Participants:      state.TotalParticipants,
			WinnerTicketIndex: winnerIndex,
			Winner:            ticket.Owner.String(),
			PrizeLamports:     prize,
			PayoutSignature:   signature,
			CompletedAt:       s.now().UTC(),
		})
		if err != nil {
			log.WithError(err).Warn("archive round")
		}
	}
	return attempt, nil
}

// resetEmptyRound rolls over an expired round nobody entered. The program
// rejects reset for rounds with participants, so a winner can never be
// fabricated through this path.
func (s *Service) resetEmptyRound(ctx context.Context, attempt lottery.DrawAttempt, log *logger.Logger) (lottery.DrawAttempt, error) {
	attempt.Outcome = lottery.OutcomeEmpty

	signature, err := s.ledger.SubmitReset(ctx)
	if err != nil {
		metrics.ObserveInstruction("reset", "rejected")
		log.WithError(err).Warn("reset empty round; will retry on next trigger")
		attempt.Error = err.Error()
		return attempt, nil
	}
	metrics.ObserveInstruction("reset", "submitted")
	attempt.PayoutSignature = signature

	if err := s.ledger.Confirm(ctx, signature); err != nil {
		log.WithError(err).Warn("confirm reset")
		attempt.Error = err.Error()
		return attempt, nil
	}
	metrics.ObserveInstruction("reset", "confirmed")
	log.Info("empty round rolled over")
	return attempt, nil
}

func (s *Service) record(attempt lottery.DrawAttempt) {
	if s.attempts == nil {
		return
	}
	// Recording is best-effort bookkeeping; a store hiccup must not fail
	// the draw. Use a fresh context so a canceled draw still records.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.attempts.RecordAttempt(ctx, attempt); err != nil {
		s.log.WithError(err).Warn("record draw attempt")
	}
}

// computePrize mirrors the program's payout math: pot minus platform fee.
func computePrize(pot uint64, feeBps uint16) uint64 {
	fee := pot * uint64(feeBps) / 10_000
	return pot - fee
}
