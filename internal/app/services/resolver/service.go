// Package resolver answers "what should this participant see" for the
// lottery without the participant ever naming a round.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
	"github.com/hastrology/lottery-service/internal/chain"
	"github.com/hastrology/lottery-service/internal/retry"
	"github.com/hastrology/lottery-service/pkg/logger"
)

// winnerScanCap bounds the winning ticket scan regardless of how many
// participants the round claims.
const winnerScanCap = 1000

// ErrNoWinnerFound is returned when a resolved round's winning ticket
// cannot be located within the scan bound.
var ErrNoWinnerFound = errors.New("winning ticket not found")

// Ledger is the read-only gateway surface the resolver depends on.
// Satisfied by *chain.Gateway.
type Ledger interface {
	FetchRoundState(ctx context.Context) (chain.RoundState, error)
	FetchEntryReceipt(ctx context.Context, participant chain.Address, roundID uint64) (chain.EntryReceipt, error)
	FetchTicket(ctx context.Context, roundID, ticketIndex uint64) (chain.Ticket, error)
}

// ProfileLookup prettifies a winner's address with a display handle. It
// is strictly cosmetic; every failure degrades to the bare address.
type ProfileLookup interface {
	DisplayHandle(ctx context.Context, address string) (string, error)
}

// WinnerCache memoizes the winning ticket of finished rounds. A finished
// round's winner never changes, so entries have no staleness concern.
type WinnerCache interface {
	Get(ctx context.Context, roundID uint64) (lottery.WinnerInfo, bool, error)
	Set(ctx context.Context, roundID uint64, info lottery.WinnerInfo) error
}

// Service resolves participant-facing lottery results.
type Service struct {
	ledger   Ledger
	profiles ProfileLookup
	cache    WinnerCache
	log      *logger.Logger

	pollAttempts int
	pollInterval time.Duration
	now          func() time.Time
}

// Options tunes the resolver.
type Options struct {
	PollAttempts int           // rollover wait budget, default 15
	PollInterval time.Duration // default 2s
	Now          func() time.Time
}

// New creates a resolver. profiles and cache may be nil.
func New(ledger Ledger, profiles ProfileLookup, cache WinnerCache, log *logger.Logger, opts Options) *Service {
	if log == nil {
		log = logger.NewDefault("resolver")
	}
	if opts.PollAttempts <= 0 {
		opts.PollAttempts = 15
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		ledger:       ledger,
		profiles:     profiles,
		cache:        cache,
		log:          log,
		pollAttempts: opts.PollAttempts,
		pollInterval: opts.PollInterval,
		now:          opts.Now,
	}
}

// Resolve determines what to show for a participant address.
func (s *Service) Resolve(ctx context.Context, participant chain.Address) (lottery.Resolution, error) {
	state, err := s.ledger.FetchRoundState(ctx)
	if err != nil {
		return lottery.Resolution{}, fmt.Errorf("fetch round state: %w", err)
	}

	// Entered the current round: the round is still theirs.
	receipt, err := s.ledger.FetchEntryReceipt(ctx, participant, state.RoundID)
	switch {
	case err == nil:
		status := lottery.ResultCountdown
		if uint64(s.now().Unix()) >= state.EndTimestamp {
			status = lottery.ResultDrawing
		}
		ticket := receipt.TicketNumber
		return lottery.Resolution{
			Status:       status,
			RoundID:      state.RoundID,
			TicketNumber: &ticket,
			EndTimestamp: state.EndTimestamp,
		}, nil
	case !errors.Is(err, chain.ErrAccountNotFound):
		return lottery.Resolution{}, fmt.Errorf("fetch entry receipt: %w", err)
	}

	// No current entry and no earlier round to look back at.
	if state.RoundID == 0 {
		return lottery.Resolution{Status: lottery.ResultNotEntered, RoundID: state.RoundID}, nil
	}
	prevRound := state.RoundID - 1

	// Entered the previous round: they are waiting on a result.
	receipt, err = s.ledger.FetchEntryReceipt(ctx, participant, prevRound)
	switch {
	case err == nil:
		return s.resolvePreviousRound(ctx, prevRound, receipt)
	case !errors.Is(err, chain.ErrAccountNotFound):
		return lottery.Resolution{}, fmt.Errorf("fetch entry receipt: %w", err)
	}

	// Not entered in either round. Surface the last round's winner as
	// social proof when one can be found.
	res := lottery.Resolution{
		Status:       lottery.ResultNotEntered,
		RoundID:      state.RoundID,
		EndTimestamp: state.EndTimestamp,
	}
	if winner, err := s.findWinner(ctx, prevRound); err == nil {
		res.LastWinner = &winner
	} else if !errors.Is(err, ErrNoWinnerFound) {
		s.log.WithError(err).WithField("round_id", prevRound).Debug("last winner lookup")
	}
	return res, nil
}

func (s *Service) resolvePreviousRound(ctx context.Context, roundID uint64, receipt chain.EntryReceipt) (lottery.Resolution, error) {
	ticketNumber := receipt.TicketNumber

	own, err := s.ledger.FetchTicket(ctx, roundID, receipt.TicketNumber)
	if err != nil {
		return lottery.Resolution{}, fmt.Errorf("fetch ticket %d/%d: %w", roundID, receipt.TicketNumber, err)
	}

	if own.IsWinner {
		winner := s.winnerInfo(ctx, own)
		return lottery.Resolution{
			Status:       lottery.ResultWon,
			RoundID:      roundID,
			TicketNumber: &ticketNumber,
			Winner:       &winner,
		}, nil
	}

	res := lottery.Resolution{
		Status:       lottery.ResultLost,
		RoundID:      roundID,
		TicketNumber: &ticketNumber,
	}
	if winner, err := s.findWinner(ctx, roundID); err == nil {
		res.Winner = &winner
	} else if !errors.Is(err, ErrNoWinnerFound) {
		s.log.WithError(err).WithField("round_id", roundID).Debug("winner lookup")
	}
	return res, nil
}

// findWinner locates a round's winning ticket by scanning ticket indices
// from zero, stopping at the first winner or the hard cap.
func (s *Service) findWinner(ctx context.Context, roundID uint64) (lottery.WinnerInfo, error) {
	if s.cache != nil {
		if info, ok, err := s.cache.Get(ctx, roundID); err != nil {
			s.log.WithError(err).Debug("winner cache get")
		} else if ok {
			return info, nil
		}
	}

	for i := uint64(0); i < winnerScanCap; i++ {
		ticket, err := s.ledger.FetchTicket(ctx, roundID, i)
		if errors.Is(err, chain.ErrAccountNotFound) {
			// Ticket indices are dense; the first gap ends the round.
			break
		}
		if err != nil {
			return lottery.WinnerInfo{}, fmt.Errorf("scan ticket %d/%d: %w", roundID, i, err)
		}
		if !ticket.IsWinner {
			continue
		}
		info := s.winnerInfo(ctx, ticket)
		if s.cache != nil {
			if err := s.cache.Set(ctx, roundID, info); err != nil {
				s.log.WithError(err).Debug("winner cache set")
			}
		}
		return info, nil
	}
	return lottery.WinnerInfo{}, fmt.Errorf("round %d: %w", roundID, ErrNoWinnerFound)
}

// winnerInfo builds the display record for a winning ticket. The profile
// lookup is best-effort; its absence never blocks resolution.
func (s *Service) winnerInfo(ctx context.Context, ticket chain.Ticket) lottery.WinnerInfo {
	info := lottery.WinnerInfo{
		Address:       ticket.Owner.String(),
		TicketIndex:   ticket.TicketIndex,
		PrizeLamports: ticket.PrizeAmount,
		Prize:         lottery.ToUnits(ticket.PrizeAmount),
	}
	if s.profiles != nil {
		handle, err := s.profiles.DisplayHandle(ctx, info.Address)
		if err != nil {
			s.log.WithError(err).Debug("profile lookup")
		} else {
			info.DisplayHandle = handle
		}
	}
	return info
}

// AwaitRollover polls the round state until roundId advances past
// fromRound, meaning a payout completed. It returns the new round id, or
// retry.ErrBudgetExhausted when the budget runs out.
func (s *Service) AwaitRollover(ctx context.Context, fromRound uint64) (uint64, error) {
	var newRound uint64
	err := retry.Poll(ctx, s.pollAttempts, s.pollInterval, func(ctx context.Context) (bool, error) {
		state, err := s.ledger.FetchRoundState(ctx)
		if err != nil {
			return false, err
		}
		if state.RoundID > fromRound {
			newRound = state.RoundID
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return 0, err
	}
	return newRound, nil
}
