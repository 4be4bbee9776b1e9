package draw

import (
	"context"
	"fmt"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
	"github.com/hastrology/lottery-service/internal/app/metrics"
)

// RoundStatus is the admin-facing summary of the current round.
type RoundStatus struct {
	RoundID           uint64        `json:"round_id"`
	Phase             lottery.Phase `json:"phase"`
	TotalParticipants uint64        `json:"total_participants"`
	TicketPrice       uint64        `json:"ticket_price_lamports"`
	PlatformFeeBps    uint16        `json:"platform_fee_bps"`
	EndTimestamp      uint64        `json:"end_timestamp"`
	IsDrawing         bool          `json:"is_drawing"`
	WinnerTicketIndex uint64        `json:"winner_ticket_index"` // raw encoding: 0 = undrawn
	PotLamports       uint64        `json:"pot_lamports"`
	PrizePool         float64       `json:"prize_pool"` // pot minus platform fee, whole units
	DrawInFlight      bool          `json:"draw_in_flight"`
}

// RoundStatus assembles the current round summary from the ledger.
func (s *Service) RoundStatus(ctx context.Context) (RoundStatus, error) {
	state, err := s.ledger.FetchRoundState(ctx)
	if err != nil {
		return RoundStatus{}, fmt.Errorf("fetch round state: %w", err)
	}
	metrics.SetRoundState(state.RoundID, state.TotalParticipants)

	pot, err := s.ledger.PotBalance(ctx)
	if err != nil {
		return RoundStatus{}, fmt.Errorf("fetch pot balance: %w", err)
	}

	return RoundStatus{
		RoundID:           state.RoundID,
		Phase:             ComputePhase(state, s.now()),
		TotalParticipants: state.TotalParticipants,
		TicketPrice:       state.TicketPrice,
		PlatformFeeBps:    state.PlatformFeeBps,
		EndTimestamp:      state.EndTimestamp,
		IsDrawing:         state.IsDrawing,
		WinnerTicketIndex: state.WinnerTicketIndex,
		PotLamports:       pot,
		PrizePool:         lottery.ToUnits(computePrize(pot, state.PlatformFeeBps)),
		DrawInFlight:      s.InFlight(),
	}, nil
}
