package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
	"github.com/hastrology/lottery-service/internal/chain"
	"github.com/hastrology/lottery-service/internal/retry"
	"github.com/hastrology/lottery-service/pkg/logger"
)

var resolveTime = time.Unix(1_700_000_000, 0)

type fakeLedger struct {
	state    chain.RoundState
	receipts map[string]chain.EntryReceipt // participant|roundID
	tickets  map[[2]uint64]chain.Ticket

	ticketFetches []uint64 // indices fetched, in order
	stateFetches  int
	rollAfter     int // stateFetches after which RoundID increments
}

func receiptKey(p chain.Address, roundID uint64) string {
	return fmt.Sprintf("%s|%d", p, roundID)
}

func (f *fakeLedger) FetchRoundState(ctx context.Context) (chain.RoundState, error) {
	f.stateFetches++
	if f.rollAfter > 0 && f.stateFetches >= f.rollAfter {
		f.state.RoundID++
		f.rollAfter = 0
	}
	return f.state, nil
}

func (f *fakeLedger) FetchEntryReceipt(ctx context.Context, participant chain.Address, roundID uint64) (chain.EntryReceipt, error) {
	receipt, ok := f.receipts[receiptKey(participant, roundID)]
	if !ok {
		return chain.EntryReceipt{}, chain.ErrAccountNotFound
	}
	return receipt, nil
}

func (f *fakeLedger) FetchTicket(ctx context.Context, roundID, ticketIndex uint64) (chain.Ticket, error) {
	f.ticketFetches = append(f.ticketFetches, ticketIndex)
	ticket, ok := f.tickets[[2]uint64{roundID, ticketIndex}]
	if !ok {
		return chain.Ticket{}, chain.ErrAccountNotFound
	}
	return ticket, nil
}

type stubProfiles struct {
	handles map[string]string
	err     error
}

func (p stubProfiles) DisplayHandle(ctx context.Context, address string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.handles[address], nil
}

func newTestResolver(ledger *fakeLedger, profiles ProfileLookup, cache WinnerCache) *Service {
	return New(ledger, profiles, cache, logger.NewNop(), Options{
		PollAttempts: 3,
		PollInterval: time.Millisecond,
		Now:          func() time.Time { return resolveTime },
	})
}

func TestResolveCurrentRoundCountdown(t *testing.T) {
	p := chain.Address{1}
	ledger := &fakeLedger{
		state: chain.RoundState{RoundID: 6, EndTimestamp: uint64(resolveTime.Unix()) + 3600},
		receipts: map[string]chain.EntryReceipt{
			receiptKey(p, 6): {Participant: p, RoundID: 6, TicketNumber: 2},
		},
	}
	svc := newTestResolver(ledger, nil, nil)

	res, err := svc.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != lottery.ResultCountdown {
		t.Fatalf("status = %s, want countdown", res.Status)
	}
	if res.TicketNumber == nil || *res.TicketNumber != 2 {
		t.Fatalf("ticket number = %v, want 2", res.TicketNumber)
	}
	if res.EndTimestamp != ledger.state.EndTimestamp {
		t.Fatalf("end timestamp = %d", res.EndTimestamp)
	}
}

func TestResolveCurrentRoundDrawing(t *testing.T) {
	p := chain.Address{1}
	ledger := &fakeLedger{
		state: chain.RoundState{RoundID: 6, EndTimestamp: uint64(resolveTime.Unix()) - 60},
		receipts: map[string]chain.EntryReceipt{
			receiptKey(p, 6): {Participant: p, RoundID: 6, TicketNumber: 0},
		},
	}
	svc := newTestResolver(ledger, nil, nil)

	res, err := svc.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != lottery.ResultDrawing {
		t.Fatalf("status = %s, want drawing", res.Status)
	}
}

// Round 5 closed, current round 6. P holds ticket 3 which lost; the
// winner sits at index 7. The scan must stop at the winner.
func TestResolvePreviousRoundLost(t *testing.T) {
	p := chain.Address{1}
	winner := chain.Address{2}
	ledger := &fakeLedger{
		state: chain.RoundState{RoundID: 6, EndTimestamp: uint64(resolveTime.Unix()) + 3600},
		receipts: map[string]chain.EntryReceipt{
			receiptKey(p, 5): {Participant: p, RoundID: 5, TicketNumber: 3},
		},
		tickets: map[[2]uint64]chain.Ticket{
			{5, 0}: {RoundID: 5, TicketIndex: 0},
			{5, 1}: {RoundID: 5, TicketIndex: 1},
			{5, 2}: {RoundID: 5, TicketIndex: 2},
			{5, 3}: {Owner: p, RoundID: 5, TicketIndex: 3},
			{5, 4}: {RoundID: 5, TicketIndex: 4},
			{5, 5}: {RoundID: 5, TicketIndex: 5},
			{5, 6}: {RoundID: 5, TicketIndex: 6},
			{5, 7}: {Owner: winner, RoundID: 5, TicketIndex: 7, IsWinner: true, PrizeAmount: 2_000_000_000},
			{5, 8}: {RoundID: 5, TicketIndex: 8},
		},
	}
	svc := newTestResolver(ledger, nil, nil)

	res, err := svc.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != lottery.ResultLost {
		t.Fatalf("status = %s, want lost", res.Status)
	}
	if res.RoundID != 5 {
		t.Fatalf("round = %d, want 5", res.RoundID)
	}
	if res.Winner == nil {
		t.Fatalf("winner missing")
	}
	if res.Winner.Address != winner.String() {
		t.Fatalf("winner = %s, want %s", res.Winner.Address, winner)
	}
	if res.Winner.Prize != 2.0 {
		t.Fatalf("prize = %v, want 2.0", res.Winner.Prize)
	}
	for _, idx := range ledger.ticketFetches {
		if idx > 7 {
			t.Fatalf("scan read index %d past the winner at 7", idx)
		}
	}
}

func TestResolvePreviousRoundWon(t *testing.T) {
	p := chain.Address{1}
	ledger := &fakeLedger{
		state: chain.RoundState{RoundID: 6, EndTimestamp: uint64(resolveTime.Unix()) + 3600},
		receipts: map[string]chain.EntryReceipt{
			receiptKey(p, 5): {Participant: p, RoundID: 5, TicketNumber: 4},
		},
		tickets: map[[2]uint64]chain.Ticket{
			{5, 4}: {Owner: p, RoundID: 5, TicketIndex: 4, IsWinner: true, PrizeAmount: 5_500_000_000},
		},
	}
	profiles := stubProfiles{handles: map[string]string{p.String(): "stargazer"}}
	svc := newTestResolver(ledger, profiles, nil)

	res, err := svc.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != lottery.ResultWon {
		t.Fatalf("status = %s, want won", res.Status)
	}
	if res.Winner == nil || res.Winner.PrizeLamports != 5_500_000_000 {
		t.Fatalf("winner = %+v", res.Winner)
	}
	if res.Winner.DisplayHandle != "stargazer" {
		t.Fatalf("handle = %q, want stargazer", res.Winner.DisplayHandle)
	}
}

// Q entered neither round. The resolver still surfaces round 5's winner.
func TestResolveNotEnteredWithLastWinner(t *testing.T) {
	q := chain.Address{9}
	winner := chain.Address{2}
	ledger := &fakeLedger{
		state: chain.RoundState{RoundID: 6, EndTimestamp: uint64(resolveTime.Unix()) + 3600},
		tickets: map[[2]uint64]chain.Ticket{
			{5, 0}: {RoundID: 5, TicketIndex: 0},
			{5, 1}: {Owner: winner, RoundID: 5, TicketIndex: 1, IsWinner: true, PrizeAmount: 3_000_000_000},
		},
	}
	svc := newTestResolver(ledger, nil, nil)

	res, err := svc.Resolve(context.Background(), q)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != lottery.ResultNotEntered {
		t.Fatalf("status = %s, want not_entered", res.Status)
	}
	if res.LastWinner == nil || res.LastWinner.Address != winner.String() {
		t.Fatalf("last winner = %+v", res.LastWinner)
	}
}

func TestResolveNotEnteredNoPriorWinner(t *testing.T) {
	q := chain.Address{9}
	ledger := &fakeLedger{
		state: chain.RoundState{RoundID: 6, EndTimestamp: uint64(resolveTime.Unix()) + 3600},
	}
	svc := newTestResolver(ledger, nil, nil)

	res, err := svc.Resolve(context.Background(), q)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.Status != lottery.ResultNotEntered {
		t.Fatalf("status = %s, want not_entered", res.Status)
	}
	if res.LastWinner != nil {
		t.Fatalf("last winner = %+v, want none", res.LastWinner)
	}
}

func TestResolveProfileFailureDegrades(t *testing.T) {
	p := chain.Address{1}
	ledger := &fakeLedger{
		state: chain.RoundState{RoundID: 6, EndTimestamp: uint64(resolveTime.Unix()) + 3600},
		receipts: map[string]chain.EntryReceipt{
			receiptKey(p, 5): {Participant: p, RoundID: 5, TicketNumber: 0},
		},
		tickets: map[[2]uint64]chain.Ticket{
			{5, 0}: {Owner: p, RoundID: 5, TicketIndex: 0, IsWinner: true, PrizeAmount: 1_000_000_000},
		},
	}
	profiles := stubProfiles{err: errors.New("profile service down")}
	svc := newTestResolver(ledger, profiles, nil)

	res, err := svc.Resolve(context.Background(), p)
	if err != nil {
		t.Fatalf("resolve must not fail on a profile outage: %v", err)
	}
	if res.Status != lottery.ResultWon {
		t.Fatalf("status = %s, want won", res.Status)
	}
	if res.Winner.DisplayHandle != "" {
		t.Fatalf("handle = %q, want bare address fallback", res.Winner.DisplayHandle)
	}
}

func TestFindWinnerUsesCache(t *testing.T) {
	winner := chain.Address{2}
	ledger := &fakeLedger{
		state: chain.RoundState{RoundID: 6, EndTimestamp: uint64(resolveTime.Unix()) + 3600},
		tickets: map[[2]uint64]chain.Ticket{
			{5, 0}: {Owner: winner, RoundID: 5, TicketIndex: 0, IsWinner: true, PrizeAmount: 1_000_000_000},
		},
	}
	cache := NewMemoryWinnerCache()
	svc := newTestResolver(ledger, nil, cache)

	if _, err := svc.findWinner(context.Background(), 5); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	scans := len(ledger.ticketFetches)

	info, err := svc.findWinner(context.Background(), 5)
	if err != nil {
		t.Fatalf("cached lookup: %v", err)
	}
	if len(ledger.ticketFetches) != scans {
		t.Fatalf("second lookup hit the ledger despite a cached winner")
	}
	if info.Address != winner.String() {
		t.Fatalf("cached winner = %+v", info)
	}
}

func TestAwaitRollover(t *testing.T) {
	ledger := &fakeLedger{
		state:     chain.RoundState{RoundID: 6},
		rollAfter: 2,
	}
	svc := newTestResolver(ledger, nil, nil)

	newRound, err := svc.AwaitRollover(context.Background(), 6)
	if err != nil {
		t.Fatalf("await rollover: %v", err)
	}
	if newRound != 7 {
		t.Fatalf("new round = %d, want 7", newRound)
	}
}

func TestAwaitRolloverTimeout(t *testing.T) {
	ledger := &fakeLedger{state: chain.RoundState{RoundID: 6}}
	svc := newTestResolver(ledger, nil, nil)

	if _, err := svc.AwaitRollover(context.Background(), 6); !errors.Is(err, retry.ErrBudgetExhausted) {
		t.Fatalf("err = %v, want budget exhausted", err)
	}
}
