// Package health watches the round state for stuck lifecycle positions
// and re-drives the draw orchestrator when it finds one.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
	"github.com/hastrology/lottery-service/internal/app/metrics"
	"github.com/hastrology/lottery-service/internal/app/storage"
	"github.com/hastrology/lottery-service/internal/chain"
	"github.com/hastrology/lottery-service/pkg/logger"
)

// Staleness thresholds before an ended round is flagged.
const (
	stuckDrawingAfter = time.Hour
	unpaidWinnerAfter = 5 * time.Minute
)

// StateReader provides the round state snapshot the monitor evaluates.
// Satisfied by *chain.Gateway.
type StateReader interface {
	FetchRoundState(ctx context.Context) (chain.RoundState, error)
}

// Drawer re-runs the draw lifecycle when a finding calls for recovery.
// Satisfied by *draw.Service.
type Drawer interface {
	ExecuteDraw(ctx context.Context, trigger lottery.TriggerSource) (lottery.DrawAttempt, error)
	InFlight() bool
}

// Finding is one detected anomaly on the current round.
type Finding struct {
	Condition lottery.Condition
	Severity  lottery.Severity
	Details   string
}

// Monitor periodically checks round health and triggers recovery draws.
type Monitor struct {
	reader    StateReader
	drawer    Drawer
	incidents storage.IncidentStore
	log       *logger.Logger

	interval time.Duration
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

// Options tunes the monitor loop.
type Options struct {
	Interval time.Duration // default 5m
	Now      func() time.Time
}

// New creates a configured monitor.
func New(reader StateReader, drawer Drawer, incidents storage.IncidentStore, log *logger.Logger, opts Options) *Monitor {
	if log == nil {
		log = logger.NewDefault("health")
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		reader:    reader,
		drawer:    drawer,
		incidents: incidents,
		log:       log,
		interval:  opts.Interval,
		now:       opts.Now,
	}
}

// Name implements system.Service.
func (m *Monitor) Name() string { return "health-monitor" }

// Start launches the check loop. An initial check runs immediately so a
// round left stuck across a restart is recovered without waiting a full
// interval.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return fmt.Errorf("health monitor already started")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	go m.loop(loopCtx)
	m.log.WithField("interval", m.interval.String()).Info("health monitor started")
	return nil
}

// Stop halts the loop and waits for the in-progress check to finish.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	m.CheckOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce runs a single health evaluation and recovery pass.
func (m *Monitor) CheckOnce(ctx context.Context) {
	state, err := m.reader.FetchRoundState(ctx)
	if err != nil {
		m.log.WithError(err).Warn("health check: fetch round state")
		return
	}

	findings := Evaluate(state, m.now())
	if len(findings) == 0 {
		m.log.WithField("round_id", state.RoundID).Debug("round healthy")
		return
	}

	for _, f := range findings {
		log := m.log.WithField("round_id", state.RoundID).
			WithField("condition", string(f.Condition)).
			WithField("details", f.Details)
		switch f.Severity {
		case lottery.SeverityCritical:
			log.Error("health finding")
		default:
			log.Warn("health finding")
		}
		metrics.ObserveHealthFinding(string(f.Condition))
		m.recordIncident(ctx, state.RoundID, f)
	}

	if m.drawer == nil || m.drawer.InFlight() {
		return
	}
	attempt, err := m.drawer.ExecuteDraw(ctx, lottery.TriggerHealth)
	if err != nil {
		m.log.WithError(err).WithField("round_id", state.RoundID).Warn("recovery draw failed")
		return
	}
	m.log.WithField("round_id", state.RoundID).
		WithField("outcome", string(attempt.Outcome)).
		Info("recovery draw finished")
}

// Evaluate classifies a round state snapshot against the staleness
// thresholds. More than one condition can hold at once.
func Evaluate(state chain.RoundState, now time.Time) []Finding {
	end := time.Unix(int64(state.EndTimestamp), 0)
	if now.Before(end) {
		return nil
	}
	overdue := now.Sub(end)

	var findings []Finding
	if !state.IsDrawing && !state.HasWinner() && state.TotalParticipants > 0 {
		findings = append(findings, Finding{
			Condition: lottery.ConditionExpiredNoDraw,
			Severity:  lottery.SeverityHigh,
			Details:   fmt.Sprintf("round with %d participants undrawn %s after end", state.TotalParticipants, overdue.Truncate(time.Second)),
		})
	}
	if state.IsDrawing && overdue > stuckDrawingAfter {
		findings = append(findings, Finding{
			Condition: lottery.ConditionStuckDrawing,
			Severity:  lottery.SeverityCritical,
			Details:   fmt.Sprintf("draw pending %s after round end", overdue.Truncate(time.Second)),
		})
	}
	if state.HasWinner() && state.TotalParticipants > 0 && overdue > unpaidWinnerAfter {
		findings = append(findings, Finding{
			Condition: lottery.ConditionUnpaidWinner,
			Severity:  lottery.SeverityCritical,
			Details:   fmt.Sprintf("winner at ticket %d unpaid %s after round end", state.WinningTicketIndex(), overdue.Truncate(time.Second)),
		})
	}
	return findings
}

func (m *Monitor) recordIncident(ctx context.Context, roundID uint64, f Finding) {
	if m.incidents == nil {
		return
	}
	_, err := m.incidents.RecordIncident(ctx, lottery.Incident{
		Condition:  f.Condition,
		Severity:   f.Severity,
		RoundID:    roundID,
		DetectedAt: m.now().UTC(),
		Details:    f.Details,
	})
	if err != nil {
		m.log.WithError(err).Warn("record incident")
	}
}
