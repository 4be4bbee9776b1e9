package draw

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hastrology/lottery-service/internal/app/domain/lottery"
	"github.com/hastrology/lottery-service/pkg/logger"
)

// Scheduler fires the daily draw at a fixed local wall-clock time. It
// shares ExecuteDraw with the manual and health-check triggers, so all
// entry points get the same idempotency guarantees.
type Scheduler struct {
	svc  *Service
	log  *logger.Logger
	cron *cron.Cron
	spec string
}

// NewScheduler builds a scheduler firing daily at "HH:MM" in the given
// location (local time when loc is nil).
func NewScheduler(svc *Service, log *logger.Logger, at string, loc *time.Location) (*Scheduler, error) {
	if log == nil {
		log = logger.NewDefault("draw-scheduler")
	}
	if loc == nil {
		loc = time.Local
	}

	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("invalid draw time %q: %w", at, err)
	}
	spec := fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())

	return &Scheduler{
		svc:  svc,
		log:  log,
		cron: cron.New(cron.WithLocation(loc)),
		spec: spec,
	}, nil
}

// Name implements system.Service.
func (s *Scheduler) Name() string { return "draw-scheduler" }

// Start registers the daily job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		attempt, err := s.svc.ExecuteDraw(runCtx, lottery.TriggerSchedule)
		if err != nil {
			s.log.WithError(err).Error("scheduled draw failed")
			return
		}
		s.log.WithField("outcome", string(attempt.Outcome)).
			WithField("round_id", attempt.RoundID).
			Info("scheduled draw finished")
	})
	if err != nil {
		return fmt.Errorf("register draw schedule: %w", err)
	}

	s.cron.Start()
	s.log.WithField("spec", s.spec).Info("draw scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for a running job up to the context
// deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("draw scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
