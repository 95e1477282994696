package rental

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically computes overdue rentals, reports the count to the observer
// and announces each overdue rental.
type Sweeper struct {
	engine   *Engine
	notifier OverdueNotifier
	interval time.Duration
	log      *zap.Logger
}

// NewSweeper creates a sweeper. notifier may be nil.
func NewSweeper(engine *Engine, notifier OverdueNotifier, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{engine: engine, notifier: notifier, interval: interval, log: log}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("Overdue sweep failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepOnce runs a single sweep as of the engine's clock.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]Overdue, error) {
	overdue, err := s.engine.ComputeOverdue(ctx, s.engine.now())
	if err != nil {
		return nil, err
	}

	if s.engine.observer != nil {
		s.engine.observer.ObserveOverdue(len(overdue))
	}
	s.log.Info("Overdue sweep completed", zap.Int("overdue", len(overdue)))

	if s.notifier == nil {
		return overdue, nil
	}
	for _, o := range overdue {
		if err := s.notifier.RentalOverdue(ctx, o.Rental, o.DaysOverdue); err != nil {
			s.log.Warn("Failed to publish overdue event",
				zap.String("rental_id", o.Rental.ID),
				zap.Error(err),
			)
		}
	}
	return overdue, nil
}
