package trading

import (
	"context"
	"errors"
	"log"
	"time"

	"tradesrv/internal/model"
	"tradesrv/internal/predictor"
)

// Maintenance is the background loop that keeps models fresh and backups
// current. It is a separate component so tests can drive single iterations
// without real wall-clock sleeps.
type Maintenance struct {
	svc *Service
}

// NewMaintenance wraps a service for background upkeep.
func NewMaintenance(svc *Service) *Maintenance {
	return &Maintenance{svc: svc}
}

// RunOnce performs one maintenance pass over every known symbol: retrain
// when the buffer has reached a retrain point (>= 500 bars and a multiple
// of the retrain step), then run the interval backup check. Per-symbol
// failures are logged and do not stop the pass; the first error is
// returned so Run can apply its cooldown.
func (m *Maintenance) RunOnce(ctx context.Context) error {
	var first error
	for _, sym := range m.svc.Symbols() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st := m.svc.state(sym)
		size := st.buf.Len()

		if size >= predictor.MinTrainBars && size%m.svc.cfg.RetrainStep == 0 {
			log.Printf("[maintenance] %s: retrain point reached at %d bars", sym, size)
			if _, err := m.svc.Retrain(sym); err != nil && !errors.Is(err, model.ErrInsufficientData) {
				log.Printf("[maintenance] %s: retrain failed: %v", sym, err)
				if first == nil {
					first = err
				}
			}
		}

		wrote, err := st.buf.MaybeSnapshot()
		if err != nil {
			log.Printf("[maintenance] %s: interval backup failed: %v", sym, err)
			if first == nil {
				first = err
			}
			continue
		}
		if wrote {
			if mm := m.svc.deps.Metrics; mm != nil {
				mm.BackupsTotal.WithLabelValues(sym).Inc()
			}
		}
	}
	return first
}

// Run executes maintenance passes until ctx is cancelled. A pass that
// returns an error shortens the wait to the error cooldown; the loop itself
// never exits on a symbol failure.
func (m *Maintenance) Run(ctx context.Context) {
	interval := m.svc.cfg.MaintenanceInterval
	cooldown := m.svc.cfg.ErrorCooldown
	log.Printf("[maintenance] loop started, interval %s", interval)

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[maintenance] loop stopped: %v", ctx.Err())
			return
		case <-timer.C:
		}

		wait := interval
		if err := m.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[maintenance] pass failed, retrying in %s: %v", cooldown, err)
			wait = cooldown
		}
		timer.Reset(wait)
	}
}
