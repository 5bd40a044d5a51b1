package reservation

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper runs the expired-hold cleanup on a fixed interval until its
// context is cancelled.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewSweeper(svc *Service, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		timeout:  20 * time.Second,
		logger:   logger.With().Str("component", "reservation-sweeper").Logger(),
	}
}

// Run sweeps once at startup and then on every tick.
func (w *Sweeper) Run(ctx context.Context) {
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *Sweeper) RunOnce(ctx context.Context) int64 {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()
	n, err := w.svc.SweepExpired(runCtx)
	if err != nil {
		w.logger.Error().Err(err).Msg("sweep run failed")
		return 0
	}
	w.logger.Info().
		Int64("deleted", n).
		Dur("took", time.Since(start)).
		Msg("sweep run complete")
	return n
}
