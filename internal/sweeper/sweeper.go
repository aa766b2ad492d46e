// Package sweeper periodically deactivates sessions idle past the configured
// timeout. Authentication still expires them lazily on access.
package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Target runs one sweep. *lmsauth.Authority implements it.
type Target interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Sweeper calls Target on a fixed interval.
type Sweeper struct {
	target   Target
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

// New creates a Sweeper. Each pass is bounded by the interval.
func New(target Target, interval time.Duration, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		target:   target,
		interval: interval,
		timeout:  interval,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// A non-positive interval disables the sweeper and Run returns at once.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info().Msg("sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")
	s.Once(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.Once(ctx)
		}
	}
}

// Once runs a single bounded sweep and returns the number of sessions
// deactivated. Failures are logged and reported as zero.
func (s *Sweeper) Once(ctx context.Context) int {
	passCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	n, err := s.target.SweepExpired(passCtx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep failed")
		return 0
	}
	if n > 0 {
		s.logger.Info().Int("deactivated", n).Dur("duration", time.Since(started)).Msg("idle sessions swept")
	}
	return n
}
