package auth

import (
	"context"
	"time"
)

// DefaultSweepInterval is how often the sweeper purges expired
// verification tokens.
const DefaultSweepInterval = time.Hour

// TokenSweeper periodically deletes expired verification tokens.
// Redemption already rejects expired tokens, so the sweep is pure
// hygiene: it bounds table growth, nothing depends on its timing.
type TokenSweeper struct {
	tokens   VerificationTokens
	interval time.Duration
	logger   Logger
}

func NewTokenSweeper(tokens VerificationTokens) *TokenSweeper {
	return &TokenSweeper{
		tokens:   tokens,
		interval: DefaultSweepInterval,
		logger:   defLogger{},
	}
}

func (s *TokenSweeper) WithInterval(interval time.Duration) *TokenSweeper {
	if interval > 0 {
		s.interval = interval
	}
	return s
}

func (s *TokenSweeper) WithLogger(logger Logger) *TokenSweeper {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Run sweeps on a fixed interval until the context is cancelled. It
// blocks; run it in its own goroutine.
func (s *TokenSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *TokenSweeper) sweep(ctx context.Context) {
	purged, err := s.tokens.SweepExpired(ctx, time.Now())
	if err != nil {
		s.logger.Error("verification token sweep failed", "error", err)
		return
	}

	if purged > 0 {
		s.logger.Info("purged expired verification tokens", "count", purged)
	}
}
