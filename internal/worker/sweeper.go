package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionStore deletes sessions past their expiry.
type SessionStore interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// SessionSweeper periodically purges expired sessions.
type SessionSweeper struct {
	store    SessionStore
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewSessionSweeper creates a sweeper that runs every interval.
func NewSessionSweeper(store SessionStore, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &SessionSweeper{store: store, interval: interval, now: time.Now, logger: logger}
}

// SweepOnce deletes expired sessions and returns how many were removed.
func (s *SessionSweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", zap.Int64("count", n))
	}
	return n, nil
}

// Run sweeps immediately and then on every tick until ctx is done.
func (s *SessionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("session sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("session sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}
