package services

import (
	"context"
	"log/slog"
	"time"

	"taskhub/internal/repositories"
	"taskhub/internal/tokens"
)

// Janitor periodically removes expired token records. Mongo does the same
// through its TTL index, so running both is harmless.
type Janitor struct {
	repo     repositories.VerificationRepository
	interval time.Duration
	clock    tokens.Clock
	log      *slog.Logger
}

func NewJanitor(repo repositories.VerificationRepository, interval time.Duration, clock tokens.Clock, log *slog.Logger) *Janitor {
	if clock == nil {
		clock = tokens.SystemClock{}
	}
	return &Janitor{repo: repo, interval: interval, clock: clock, log: log}
}

// Sweep purges once and returns how many records were removed.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	n, err := j.repo.PurgeExpired(ctx, j.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.log.InfoContext(ctx, "expired tokens purged", "count", n)
	}
	return n, nil
}

// Run sweeps every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	if j.interval <= 0 {
		return
	}
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := j.Sweep(ctx); err != nil {
				j.log.WarnContext(ctx, "token purge failed", "error", err)
			}
		}
	}
}
