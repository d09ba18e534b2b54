package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/logging"
	"taskhub/internal/models"
	"taskhub/internal/repositories"
)

func TestJanitor_Sweep(t *testing.T) {
	repo := repositories.NewMemoryVerificationRepository()
	clock := newFakeClock()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &models.VerificationToken{UserID: "u1", Token: "a", Purpose: models.PurposeResetPassword, ExpiresAt: clock.Now().Add(15 * time.Minute)}))
	require.NoError(t, repo.Save(ctx, &models.VerificationToken{UserID: "u2", Token: "b", Purpose: models.PurposeEmailVerification, ExpiresAt: clock.Now().Add(time.Hour)}))

	j := NewJanitor(repo, time.Minute, clock, logging.Discard())

	n, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(30 * time.Minute)
	n, err = j.Sweep(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = repo.FindByToken(ctx, "u2", "b")
	assert.NoError(t, err)
}

func TestJanitor_RunStopsOnCancel(t *testing.T) {
	j := NewJanitor(repositories.NewMemoryVerificationRepository(), time.Millisecond, nil, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
