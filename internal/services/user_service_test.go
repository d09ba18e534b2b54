package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhub/internal/models"
	"taskhub/internal/repositories"
)

func TestUserService_GetProfile(t *testing.T) {
	repo := repositories.NewMemoryUserRepository()
	ctx := context.Background()
	u := &models.User{Name: "A", Email: "a@x.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, u))

	svc := NewUserService(repo)
	got, err := svc.GetProfile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Empty(t, got.PasswordHash)

	_, err = svc.GetProfile(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
