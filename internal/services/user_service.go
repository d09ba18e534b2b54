package services

import (
	"context"
	"errors"

	"taskhub/internal/models"
	"taskhub/internal/repositories"
)

type UserService interface {
	// GetProfile returns the user without the password hash.
	GetProfile(ctx context.Context, id string) (*models.User, error)
}

type userService struct {
	repo repositories.UserRepository
}

func NewUserService(repo repositories.UserRepository) UserService {
	return &userService{repo: repo}
}

func (s *userService) GetProfile(ctx context.Context, id string) (*models.User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("user profile", err)
	}
	return u.Sanitized(), nil
}
