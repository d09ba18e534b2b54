package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"taskhub/internal/authz"
	"taskhub/internal/models"
	"taskhub/internal/repositories"
	"taskhub/internal/tokens"
)

type WorkspaceService interface {
	Create(ctx context.Context, ownerID string, req models.CreateWorkspaceRequest) (*models.Workspace, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Workspace, error)
	// Get returns the workspace only if userID is a member of it.
	Get(ctx context.Context, userID, id string) (*models.Workspace, error)
	// Update is limited to owners and admins. Non-members get NotFound.
	Update(ctx context.Context, userID, id string, req models.UpdateWorkspaceRequest) (*models.Workspace, error)
}

type workspaceService struct {
	repo  repositories.WorkspaceRepository
	clock tokens.Clock
	log   *slog.Logger
}

func NewWorkspaceService(repo repositories.WorkspaceRepository, clock tokens.Clock, log *slog.Logger) WorkspaceService {
	if clock == nil {
		clock = tokens.SystemClock{}
	}
	return &workspaceService{repo: repo, clock: clock, log: log}
}

func (s *workspaceService) Create(ctx context.Context, ownerID string, req models.CreateWorkspaceRequest) (*models.Workspace, error) {
	name := strings.TrimSpace(req.Name)
	description := strings.TrimSpace(req.Description)
	if name == "" || description == "" {
		return nil, validationError("name and description are required")
	}
	color := strings.TrimSpace(req.Color)
	if color == "" {
		color = models.DefaultWorkspaceColor
	}

	w := &models.Workspace{
		Name:        name,
		Description: description,
		Color:       color,
		OwnerID:     ownerID,
		Members: []models.WorkspaceMember{
			{UserID: ownerID, Role: models.RoleOwner, JoinedAt: s.clock.Now().UTC()},
		},
	}
	if err := s.repo.Create(ctx, w); err != nil {
		return nil, internalError("workspace create", err)
	}
	s.log.InfoContext(ctx, "workspace created", "workspace_id", w.ID, "owner_id", ownerID)
	return w, nil
}

func (s *workspaceService) ListForUser(ctx context.Context, userID string) ([]*models.Workspace, error) {
	list, err := s.repo.ListByMember(ctx, userID)
	if err != nil {
		return nil, internalError("workspace list", err)
	}
	return list, nil
}

func (s *workspaceService) Get(ctx context.Context, userID, id string) (*models.Workspace, error) {
	w, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError("workspace get", err)
	}
	if !authz.CanView(w, userID) {
		return nil, ErrNotFound
	}
	return w, nil
}

func (s *workspaceService) Update(ctx context.Context, userID, id string, req models.UpdateWorkspaceRequest) (*models.Workspace, error) {
	w, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	role, _ := authz.RoleIn(w, userID)
	if !authz.IsElevated(role) {
		return nil, ErrForbidden
	}

	if name := strings.TrimSpace(req.Name); name != "" {
		w.Name = name
	}
	if description := strings.TrimSpace(req.Description); description != "" {
		w.Description = description
	}
	if color := strings.TrimSpace(req.Color); color != "" {
		w.Color = color
	}
	if err := s.repo.Update(ctx, w); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, internalError("workspace update", err)
	}
	s.log.InfoContext(ctx, "workspace updated", "workspace_id", w.ID, "user_id", userID, "role", role)
	return w, nil
}
