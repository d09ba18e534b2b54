package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"taskhub/internal/models"
)

type WorkspaceRepository interface {
	// Create stores the workspace together with its members.
	Create(ctx context.Context, w *models.Workspace) error
	GetByID(ctx context.Context, id string) (*models.Workspace, error)
	ListByMember(ctx context.Context, userID string) ([]*models.Workspace, error)
	// Update writes name, description and color and refreshes UpdatedAt.
	Update(ctx context.Context, w *models.Workspace) error
}

type workspaceRepository struct {
	DB *sql.DB
}

func NewWorkspaceRepository(db *sql.DB) WorkspaceRepository {
	return &workspaceRepository{DB: db}
}

func (r *workspaceRepository) Create(ctx context.Context, w *models.Workspace) (err error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("workspace create: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const insertWorkspace = `
		INSERT INTO workspaces (id, name, description, color, owner_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	if err = tx.QueryRowContext(ctx, insertWorkspace, w.ID, w.Name, w.Description, w.Color, w.OwnerID).
		Scan(&w.CreatedAt, &w.UpdatedAt); err != nil {
		return fmt.Errorf("workspace create: %w", err)
	}

	const insertMember = `
		INSERT INTO workspace_members (workspace_id, user_id, role, joined_at)
		VALUES ($1, $2, $3, $4)
	`
	for _, m := range w.Members {
		if _, err = tx.ExecContext(ctx, insertMember, w.ID, m.UserID, string(m.Role), m.JoinedAt); err != nil {
			return fmt.Errorf("workspace create member: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("workspace create: commit: %w", err)
	}
	return nil
}

const selectWorkspace = `
	SELECT id, name, description, color, owner_id, created_at, updated_at
	FROM workspaces
`

func (r *workspaceRepository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	w := &models.Workspace{}
	err := r.DB.QueryRowContext(ctx, selectWorkspace+` WHERE id = $1`, id).
		Scan(&w.ID, &w.Name, &w.Description, &w.Color, &w.OwnerID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("workspace by id: %w", err)
	}
	if err := r.loadMembers(ctx, []*models.Workspace{w}); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *workspaceRepository) ListByMember(ctx context.Context, userID string) ([]*models.Workspace, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []*models.Workspace{}, nil
	}
	const q = selectWorkspace + `
		WHERE id IN (SELECT workspace_id FROM workspace_members WHERE user_id = $1)
		ORDER BY created_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("workspace list: %w", err)
	}
	defer rows.Close()

	list := []*models.Workspace{}
	for rows.Next() {
		w := &models.Workspace{}
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.Color, &w.OwnerID, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("workspace list scan: %w", err)
		}
		list = append(list, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("workspace list: %w", err)
	}

	if err := r.loadMembers(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (r *workspaceRepository) Update(ctx context.Context, w *models.Workspace) error {
	if _, err := uuid.Parse(w.ID); err != nil {
		return ErrNotFound
	}
	const q = `
		UPDATE workspaces
		SET name = $2, description = $3, color = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	if err := r.DB.QueryRowContext(ctx, q, w.ID, w.Name, w.Description, w.Color).Scan(&w.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("workspace update: %w", err)
	}
	return nil
}

// loadMembers fills Members for every workspace in one query.
func (r *workspaceRepository) loadMembers(ctx context.Context, list []*models.Workspace) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list))
	byID := make(map[string]*models.Workspace, len(list))
	for _, w := range list {
		ids = append(ids, w.ID)
		byID[w.ID] = w
		w.Members = []models.WorkspaceMember{}
	}

	const q = `
		SELECT workspace_id, user_id, role, joined_at
		FROM workspace_members
		WHERE workspace_id = ANY($1)
		ORDER BY joined_at
	`
	rows, err := r.DB.QueryContext(ctx, q, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("workspace members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			workspaceID string
			role        string
			m           models.WorkspaceMember
		)
		if err := rows.Scan(&workspaceID, &m.UserID, &role, &m.JoinedAt); err != nil {
			return fmt.Errorf("workspace members scan: %w", err)
		}
		m.Role = models.WorkspaceRole(role)
		if w, ok := byID[workspaceID]; ok {
			w.Members = append(w.Members, m)
		}
	}
	return rows.Err()
}
