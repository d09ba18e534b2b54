package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskhub/internal/authz"
	"taskhub/internal/models"
)

// The memory repositories back the "memory" database driver and the tests.
// They enforce the same uniqueness rules as the real stores.

type memoryUserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]string
}

func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{
		byID:    map[string]*models.User{},
		byEmail: map[string]string{},
	}
}

func (r *memoryUserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[user.Email]; ok {
		return ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	c := *user
	r.byID[c.ID] = &c
	r.byEmail[c.Email] = c.ID
	return nil
}

func (r *memoryUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *memoryUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memoryUserRepository) update(id string, fn func(u *models.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memoryUserRepository) MarkEmailVerified(_ context.Context, id string) error {
	return r.update(id, func(u *models.User) { u.IsEmailVerified = true })
}

func (r *memoryUserRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *models.User) { u.LastLogin = &at })
}

func (r *memoryUserRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return r.update(id, func(u *models.User) { u.PasswordHash = passwordHash })
}

type tokenKey struct {
	userID  string
	purpose models.Purpose
}

type memoryVerificationRepository struct {
	mu     sync.Mutex
	tokens map[tokenKey]*models.VerificationToken
}

func NewMemoryVerificationRepository() VerificationRepository {
	return &memoryVerificationRepository{tokens: map[tokenKey]*models.VerificationToken{}}
}

func (r *memoryVerificationRepository) Save(_ context.Context, t *models.VerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t.ID = uuid.NewString()
	t.CreatedAt = time.Now().UTC()
	c := *t
	r.tokens[tokenKey{t.UserID, t.Purpose}] = &c
	return nil
}

func (r *memoryVerificationRepository) FindByUserAndPurpose(_ context.Context, userID string, purpose models.Purpose) (*models.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tokenKey{userID, purpose}]
	if !ok {
		return nil, ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r *memoryVerificationRepository) FindByToken(_ context.Context, userID, token string) (*models.VerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, t := range r.tokens {
		if k.userID == userID && t.Token == token {
			c := *t
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryVerificationRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, t := range r.tokens {
		if t.ID == id {
			delete(r.tokens, k)
			return nil
		}
	}
	return ErrNotFound
}

func (r *memoryVerificationRepository) DeleteByUserAndPurpose(_ context.Context, userID string, purpose models.Purpose) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, tokenKey{userID, purpose})
	return nil
}

func (r *memoryVerificationRepository) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for k, t := range r.tokens {
		if !t.ExpiresAt.After(before) {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

type memoryWorkspaceRepository struct {
	mu         sync.RWMutex
	workspaces map[string]*models.Workspace
}

func NewMemoryWorkspaceRepository() WorkspaceRepository {
	return &memoryWorkspaceRepository{workspaces: map[string]*models.Workspace{}}
}

func cloneWorkspace(w *models.Workspace) *models.Workspace {
	c := *w
	c.Members = append([]models.WorkspaceMember(nil), w.Members...)
	return &c
}

func (r *memoryWorkspaceRepository) Create(_ context.Context, w *models.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	r.workspaces[w.ID] = cloneWorkspace(w)
	return nil
}

func (r *memoryWorkspaceRepository) GetByID(_ context.Context, id string) (*models.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.workspaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneWorkspace(w), nil
}

func (r *memoryWorkspaceRepository) ListByMember(_ context.Context, userID string) ([]*models.Workspace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := []*models.Workspace{}
	for _, w := range r.workspaces {
		if authz.CanView(w, userID) {
			list = append(list, cloneWorkspace(w))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

func (r *memoryWorkspaceRepository) Update(_ context.Context, w *models.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.workspaces[w.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Name = w.Name
	stored.Description = w.Description
	stored.Color = w.Color
	stored.UpdatedAt = time.Now().UTC()
	w.UpdatedAt = stored.UpdatedAt
	return nil
}
