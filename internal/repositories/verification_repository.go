package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskhub/internal/models"
)

// VerificationRepository stores at most one token per (user, purpose).
type VerificationRepository interface {
	// Save inserts the token, replacing any existing one for the same user and purpose.
	Save(ctx context.Context, t *models.VerificationToken) error
	FindByUserAndPurpose(ctx context.Context, userID string, purpose models.Purpose) (*models.VerificationToken, error)
	// FindByToken looks up the live record for the (userID, token) pair.
	FindByToken(ctx context.Context, userID, token string) (*models.VerificationToken, error)
	Delete(ctx context.Context, id string) error
	DeleteByUserAndPurpose(ctx context.Context, userID string, purpose models.Purpose) error
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type verificationRepository struct {
	DB *sql.DB
}

func NewVerificationRepository(db *sql.DB) VerificationRepository {
	return &verificationRepository{DB: db}
}

func (r *verificationRepository) Save(ctx context.Context, t *models.VerificationToken) error {
	const q = `
		INSERT INTO verification_tokens (id, user_id, token, purpose, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, purpose) DO UPDATE
		SET id = EXCLUDED.id,
		    token = EXCLUDED.token,
		    expires_at = EXCLUDED.expires_at,
		    created_at = NOW()
		RETURNING created_at
	`
	t.ID = uuid.NewString()
	if err := r.DB.QueryRowContext(ctx, q, t.ID, t.UserID, t.Token, string(t.Purpose), t.ExpiresAt).Scan(&t.CreatedAt); err != nil {
		return fmt.Errorf("verification save: %w", err)
	}
	return nil
}

const selectToken = `
	SELECT id, user_id, token, purpose, expires_at, created_at
	FROM verification_tokens
`

func scanToken(row *sql.Row) (*models.VerificationToken, error) {
	t := &models.VerificationToken{}
	var purpose string
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &purpose, &t.ExpiresAt, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("verification scan: %w", err)
	}
	t.Purpose = models.Purpose(purpose)
	return t, nil
}

func (r *verificationRepository) FindByUserAndPurpose(ctx context.Context, userID string, purpose models.Purpose) (*models.VerificationToken, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrNotFound
	}
	return scanToken(r.DB.QueryRowContext(ctx, selectToken+` WHERE user_id = $1 AND purpose = $2`, userID, string(purpose)))
}

func (r *verificationRepository) FindByToken(ctx context.Context, userID, token string) (*models.VerificationToken, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrNotFound
	}
	return scanToken(r.DB.QueryRowContext(ctx, selectToken+` WHERE user_id = $1 AND token = $2`, userID, token))
}

func (r *verificationRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM verification_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("verification delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verification delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *verificationRepository) DeleteByUserAndPurpose(ctx context.Context, userID string, purpose models.Purpose) error {
	const q = `DELETE FROM verification_tokens WHERE user_id = $1 AND purpose = $2`
	if _, err := r.DB.ExecContext(ctx, q, userID, string(purpose)); err != nil {
		return fmt.Errorf("verification delete by purpose: %w", err)
	}
	return nil
}

func (r *verificationRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM verification_tokens WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, fmt.Errorf("verification purge: %w", err)
	}
	return res.RowsAffected()
}
