package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"taskhub/internal/config"
	"taskhub/internal/models"
	"taskhub/internal/repositories"
	"taskhub/internal/tokens"
	"taskhub/internal/utils"
)

const (
	verifyEmailPath   = "/verify-email"
	resetPasswordPath = "/reset-password"
)

type AuthService interface {
	// Register creates an unverified user and emails a verification link.
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	// Login returns a session token for verified users. For unverified users
	// without a live verification token it re-sends the link and reports
	// VerificationSent instead of a token.
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error
	// Authenticate resolves a session token to its user.
	Authenticate(ctx context.Context, token string) (*models.User, error)
	Logout(ctx context.Context, userID string) error
}

type LoginResult struct {
	Token            string
	User             *models.User
	VerificationSent bool
}

type AuthServiceDeps struct {
	Users    repositories.UserRepository
	Tokens   repositories.VerificationRepository
	Issuer   *tokens.Issuer
	Hasher   PasswordHasher
	Emails   EmailService
	Clock    tokens.Clock
	Log      *slog.Logger
	Settings config.AuthConfig
}

type authService struct {
	users    repositories.UserRepository
	tokens   repositories.VerificationRepository
	issuer   *tokens.Issuer
	hasher   PasswordHasher
	emails   EmailService
	clock    tokens.Clock
	log      *slog.Logger
	settings config.AuthConfig

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(d AuthServiceDeps) AuthService {
	if d.Clock == nil {
		d.Clock = tokens.SystemClock{}
	}
	return &authService{
		users:    d.Users,
		tokens:   d.Tokens,
		issuer:   d.Issuer,
		hasher:   d.Hasher,
		emails:   d.Emails,
		clock:    d.Clock,
		log:      d.Log,
		settings: d.Settings,
	}
}

// compareDummy costs one hash comparison, the same as a wrong password for
// a known account.
func (s *authService) compareDummy(password string) {
	s.dummyOnce.Do(func() {
		seed, err := utils.NewRandomHex(16)
		if err == nil {
			s.dummyHash, err = s.hasher.Hash(seed)
		}
		if err != nil {
			s.log.Warn("dummy password hash unavailable", "error", err)
		}
	})
	if s.dummyHash != "" {
		_ = s.hasher.Compare(s.dummyHash, password)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" {
		return nil, validationError("name and email are required")
	}
	if err := checkPasswordLength(password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, internalError("register: lookup", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, internalError("register: hash", err)
	}
	user := &models.User{Name: name, Email: email, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, internalError("register: create", err)
	}
	s.log.InfoContext(ctx, "user registered", "user_id", user.ID)

	if err := s.sendVerification(ctx, user); err != nil {
		return nil, err
	}
	return user.Sanitized(), nil
}

// sendVerification supersedes any verification token of user with a fresh
// one and emails it. An undelivered token is removed again so the next
// login or resend issues a new one.
func (s *authService) sendVerification(ctx context.Context, user *models.User) error {
	rec, err := s.issueAndSave(ctx, user.ID, models.PurposeEmailVerification, s.settings.VerificationTTL)
	if err != nil {
		return err
	}
	link := utils.BuildLink(s.settings.ClientURL, verifyEmailPath, rec.Token)
	if err := s.emails.SendVerificationEmail(ctx, user.Email, user.Name, link, s.settings.VerificationTTL); err != nil {
		s.log.ErrorContext(ctx, "verification email failed", "user_id", user.ID, "error", err)
		s.dropToken(ctx, rec)
		return withCause(ErrNotificationFailed, err)
	}
	return nil
}

// issueAndSave signs a token and stores it as the only record for
// (userID, purpose).
func (s *authService) issueAndSave(ctx context.Context, userID string, purpose models.Purpose, ttl time.Duration) (*models.VerificationToken, error) {
	signed, expiresAt, err := s.issuer.Issue(userID, purpose, ttl)
	if err != nil {
		return nil, internalError("issue token", err)
	}
	rec := &models.VerificationToken{
		UserID:    userID,
		Token:     signed,
		Purpose:   purpose,
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.Save(ctx, rec); err != nil {
		return nil, internalError("save token", err)
	}
	return rec, nil
}

// dropToken deletes rec unless it has already been consumed or superseded.
func (s *authService) dropToken(ctx context.Context, rec *models.VerificationToken) {
	if err := s.tokens.Delete(ctx, rec.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.log.WarnContext(ctx, "token delete failed", "user_id", rec.UserID, "purpose", rec.Purpose, "error", err)
	}
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = normalizeEmail(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.compareDummy(password)
			return nil, ErrInvalidCredentials
		}
		return nil, internalError("login: lookup", err)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.clock.Now()
	if !user.IsEmailVerified {
		pending, err := s.tokens.FindByUserAndPurpose(ctx, user.ID, models.PurposeEmailVerification)
		switch {
		case err == nil && pending.Active(now):
			return nil, ErrEmailNotVerified
		case err != nil && !errors.Is(err, repositories.ErrNotFound):
			return nil, internalError("login: pending verification", err)
		}
		if err := s.sendVerification(ctx, user); err != nil {
			return nil, err
		}
		return &LoginResult{User: user.Sanitized(), VerificationSent: true}, nil
	}

	rec, err := s.issueAndSave(ctx, user.ID, models.PurposeLogin, s.settings.SessionTTL)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, internalError("login: last login", err)
	}
	user.LastLogin = &now
	s.log.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{Token: rec.Token, User: user.Sanitized()}, nil
}

// consume runs the shared token checks: signature, purpose, store-side
// liveness and expiry. It returns the live record on success.
func (s *authService) consume(ctx context.Context, signed string, purpose models.Purpose) (*models.VerificationToken, error) {
	signed = strings.TrimSpace(signed)
	claims, err := s.issuer.Verify(signed)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, withCause(ErrUnauthorized, err)
	}
	if claims.Purpose != purpose {
		return nil, ErrUnauthorized
	}
	rec, err := s.tokens.FindByToken(ctx, claims.UserID, signed)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, internalError("token lookup", err)
	}
	if rec.Purpose != purpose {
		return nil, ErrUnauthorized
	}
	if !rec.Active(s.clock.Now()) {
		return nil, ErrTokenExpired
	}
	return rec, nil
}

func (s *authService) VerifyEmail(ctx context.Context, token string) error {
	rec, err := s.consume(ctx, token, models.PurposeEmailVerification)
	if err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUnauthorized
		}
		return internalError("verify email: user", err)
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}
	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return internalError("verify email: mark", err)
	}
	s.dropToken(ctx, rec)
	s.log.InfoContext(ctx, "email verified", "user_id", user.ID)
	return nil
}

func (s *authService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.IsEmailVerified {
		return ErrAlreadyVerified
	}
	return s.sendVerification(ctx, user)
}

func (s *authService) userByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("user by email", err)
	}
	return user, nil
}

func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !user.IsEmailVerified {
		return ErrEmailNotVerified
	}

	existing, err := s.tokens.FindByUserAndPurpose(ctx, user.ID, models.PurposeResetPassword)
	switch {
	case err == nil && existing.Active(s.clock.Now()):
		return ErrResetAlreadyRequested
	case err != nil && !errors.Is(err, repositories.ErrNotFound):
		return internalError("reset request: lookup", err)
	}

	rec, err := s.issueAndSave(ctx, user.ID, models.PurposeResetPassword, s.settings.ResetTTL)
	if err != nil {
		return err
	}
	link := utils.BuildLink(s.settings.ClientURL, resetPasswordPath, rec.Token)
	if err := s.emails.SendPasswordResetEmail(ctx, user.Email, user.Name, link, s.settings.ResetTTL); err != nil {
		s.log.ErrorContext(ctx, "reset email failed", "user_id", user.ID, "error", err)
		s.dropToken(ctx, rec)
		return withCause(ErrNotificationFailed, err)
	}
	s.log.InfoContext(ctx, "password reset requested", "user_id", user.ID)
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, token, newPassword, confirmPassword string) error {
	rec, err := s.consume(ctx, token, models.PurposeResetPassword)
	if err != nil {
		return err
	}
	if newPassword != confirmPassword {
		return ErrPasswordMismatch
	}
	if err := checkPasswordLength(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return internalError("reset password: hash", err)
	}
	if err := s.users.UpdatePassword(ctx, rec.UserID, hash); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrUnauthorized
		}
		return internalError("reset password: update", err)
	}
	s.dropToken(ctx, rec)
	// existing sessions were authenticated with the old password
	if err := s.tokens.DeleteByUserAndPurpose(ctx, rec.UserID, models.PurposeLogin); err != nil {
		s.log.WarnContext(ctx, "session revoke failed", "user_id", rec.UserID, "error", err)
	}
	s.log.InfoContext(ctx, "password reset", "user_id", rec.UserID)
	return nil
}

func (s *authService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	rec, err := s.consume(ctx, token, models.PurposeLogin)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, internalError("authenticate: user", err)
	}
	return user.Sanitized(), nil
}

func (s *authService) Logout(ctx context.Context, userID string) error {
	if err := s.tokens.DeleteByUserAndPurpose(ctx, userID, models.PurposeLogin); err != nil {
		return internalError("logout", err)
	}
	s.log.InfoContext(ctx, "user logged out", "user_id", userID)
	return nil
}
