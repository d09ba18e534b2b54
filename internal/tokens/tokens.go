// Package tokens issues and verifies the signed, expiring, purpose-scoped
// tokens used by the auth workflows.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"taskhub/internal/models"
	"taskhub/internal/utils"
)

var (
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token is expired")
	ErrMalformed        = errors.New("token is malformed")
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Claims is the payload carried by every token.
type Claims struct {
	UserID  string         `json:"userId"`
	Purpose models.Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	issuer string
	clock  Clock
}

func NewIssuer(secret, issuer string, clock Clock) *Issuer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, clock: clock}
}

// Issue signs a token for userID valid for ttl and returns it with its expiry.
func (i *Issuer) Issue(userID string, purpose models.Purpose, ttl time.Duration) (string, time.Time, error) {
	if userID == "" || !purpose.Valid() {
		return "", time.Time{}, fmt.Errorf("issue token: invalid user or purpose %q", purpose)
	}
	jti, err := utils.NewRandomHex(16)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue token: %w", err)
	}

	now := i.clock.Now()
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:  userID,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	// NumericDate truncates to seconds; report what the token actually says.
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks signature and expiry. It does not look at the purpose.
func (i *Issuer) Verify(signed string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(signed, claims,
		func(*jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformed
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrInvalidSignature
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpired
		default:
			return nil, ErrMalformed
		}
	}
	if claims.UserID == "" || !claims.Purpose.Valid() {
		return nil, ErrMalformed
	}
	return claims, nil
}
