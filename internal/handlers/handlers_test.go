package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"taskhub/internal/config"
	"taskhub/internal/logging"
	"taskhub/internal/middleware"
	"taskhub/internal/repositories"
	"taskhub/internal/services"
	"taskhub/internal/tokens"
)

type recordingEmails struct {
	mu    sync.Mutex
	fail  error
	links []string
}

func (r *recordingEmails) SendVerificationEmail(_ context.Context, _, _, link string, _ time.Duration) error {
	return r.record(link)
}

func (r *recordingEmails) SendPasswordResetEmail(_ context.Context, _, _, link string, _ time.Duration) error {
	return r.record(link)
}

func (r *recordingEmails) record(link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.links = append(r.links, link)
	return nil
}

func (r *recordingEmails) setFail(err error) {
	r.mu.Lock()
	r.fail = err
	r.mu.Unlock()
}

func (r *recordingEmails) lastToken(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.links)
	u, err := url.Parse(r.links[len(r.links)-1])
	require.NoError(t, err)
	return u.Query().Get("token")
}

type testServer struct {
	router *gin.Engine
	emails *recordingEmails
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logging.Discard()
	users := repositories.NewMemoryUserRepository()
	emails := &recordingEmails{}
	authSvc := services.NewAuthService(services.AuthServiceDeps{
		Users:  users,
		Tokens: repositories.NewMemoryVerificationRepository(),
		Issuer: tokens.NewIssuer("test-secret", "taskhub-test", nil),
		Hasher: services.NewBcryptHasher(bcrypt.MinCost),
		Emails: emails,
		Log:    log,
		Settings: config.AuthConfig{
			ClientURL:       "http://client.test",
			VerificationTTL: time.Hour,
			ResetTTL:        15 * time.Minute,
			SessionTTL:      7 * 24 * time.Hour,
		},
	})

	authHandler := NewAuthHandler(authSvc, services.NewUserService(users))
	wsHandler := NewWorkspaceHandler(services.NewWorkspaceService(repositories.NewMemoryWorkspaceRepository(), nil, log))

	r := gin.New()
	requireAuth := middleware.AuthMiddleware(authSvc)
	auth := r.Group("/api-v1/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/verify-email", authHandler.VerifyEmail)
	auth.POST("/resend-verification", authHandler.ResendVerification)
	auth.POST("/reset-password-request", authHandler.RequestPasswordReset)
	auth.POST("/reset-password", authHandler.ResetPassword)
	auth.GET("/me", requireAuth, authHandler.Me)
	auth.POST("/logout", requireAuth, authHandler.Logout)
	ws := r.Group("/api-v1/workspaces", requireAuth)
	ws.POST("", wsHandler.Create)
	ws.GET("", wsHandler.List)
	ws.GET("/:id", wsHandler.Get)
	ws.PATCH("/:id", wsHandler.Update)

	return &testServer{router: r, emails: emails}
}

func (s *testServer) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// signIn registers, verifies and logs in, returning the session token.
func (s *testServer) signIn(t *testing.T, email string) string {
	t.Helper()
	w := s.do(http.MethodPost, "/api-v1/auth/register", gin.H{"name": "A", "email": email, "password": "secret123"}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodPost, "/api-v1/auth/verify-email", gin.H{"token": s.emails.lastToken(t)}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodPost, "/api-v1/auth/login", gin.H{"email": email, "password": "secret123"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func TestRegisterVerifyLogin(t *testing.T) {
	s := setupServer(t)

	w := s.do(http.MethodPost, "/api-v1/auth/register", gin.H{"name": "A", "email": "a@x.com", "password": "secret123"}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Verification email sent. Please verify your account.", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, false, user["isEmailVerified"])
	assert.NotContains(t, w.Body.String(), "password")

	w = s.do(http.MethodPost, "/api-v1/auth/login", gin.H{"email": "a@x.com", "password": "secret123"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", decode(t, w)["code"])

	tok := s.emails.lastToken(t)
	w = s.do(http.MethodPost, "/api-v1/auth/verify-email", gin.H{"token": tok}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api-v1/auth/verify-email", gin.H{"token": tok}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api-v1/auth/login", gin.H{"email": "a@x.com", "password": "secret123"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, true, body["user"].(map[string]any)["isEmailVerified"])
}

func TestRegister_DuplicateAndValidation(t *testing.T) {
	s := setupServer(t)

	w := s.do(http.MethodPost, "/api-v1/auth/register", gin.H{"name": "A", "email": "a@x.com", "password": "secret123"}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/api-v1/auth/register", gin.H{"name": "A", "email": "a@x.com", "password": "secret123"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"code":"DUPLICATE_EMAIL","message":"User already exists"}`, w.Body.String())

	w = s.do(http.MethodPost, "/api-v1/auth/register", gin.H{"name": "A", "email": "not-an-email", "password": "secret123"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", decode(t, w)["code"])

	w = s.do(http.MethodPost, "/api-v1/auth/register", gin.H{"name": "A", "email": "b@x.com", "password": "123"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_NotificationFailureIs500WithoutDetail(t *testing.T) {
	s := setupServer(t)
	s.emails.setFail(errors.New("dial tcp 10.0.0.1:587: connection refused"))

	w := s.do(http.MethodPost, "/api-v1/auth/register", gin.H{"name": "A", "email": "a@x.com", "password": "secret123"}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"code":"NOTIFICATION_FAILED","message":"Failed to send email"}`, w.Body.String())

	s.emails.setFail(nil)
	w = s.do(http.MethodPost, "/api-v1/auth/login", gin.H{"email": "a@x.com", "password": "secret123"}, "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["verificationSent"])
	assert.NotContains(t, body, "token")
}

func TestLogin_InvalidCredentials(t *testing.T) {
	s := setupServer(t)
	s.signIn(t, "a@x.com")

	unknown := s.do(http.MethodPost, "/api-v1/auth/login", gin.H{"email": "b@x.com", "password": "secret123"}, "")
	wrong := s.do(http.MethodPost, "/api-v1/auth/login", gin.H{"email": "a@x.com", "password": "nope-nope"}, "")

	assert.Equal(t, http.StatusBadRequest, unknown.Code)
	assert.Equal(t, http.StatusBadRequest, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
}

func TestPasswordResetFlow(t *testing.T) {
	s := setupServer(t)
	s.signIn(t, "a@x.com")

	w := s.do(http.MethodPost, "/api-v1/auth/reset-password-request", gin.H{"email": "nobody@x.com"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api-v1/auth/reset-password-request", gin.H{"email": "a@x.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPost, "/api-v1/auth/reset-password-request", gin.H{"email": "a@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "RESET_ALREADY_REQUESTED", decode(t, w)["code"])

	tok := s.emails.lastToken(t)
	w = s.do(http.MethodPost, "/api-v1/auth/reset-password", gin.H{"token": tok, "newPassword": "newpass123", "confirmPassword": "other"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "PASSWORD_MISMATCH", decode(t, w)["code"])

	w = s.do(http.MethodPost, "/api-v1/auth/reset-password", gin.H{"token": tok, "newPassword": "newpass123", "confirmPassword": "newpass123"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api-v1/auth/reset-password", gin.H{"token": tok, "newPassword": "newpass123", "confirmPassword": "newpass123"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api-v1/auth/login", gin.H{"email": "a@x.com", "password": "newpass123"}, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResendVerification(t *testing.T) {
	s := setupServer(t)

	w := s.do(http.MethodPost, "/api-v1/auth/resend-verification", gin.H{"email": "a@x.com"}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.signIn(t, "a@x.com")
	w = s.do(http.MethodPost, "/api-v1/auth/resend-verification", gin.H{"email": "a@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ALREADY_VERIFIED", decode(t, w)["code"])
}

func TestMeAndLogout(t *testing.T) {
	s := setupServer(t)
	token := s.signIn(t, "a@x.com")

	w := s.do(http.MethodGet, "/api-v1/auth/me", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "a@x.com", decode(t, w)["email"])

	w = s.do(http.MethodGet, "/api-v1/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api-v1/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api-v1/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWorkspaces(t *testing.T) {
	s := setupServer(t)
	alice := s.signIn(t, "alice@x.com")
	bob := s.signIn(t, "bob@x.com")

	w := s.do(http.MethodPost, "/api-v1/workspaces", gin.H{"name": "Team", "description": "Our tasks"}, alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := created["_id"].(string)
	assert.Equal(t, "#FF5733", created["color"])

	w = s.do(http.MethodPost, "/api-v1/workspaces", gin.H{"name": "Team", "description": "d", "color": "red"}, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api-v1/workspaces", nil, alice)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["workspaces"], 1)

	w = s.do(http.MethodGet, "/api-v1/workspaces/"+id, nil, alice)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/api-v1/workspaces/"+id, nil, bob)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api-v1/workspaces", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusFor(t *testing.T) {
	cases := map[services.Kind]int{
		services.KindValidation:            http.StatusBadRequest,
		services.KindDuplicateEmail:        http.StatusBadRequest,
		services.KindInvalidCredentials:    http.StatusBadRequest,
		services.KindEmailNotVerified:      http.StatusBadRequest,
		services.KindAlreadyVerified:       http.StatusBadRequest,
		services.KindResetAlreadyRequested: http.StatusBadRequest,
		services.KindPasswordMismatch:      http.StatusBadRequest,
		services.KindUnauthorized:          http.StatusUnauthorized,
		services.KindTokenExpired:          http.StatusUnauthorized,
		services.KindUserNotFound:          http.StatusNotFound,
		services.KindNotFound:              http.StatusNotFound,
		services.KindForbidden:             http.StatusForbidden,
		services.KindNotificationFailed:    http.StatusInternalServerError,
		services.KindInternal:              http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind)
	}
}

func TestUpdateWorkspace(t *testing.T) {
	s := setupServer(t)
	alice := s.signIn(t, "alice@x.com")
	bob := s.signIn(t, "bob@x.com")

	w := s.do(http.MethodPost, "/api-v1/workspaces", gin.H{"name": "Team", "description": "Our tasks"}, alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["_id"].(string)

	w = s.do(http.MethodPatch, "/api-v1/workspaces/"+id, gin.H{"name": "Renamed"}, alice)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Renamed", body["name"])
	assert.Equal(t, "Our tasks", body["description"])

	w = s.do(http.MethodPatch, "/api-v1/workspaces/"+id, gin.H{"color": "red"}, alice)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, map[string]any{"color": "must be a hex color"}, decode(t, w)["fields"])

	w = s.do(http.MethodPatch, "/api-v1/workspaces/"+id, gin.H{"name": "Mine"}, bob)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPatch, "/api-v1/workspaces/"+id, gin.H{"name": "Mine"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBindErrorsDoNotLeakValidatorText(t *testing.T) {
	s := setupServer(t)

	w := s.do(http.MethodPost, "/api-v1/auth/register", gin.H{"name": "A", "email": "not-an-email", "password": "secret123"}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "RegisterRequest")
	assert.NotContains(t, w.Body.String(), "Key:")
	body := decode(t, w)
	assert.Equal(t, "VALIDATION", body["code"])
	assert.Equal(t, "email: must be a valid email address", body["message"])
	assert.Equal(t, map[string]any{"email": "must be a valid email address"}, body["fields"])

	w = s.do(http.MethodPost, "/api-v1/auth/register", gin.H{}, "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	fields := decode(t, w)["fields"].(map[string]any)
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "is required", fields["email"])
	assert.Equal(t, "is required", fields["password"])

	req := httptest.NewRequest(http.MethodPost, "/api-v1/auth/login", bytes.NewBufferString(`{"email":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"code":"VALIDATION","message":"Invalid request body"}`, rec.Body.String())
}

func TestLongPasswordsAreValidationErrors(t *testing.T) {
	s := setupServer(t)

	// 40 runes pass the binding, 80 bytes exceed bcrypt's limit
	w := s.do(http.MethodPost, "/api-v1/auth/register",
		gin.H{"name": "A", "email": "a@x.com", "password": strings.Repeat("é", 40)}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION", decode(t, w)["code"])

	s.signIn(t, "b@x.com")
	w = s.do(http.MethodPost, "/api-v1/auth/reset-password-request", gin.H{"email": "b@x.com"}, "")
	require.Equal(t, http.StatusOK, w.Code)

	long := strings.Repeat("x", 80)
	w = s.do(http.MethodPost, "/api-v1/auth/reset-password",
		gin.H{"token": s.emails.lastToken(t), "newPassword": long, "confirmPassword": long}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "VALIDATION", body["code"])
	assert.Equal(t, map[string]any{"newPassword": "must be at most 72 characters"}, body["fields"])
}
