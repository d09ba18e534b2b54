package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhub/internal/models"
	"taskhub/internal/services"
)

const verificationSentMessage = "Verification email sent. Please verify your account."

type AuthHandler struct {
	authService services.AuthService
	userService services.UserService
}

func NewAuthHandler(authService services.AuthService, userService services.UserService) *AuthHandler {
	return &AuthHandler{authService: authService, userService: userService}
}

type registerResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

type pendingVerificationResponse struct {
	Message          string `json:"message"`
	VerificationSent bool   `json:"verificationSent"`
}

// @Summary      Register
// @Description  Creates an unverified account and emails a verification link
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.RegisterRequest  true  "New account"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	user, err := h.authService.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(c, "register", err)
		return
	}
	recordOK("register")
	c.JSON(http.StatusCreated, registerResponse{Message: verificationSentMessage, User: user})
}

// @Summary      Login
// @Description  Returns a session token for verified users. Unverified users without a pending link get a new one (202).
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.LoginRequest  true  "Credentials"
// @Success      200   {object}  models.LoginResponse
// @Success      202   {object}  pendingVerificationResponse
// @Failure      400   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	res, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, "login", err)
		return
	}
	if res.VerificationSent {
		recordOK("login_verification_sent")
		c.JSON(http.StatusAccepted, pendingVerificationResponse{Message: verificationSentMessage, VerificationSent: true})
		return
	}
	recordOK("login")
	c.JSON(http.StatusOK, models.LoginResponse{Token: res.Token, User: res.User})
}

// @Summary      Verify email
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyEmailRequest  true  "Token from the emailed link"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/verify-email [post]
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req models.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.authService.VerifyEmail(c.Request.Context(), req.Token); err != nil {
		writeError(c, "verify_email", err)
		return
	}
	recordOK("verify_email")
	c.JSON(http.StatusOK, messageResponse{Message: "Email verified successfully"})
}

// @Summary      Resend verification email
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "Account email"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/resend-verification [post]
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req models.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.authService.ResendVerification(c.Request.Context(), req.Email); err != nil {
		writeError(c, "resend_verification", err)
		return
	}
	recordOK("resend_verification")
	c.JSON(http.StatusOK, messageResponse{Message: "Verification email sent"})
}

// @Summary      Request password reset
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "Account email"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/reset-password-request [post]
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req models.EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.authService.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, "reset_request", err)
		return
	}
	recordOK("reset_request")
	c.JSON(http.StatusOK, messageResponse{Message: "Reset password email sent"})
}

// @Summary      Reset password
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.ResetPasswordRequest  true  "Token and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/reset-password [post]
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword, req.ConfirmPassword); err != nil {
		writeError(c, "reset_password", err)
		return
	}
	recordOK("reset_password")
	c.JSON(http.StatusOK, messageResponse{Message: "Password reset successfully"})
}

// @Summary      Current user
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  models.User
// @Failure      401  {object}  errorResponse
// @Router       /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, "", services.ErrUnauthorized)
		return
	}
	user, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		writeError(c, "", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// @Summary      Logout
// @Description  Revokes the current session token
// @Tags         Auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Router       /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		writeError(c, "", services.ErrUnauthorized)
		return
	}
	if err := h.authService.Logout(c.Request.Context(), userID); err != nil {
		writeError(c, "logout", err)
		return
	}
	recordOK("logout")
	c.JSON(http.StatusOK, messageResponse{Message: "Logged out"})
}
