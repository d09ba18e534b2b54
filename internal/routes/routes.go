package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taskhub/internal/handlers"
)

// SetupRoutes mounts the API under basePath. rateLimit guards the public auth
// endpoints and may be nil.
func SetupRoutes(
	r *gin.Engine,
	basePath string,
	authHandler *handlers.AuthHandler,
	workspaceHandler *handlers.WorkspaceHandler,
	requireAuth gin.HandlerFunc,
	rateLimit gin.HandlerFunc,
) *gin.Engine {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to TaskHub API"})
	})

	api := r.Group(basePath)

	// ---- public
	auth := api.Group("/auth")
	if rateLimit != nil {
		auth.Use(rateLimit)
	}
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/verify-email", authHandler.VerifyEmail)
		auth.POST("/resend-verification", authHandler.ResendVerification)
		auth.POST("/reset-password-request", authHandler.RequestPasswordReset)
		auth.POST("/reset-password", authHandler.ResetPassword)
	}

	// ---- protected
	session := api.Group("/auth", requireAuth)
	{
		session.GET("/me", authHandler.Me)
		session.POST("/logout", authHandler.Logout)
	}

	workspaces := api.Group("/workspaces", requireAuth)
	{
		workspaces.POST("", workspaceHandler.Create)
		workspaces.GET("", workspaceHandler.List)
		workspaces.GET("/:id", workspaceHandler.Get)
		workspaces.PATCH("/:id", workspaceHandler.Update)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
	})
	return r
}
