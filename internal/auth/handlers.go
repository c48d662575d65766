package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"bytebuddy/internal/logging"
)

// Handlers contains the auth HTTP handlers
type Handlers struct {
	service *Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register handles account registration
// POST /api/register
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, AuthError{Code: codeValidation, Message: err.Error()})
		return
	}

	resp, err := h.service.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "Server error during registration")
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// Login handles login by email or username
// POST /api/login
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, AuthError{Code: codeValidation, Message: err.Error()})
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err, "Server error during login")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetProfile returns the current account
// GET /api/user/profile
func (h *Handlers) GetProfile(c *gin.Context) {
	profile, err := h.service.Profile(c.Request.Context(), GetAccountID(c))
	if err != nil {
		h.fail(c, err, "Error fetching profile")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": profile})
}

// ChangePassword handles password change
// POST /api/user/change-password
func (h *Handlers) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, AuthError{Code: codeValidation, Message: err.Error()})
		return
	}

	if err := h.service.ChangePassword(c.Request.Context(), GetAccountID(c), req); err != nil {
		h.fail(c, err, "Error changing password")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Password changed successfully"})
}

func (h *Handlers) fail(c *gin.Context, err error, message string) {
	var authErr AuthError
	if errors.As(err, &authErr) {
		respondError(c, authErr)
		return
	}
	logging.FromContext(c.Request.Context()).WithError(err).Error(message)
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   "INTERNAL_ERROR",
		"message": message,
	})
}

func respondError(c *gin.Context, err AuthError) {
	c.JSON(err.HTTPStatus(), gin.H{
		"success": false,
		"error":   err.Code,
		"message": err.Message,
	})
}

// RegisterRoutes registers the auth routes on the /api group. limiters run
// before the public register and login handlers.
func (h *Handlers) RegisterRoutes(router *gin.RouterGroup, authMiddleware gin.HandlerFunc, limiters ...gin.HandlerFunc) {
	// Public routes (no auth required)
	router.POST("/register", append(limiters, h.Register)...)
	router.POST("/login", append(limiters, h.Login)...)

	// Protected routes (auth required)
	protected := router.Group("/user")
	protected.Use(authMiddleware)
	{
		protected.GET("/profile", h.GetProfile)
		protected.POST("/change-password", h.ChangePassword)
	}
}
