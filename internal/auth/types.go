package auth

import (
	"net/http"
	"time"

	"bytebuddy/internal/database"
	"bytebuddy/internal/usage"
)

// AccountClaims represents the JWT claims for an account. Tier is a
// snapshot from issuance and is never used for admission decisions.
type AccountClaims struct {
	AccountID string     `json:"account_id"`
	Email     string     `json:"email"`
	Tier      usage.Tier `json:"tier"`
}

// RegisterRequest represents an account registration request
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"fullName"`
}

// LoginRequest accepts either email or username
type LoginRequest struct {
	EmailOrUsername string `json:"emailOrUsername" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Success   bool             `json:"success"`
	Message   string           `json:"message"`
	Token     string           `json:"token"`
	ExpiresIn int64            `json:"expiresIn"`
	User      *AccountResponse `json:"user"`
}

// AccountResponse represents account data returned to the client
type AccountResponse struct {
	ID                 string       `json:"id"`
	Username           string       `json:"username"`
	Email              string       `json:"email"`
	FullName           string       `json:"fullName"`
	Subscription       usage.Tier   `json:"subscription"`
	SubscriptionExpiry *time.Time   `json:"subscriptionExpiry,omitempty"`
	IsEmailVerified    bool         `json:"isEmailVerified"`
	MonthlyUsage       usage.Ledger `json:"monthlyUsage"`
	LastLogin          *time.Time   `json:"lastLogin,omitempty"`
	LastActivity       *time.Time   `json:"lastActivity,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
}

// NewAccountResponse strips an account down to its public fields
func NewAccountResponse(a *database.Account) *AccountResponse {
	return &AccountResponse{
		ID:                 a.ID,
		Username:           a.Username,
		Email:              a.Email,
		FullName:           a.FullName,
		Subscription:       a.SubscriptionTier,
		SubscriptionExpiry: a.SubscriptionExpiresAt,
		IsEmailVerified:    a.EmailVerified,
		MonthlyUsage:       a.Usage,
		LastLogin:          a.LastLoginAt,
		LastActivity:       a.LastActivityAt,
		CreatedAt:          a.CreatedAt,
	}
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// Config holds authentication configuration
type Config struct {
	JWTSecret         string        `json:"jwt_secret"`
	TokenDuration     time.Duration `json:"token_duration"`
	Issuer            string        `json:"issuer"`
	BcryptCost        int           `json:"bcrypt_cost"`
	MinPasswordLength int           `json:"min_password_length"`
}

// DefaultConfig returns default authentication configuration
func DefaultConfig() Config {
	return Config{
		JWTSecret:         "", // Must be set
		TokenDuration:     30 * 24 * time.Hour,
		Issuer:            "bytebuddy",
		BcryptCost:        DefaultBcryptCost,
		MinPasswordLength: MinPasswordLength,
	}
}

// Error types for authentication
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e AuthError) Error() string {
	return e.Message
}

// Is makes an expired token also match ErrInvalidToken
func (e AuthError) Is(target error) bool {
	t, ok := target.(AuthError)
	if !ok {
		return false
	}
	if e.Code == t.Code {
		return true
	}
	return e.Code == codeTokenExpired && t.Code == codeInvalidToken
}

// HTTPStatus maps the error to a response status
func (e AuthError) HTTPStatus() int {
	switch e.Code {
	case codeUnauthenticated, codeTokenExpired, codeAccountUnavailable, codeInvalidCredentials:
		return http.StatusUnauthorized
	case codeInvalidToken:
		return http.StatusForbidden
	case codeAccountExists, codeWeakPassword, codeValidation:
		return http.StatusBadRequest
	case codeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

const (
	codeUnauthenticated    = "UNAUTHENTICATED"
	codeInvalidToken       = "INVALID_TOKEN"
	codeTokenExpired       = "TOKEN_EXPIRED"
	codeAccountUnavailable = "ACCOUNT_UNAVAILABLE"
	codeInvalidCredentials = "INVALID_CREDENTIALS"
	codeAccountExists      = "ACCOUNT_EXISTS"
	codeWeakPassword       = "WEAK_PASSWORD"
	codeValidation         = "VALIDATION_ERROR"
	codeRateLimited        = "RATE_LIMITED"
)

// Common authentication errors
var (
	ErrUnauthenticated    = AuthError{Code: codeUnauthenticated, Message: "access token required"}
	ErrInvalidToken       = AuthError{Code: codeInvalidToken, Message: "invalid token"}
	ErrTokenExpired       = AuthError{Code: codeTokenExpired, Message: "token expired, please login again"}
	ErrAccountUnavailable = AuthError{Code: codeAccountUnavailable, Message: "user not found or inactive"}
	ErrInvalidCredentials = AuthError{Code: codeInvalidCredentials, Message: "invalid credentials"}
	ErrAccountExists      = AuthError{Code: codeAccountExists, Message: "user with this email or username already exists"}
	ErrWeakPassword       = AuthError{Code: codeWeakPassword, Message: "password does not meet requirements"}
	ErrValidation         = AuthError{Code: codeValidation, Message: "invalid request"}
	ErrRateLimited        = AuthError{Code: codeRateLimited, Message: "too many requests, please try again later"}
)
