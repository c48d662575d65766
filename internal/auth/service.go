package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bytebuddy/internal/database"
	"bytebuddy/internal/logging"
	"bytebuddy/internal/usage"
)

// Service handles authentication operations
type Service struct {
	accounts        database.AccountStore
	jwtManager      *JWTManager
	passwordManager *PasswordManager
	config          Config
	now             func() time.Time
	logger          *logging.Logger
}

// NewService creates a new authentication service
func NewService(accounts database.AccountStore, config Config) (*Service, error) {
	if config.JWTSecret == "" {
		return nil, errors.New("JWT secret is required")
	}
	if config.TokenDuration <= 0 {
		config.TokenDuration = DefaultConfig().TokenDuration
	}

	return &Service{
		accounts:        accounts,
		jwtManager:      NewJWTManager(config.JWTSecret, config.TokenDuration, config.Issuer),
		passwordManager: NewPasswordManager(config.BcryptCost, config.MinPasswordLength),
		config:          config,
		now:             time.Now,
		logger:          logging.WithComponent("auth"),
	}, nil
}

// GetJWTManager returns the JWT manager for use in the gate
func (s *Service) GetJWTManager() *JWTManager {
	return s.jwtManager
}

// Register creates a new account and issues its first token
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	username := strings.TrimSpace(req.Username)
	email := database.NormalizeEmail(req.Email)
	if len(username) < 3 || email == "" {
		return nil, AuthError{Code: codeValidation, Message: "username and email are required"}
	}

	if err := s.passwordManager.ValidatePasswordStrength(req.Password); err != nil {
		return nil, AuthError{Code: codeWeakPassword, Message: err.Error()}
	}

	passwordHash, err := s.passwordManager.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = username
	}

	acct := &database.Account{
		Username:         username,
		Email:            email,
		PasswordHash:     passwordHash,
		FullName:         fullName,
		SubscriptionTier: usage.TierFree,
		IsActive:         true,
	}
	acct.Prepare(s.now())

	if err := s.accounts.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, database.ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account registered", "account_id", acct.ID, "username", acct.Username)

	return s.issue(acct, "Registration successful")
}

// Login authenticates by email or username and issues a token
func (s *Service) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	acct, err := s.accounts.GetAccountByLogin(ctx, strings.TrimSpace(req.EmailOrUsername))
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	if !s.passwordManager.VerifyPassword(req.Password, acct.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !acct.IsActive {
		return nil, ErrAccountUnavailable
	}

	now := s.now().UTC()
	if err := s.accounts.TouchLogin(ctx, acct.ID, now); err != nil {
		s.logger.WithError(err).Warn("Failed to update last login", "account_id", acct.ID)
	} else {
		acct.LastLoginAt = &now
	}

	return s.issue(acct, "Login successful")
}

func (s *Service) issue(acct *database.Account, message string) (*AuthResponse, error) {
	token, err := s.jwtManager.GenerateToken(AccountClaims{
		AccountID: acct.ID,
		Email:     acct.Email,
		Tier:      acct.SubscriptionTier,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &AuthResponse{
		Success:   true,
		Message:   message,
		Token:     token,
		ExpiresIn: s.jwtManager.TokenDurationSeconds(),
		User:      NewAccountResponse(acct),
	}, nil
}

// Profile reloads the account so the ledger is current
func (s *Service) Profile(ctx context.Context, accountID string) (*AccountResponse, error) {
	acct, err := s.accounts.GetAccountByID(ctx, accountID)
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, ErrAccountUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return NewAccountResponse(acct), nil
}

// ChangePassword replaces the password after verifying the current one
func (s *Service) ChangePassword(ctx context.Context, accountID string, req ChangePasswordRequest) error {
	acct, err := s.accounts.GetAccountByID(ctx, accountID)
	if errors.Is(err, database.ErrAccountNotFound) {
		return ErrAccountUnavailable
	}
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}

	if !s.passwordManager.VerifyPassword(req.CurrentPassword, acct.PasswordHash) {
		return ErrInvalidCredentials
	}

	if err := s.passwordManager.ValidatePasswordStrength(req.NewPassword); err != nil {
		return AuthError{Code: codeWeakPassword, Message: err.Error()}
	}

	passwordHash, err := s.passwordManager.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.accounts.UpdatePassword(ctx, accountID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	s.logger.Info("Password changed", "account_id", accountID)
	return nil
}
