package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bytebuddy/internal/database"
	"bytebuddy/internal/logging"
)

// AccountLookup resolves account IDs for the gate. The principal cache and
// every database.Store satisfy it.
type AccountLookup interface {
	GetAccountByID(ctx context.Context, id string) (*database.Account, error)
}

// Gate turns a bearer credential into a live, active account
type Gate struct {
	jwt      *JWTManager
	accounts AccountLookup
}

// NewGate creates a gate
func NewGate(jwt *JWTManager, accounts AccountLookup) *Gate {
	return &Gate{jwt: jwt, accounts: accounts}
}

// Authenticate validates token and loads the account it names. It returns
// ErrUnauthenticated for an empty token, ErrTokenExpired or ErrInvalidToken
// for a bad token and ErrAccountUnavailable for a missing or inactive
// account. Lookup failures are returned wrapped and deny access.
func (g *Gate) Authenticate(ctx context.Context, token string) (*database.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := g.jwt.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	acct, err := g.accounts.GetAccountByID(ctx, claims.AccountID)
	if errors.Is(err, database.ErrAccountNotFound) {
		return nil, ErrAccountUnavailable
	}
	if err != nil {
		logging.FromContext(ctx).WithError(err).Error("Account lookup failed during authentication", "account_id", claims.AccountID)
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if acct == nil || !acct.IsActive {
		return nil, ErrAccountUnavailable
	}
	return acct, nil
}

// BearerToken extracts the token from an Authorization header value.
// An empty result means no credential was supplied.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", true
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
