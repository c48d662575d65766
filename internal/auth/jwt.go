package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const audience = "bytebuddy-api"

// JWTManager handles JWT token operations
type JWTManager struct {
	secret        []byte
	tokenDuration time.Duration
	issuer        string
	now           func() time.Time
}

// Claims represents the JWT claims
type Claims struct {
	AccountClaims
	jwt.RegisteredClaims
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret string, tokenDuration time.Duration, issuer string) *JWTManager {
	if issuer == "" {
		issuer = "bytebuddy"
	}
	return &JWTManager{
		secret:        []byte(secret),
		tokenDuration: tokenDuration,
		issuer:        issuer,
		now:           time.Now,
	}
}

// GenerateToken issues a signed bearer token for the account
func (m *JWTManager) GenerateToken(claims AccountClaims) (string, error) {
	if len(m.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}
	now := m.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountClaims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Audience:  []string{audience},
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies signature and expiry and returns the claims.
// An expired token yields ErrTokenExpired, anything else ErrInvalidToken.
func (m *JWTManager) ValidateToken(tokenString string) (*AccountClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(m.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.AccountID == "" {
		return nil, ErrInvalidToken
	}
	return &claims.AccountClaims, nil
}

// TokenDurationSeconds returns the token validity in seconds
func (m *JWTManager) TokenDurationSeconds() int64 {
	return int64(m.tokenDuration.Seconds())
}
