package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bytebuddy/internal/database"
	"bytebuddy/internal/logging"
)

const (
	// Context keys for account data
	ContextKeyAccount   = "account"
	ContextKeyAccountID = "account_id"
)

// ActivityRecorder receives best-effort last-activity updates
type ActivityRecorder interface {
	TouchActivity(ctx context.Context, id string, at time.Time) error
}

// Middleware creates the bearer authentication middleware. activity may be nil.
func Middleware(gate *Gate, activity ActivityRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, AuthError{Code: codeInvalidToken, Message: "invalid authorization header format"})
			return
		}

		acct, err := gate.Authenticate(c.Request.Context(), token)
		if err != nil {
			var authErr AuthError
			if errors.As(err, &authErr) {
				abortWithError(c, authErr)
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "AUTH_UNAVAILABLE",
				"message": "could not verify credentials, please retry",
			})
			return
		}

		c.Set(ContextKeyAccount, acct)
		c.Set(ContextKeyAccountID, acct.ID)

		if activity != nil {
			id := acct.ID
			log := logging.FromContext(c.Request.Context())
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := activity.TouchActivity(ctx, id, time.Now()); err != nil {
					log.WithError(err).Debug("Failed to record activity", "account_id", id)
				}
			}()
		}

		c.Next()
	}
}

func abortWithError(c *gin.Context, err AuthError) {
	c.AbortWithStatusJSON(err.HTTPStatus(), gin.H{
		"success": false,
		"error":   err.Code,
		"message": err.Message,
	})
}

// GetAccount extracts the authenticated account from the Gin context
func GetAccount(c *gin.Context) *database.Account {
	if v, exists := c.Get(ContextKeyAccount); exists {
		if acct, ok := v.(*database.Account); ok {
			return acct
		}
	}
	return nil
}

// GetAccountID extracts the account ID from the Gin context
func GetAccountID(c *gin.Context) string {
	return c.GetString(ContextKeyAccountID)
}
