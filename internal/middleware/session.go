package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/response"
)

const (
	// ContextPrincipal is the gin context key holding the *models.Principal.
	ContextPrincipal = "principal"
	// ContextCredential holds the raw credential the principal was resolved from.
	ContextCredential = "credential"
)

// ErrInvalidSession is returned by resolvers when a token names no live session.
var ErrInvalidSession = errors.New("invalid or expired session")

// PrincipalResolver maps a presented credential to the caller behind it.
type PrincipalResolver interface {
	Resolve(ctx context.Context, credential string) (*models.Principal, error)
}

// PrincipalEvicter forgets cached principals of a user whose profile links changed.
type PrincipalEvicter interface {
	EvictUser(ctx context.Context, userID uuid.UUID)
}

// Session authenticates the request from a bearer header or one of the session cookies.
// Missing or unknown credentials are 401; a failed lookup is 500.
func Session(resolver PrincipalResolver, cookieNames []string, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		credential := Credential(c, cookieNames)
		if credential == "" {
			response.Unauthorized(c, "Unauthorized")
			c.Abort()
			return
		}
		p, err := resolver.Resolve(c.Request.Context(), credential)
		if err != nil {
			if errors.Is(err, ErrInvalidSession) {
				response.Unauthorized(c, "Invalid or expired session")
				c.Abort()
				return
			}
			logger.Error("session lookup failed", zap.Error(err))
			response.Internal(c, "Authentication failed")
			c.Abort()
			return
		}
		c.Set(ContextPrincipal, p)
		c.Set(ContextCredential, credential)
		c.Next()
	}
}

// Credential returns the bearer token, falling back to the first non-empty session cookie.
func Credential(c *gin.Context, cookieNames []string) string {
	if tok := BearerToken(c.GetHeader("Authorization")); tok != "" {
		return tok
	}
	for _, name := range cookieNames {
		if v, err := c.Cookie(name); err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Principal returns the authenticated caller, or nil outside Session.
func Principal(c *gin.Context) *models.Principal {
	v, ok := c.Get(ContextPrincipal)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Principal)
	return p
}
