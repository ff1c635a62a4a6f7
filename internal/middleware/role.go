package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/response"
)

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		p := Principal(c)
		if p == nil {
			response.Unauthorized(c, "Unauthorized")
			c.Abort()
			return
		}
		if _, ok := allowed[p.Role]; !ok {
			response.Forbidden(c, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
