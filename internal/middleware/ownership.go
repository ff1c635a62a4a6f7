package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/response"
)

// ownerFields picks the owner ids out of a JSON body without consuming it.
type ownerFields struct {
	SponsorID   string `json:"sponsorId"`
	PublisherID string `json:"publisherId"`
}

// requestOwner reads key from the JSON body, then the path, then the query string.
// Handlers behind this must bind with ShouldBindBodyWith since the body is cached here.
func requestOwner(c *gin.Context, key string) string {
	if strings.HasPrefix(c.ContentType(), binding.MIMEJSON) && c.Request.ContentLength != 0 {
		var body ownerFields
		if err := c.ShouldBindBodyWith(&body, binding.JSON); err == nil {
			v := body.SponsorID
			if key == "publisherId" {
				v = body.PublisherID
			}
			if v != "" {
				return v
			}
		}
	}
	if v := c.Param(key); v != "" {
		return v
	}
	return c.Query(key)
}

func sameID(owned *uuid.UUID, raw string) bool {
	if owned == nil {
		return false
	}
	id, err := uuid.Parse(raw)
	return err == nil && id == *owned
}

// RequireSponsorOwnership admits sponsors only. When the request names a sponsorId
// it must be the caller's own sponsor profile.
func RequireSponsorOwnership() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		if p == nil || p.Role != models.RoleSponsor {
			response.Forbidden(c, "Forbidden: You do not have permission to manage this sponsor profile")
			c.Abort()
			return
		}
		if raw := requestOwner(c, "sponsorId"); raw != "" && !sameID(p.SponsorID, raw) {
			response.Forbidden(c, "Forbidden: You do not have permission to manage this sponsor profile")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequirePublisherOwnership requires the request's publisherId to be the caller's publisher profile.
func RequirePublisherOwnership() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := Principal(c)
		if p == nil || !sameID(p.PublisherID, requestOwner(c, "publisherId")) {
			response.Forbidden(c, "Forbidden: You do not have permission to manage this publisher profile")
			c.Abort()
			return
		}
		c.Next()
	}
}
