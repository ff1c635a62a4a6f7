package adslots

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
	"github.com/slotmarket/backend/pkg/response"
)

// ContextSlot is the gin context key for the slot loaded by RequireOwner.
const ContextSlot = "adSlot"

// OwnerLookup loads a slot for the ownership check.
type OwnerLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.AdSlot, error)
}

// RequireOwner loads :id and admits only the publisher that lists it.
func RequireOwner(store OwnerLookup, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.NotFound(c, "Ad slot not found")
			c.Abort()
			return
		}
		slot, err := store.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				response.NotFound(c, "Ad slot not found")
			} else {
				logger.Error("load ad slot failed", zap.Error(err), zap.String("ad_slot_id", id.String()))
				response.Internal(c, "Failed to load ad slot")
			}
			c.Abort()
			return
		}
		if !middleware.Principal(c).OwnsPublisher(slot.PublisherID) {
			response.Forbidden(c, "Unauthorized to modify this ad slot")
			c.Abort()
			return
		}
		c.Set(ContextSlot, slot)
		c.Next()
	}
}
