package campaigns

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

// ContextCampaign is the gin context key for the campaign loaded by RequireOwner.
const ContextCampaign = "campaign"

// OwnerLookup loads a campaign for the ownership check.
type OwnerLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
}

// RequireOwner loads :id and admits only the sponsor that owns it.
func RequireOwner(store OwnerLookup, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			response.NotFound(c, "Campaign not found")
			c.Abort()
			return
		}
		camp, err := store.GetByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				response.NotFound(c, "Campaign not found")
			} else {
				logger.Error("load campaign failed", zap.Error(err), zap.String("campaign_id", id.String()))
				response.Internal(c, "Failed to load campaign")
			}
			c.Abort()
			return
		}
		if !middleware.Principal(c).OwnsSponsor(camp.SponsorID) {
			response.Forbidden(c, "Unauthorized to modify this campaign")
			c.Abort()
			return
		}
		c.Set(ContextCampaign, camp)
		c.Next()
	}
}
