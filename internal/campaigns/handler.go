package campaigns

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/events"
	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
	"github.com/slotmarket/backend/pkg/response"
	"github.com/slotmarket/backend/pkg/utils"
)

// Store is the campaign persistence used by the handler.
type Store interface {
	OwnerLookup
	List(ctx context.Context, f ListFilter) ([]models.CampaignListItem, int, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*models.CampaignDetail, error)
	Create(ctx context.Context, f Fields) (*models.CampaignListItem, error)
	Update(ctx context.Context, id uuid.UUID, f Fields) (*models.Campaign, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler handles campaign HTTP endpoints.
type Handler struct {
	store  Store
	events events.Publisher
	logger *zap.Logger
}

// NewHandler creates a campaign handler.
func NewHandler(store Store, pub events.Publisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Handler{store: store, events: pub, logger: logger}
}

// List handles GET /campaigns: the caller's campaigns, filtered and paged.
func (h *Handler) List(c *gin.Context) {
	p := middleware.Principal(c)
	if p == nil || p.SponsorID == nil {
		c.Header("X-Total-Count", "0")
		response.OK(c, []models.CampaignListItem{})
		return
	}
	f := ListFilter{
		SponsorID: *p.SponsorID,
		Search:    strings.TrimSpace(c.Query("search")),
		Sort:      c.Query("sort"),
	}
	if s := c.Query("status"); s != "" {
		f.Status = models.CampaignStatus(strings.ToUpper(s))
		if !f.Status.Valid() {
			response.BadRequest(c, "invalid status")
			return
		}
	}
	if mp := c.Query("maxPrice"); mp != "" {
		d, err := decimal.NewFromString(mp)
		if err != nil {
			response.BadRequest(c, "maxPrice must be a number")
			return
		}
		f.MaxBudget = &d
	}
	_, f.Limit, f.Offset = utils.Page(c.Query("page"), c.Query("limit"), 50, 100)

	list, total, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list campaigns failed", zap.Error(err))
		response.Internal(c, "Failed to fetch campaigns")
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(total))
	response.OK(c, list)
}

// Get handles GET /campaigns/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Campaign not found")
		return
	}
	detail, err := h.store.GetDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Campaign not found")
			return
		}
		h.logger.Error("get campaign failed", zap.Error(err), zap.String("campaign_id", id.String()))
		response.Internal(c, "Failed to fetch campaign")
		return
	}
	response.OK(c, detail)
}

// Create handles POST /campaigns.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	f, err := req.Fields()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !middleware.Principal(c).OwnsSponsor(f.SponsorID) {
		response.Forbidden(c, "Forbidden: You do not have permission to manage this sponsor profile")
		return
	}
	created, err := h.store.Create(c.Request.Context(), f)
	if err != nil {
		if database.IsCheckViolation(err) {
			response.BadRequest(c, "campaign values violate a constraint")
			return
		}
		if database.IsForeignKeyViolation(err) {
			response.NotFound(c, "Sponsor not found")
			return
		}
		h.logger.Error("create campaign failed", zap.Error(err), zap.String("sponsor_id", f.SponsorID.String()))
		response.Internal(c, "Failed to create campaign")
		return
	}
	h.events.Publish(c.Request.Context(), events.CampaignCreated, created.Campaign)
	response.Created(c, created)
}

// Update handles PUT /campaigns/:id behind RequireOwner.
func (h *Handler) Update(c *gin.Context) {
	existing := c.MustGet(ContextCampaign).(*models.Campaign)
	var req UpdateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	f, err := req.Merge(existing)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	updated, err := h.store.Update(c.Request.Context(), existing.ID, f)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Campaign not found")
			return
		}
		h.logger.Error("update campaign failed", zap.Error(err), zap.String("campaign_id", existing.ID.String()))
		response.Internal(c, "Failed to update campaign")
		return
	}
	h.events.Publish(c.Request.Context(), events.CampaignUpdated, updated)
	response.OK(c, updated)
}

// Delete handles DELETE /campaigns/:id behind RequireOwner.
func (h *Handler) Delete(c *gin.Context) {
	existing := c.MustGet(ContextCampaign).(*models.Campaign)
	if err := h.store.Delete(c.Request.Context(), existing.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Campaign not found")
			return
		}
		h.logger.Error("delete campaign failed", zap.Error(err), zap.String("campaign_id", existing.ID.String()))
		response.Internal(c, "Failed to delete campaign")
		return
	}
	h.events.Publish(c.Request.Context(), events.CampaignDeleted, gin.H{"id": existing.ID, "sponsorId": existing.SponsorID})
	response.NoContent(c)
}
