package placements

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/adslots"
	"github.com/slotmarket/backend/internal/campaigns"
	"github.com/slotmarket/backend/internal/events"
	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
	"github.com/slotmarket/backend/pkg/response"
)

// Store is the placement persistence used by the handler.
type Store interface {
	List(ctx context.Context, f ListFilter) ([]models.PlacementListItem, error)
	GetOwned(ctx context.Context, id uuid.UUID) (*Owned, error)
	Create(ctx context.Context, in CreateInput) (*models.Placement, *models.AdSlot, error)
	SetStatus(ctx context.Context, id uuid.UUID, from, to models.PlacementStatus) (*models.Placement, *models.AdSlot, error)
}

// CreateRequest is the body for POST /placements.
type CreateRequest struct {
	CampaignID  string           `json:"campaignId"`
	AdSlotID    string           `json:"adSlotId"`
	AgreedPrice *decimal.Decimal `json:"agreedPrice"`
	StartDate   string           `json:"startDate"`
	EndDate     string           `json:"endDate"`
	Message     *string          `json:"message"`
}

// StatusRequest is the body for PATCH /placements/:id/status.
type StatusRequest struct {
	Status string `json:"status"`
}

// Handler handles placement HTTP endpoints.
type Handler struct {
	store  Store
	events events.Publisher
	logger *zap.Logger
}

// NewHandler creates a placement handler.
func NewHandler(store Store, pub events.Publisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Handler{store: store, events: pub, logger: logger}
}

func optionalID(c *gin.Context, key string) (*uuid.UUID, bool) {
	v := c.Query(key)
	if v == "" {
		return nil, true
	}
	id, err := uuid.Parse(v)
	if err != nil {
		response.BadRequest(c, key+" must be a valid id")
		return nil, false
	}
	return &id, true
}

// List handles GET /placements. Sponsors see placements of their campaigns,
// publishers see placements on their slots.
func (h *Handler) List(c *gin.Context) {
	p := middleware.Principal(c)
	var f ListFilter
	switch {
	case p != nil && p.Role == models.RoleSponsor && p.SponsorID != nil:
		f.SponsorID = p.SponsorID
	case p != nil && p.Role == models.RolePublisher && p.PublisherID != nil:
		f.PublisherID = p.PublisherID
	default:
		response.OK(c, []models.PlacementListItem{})
		return
	}
	if s := c.Query("status"); s != "" {
		f.Status = models.PlacementStatus(strings.ToUpper(s))
		if !f.Status.Valid() {
			response.BadRequest(c, "invalid status")
			return
		}
	}
	var ok bool
	if f.CampaignID, ok = optionalID(c, "campaignId"); !ok {
		return
	}
	if f.AdSlotID, ok = optionalID(c, "adSlotId"); !ok {
		return
	}
	list, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list placements failed", zap.Error(err))
		response.Internal(c, "Failed to fetch placements")
		return
	}
	response.OK(c, list)
}

func parseOptionalDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := campaigns.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create handles POST /placements.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.CampaignID == "" || req.AdSlotID == "" {
		response.BadRequest(c, "campaignId and adSlotId are required")
		return
	}
	campaignID, err1 := uuid.Parse(req.CampaignID)
	slotID, err2 := uuid.Parse(req.AdSlotID)
	if err1 != nil || err2 != nil {
		response.BadRequest(c, "campaignId and adSlotId must be valid ids")
		return
	}
	if req.AgreedPrice != nil && !req.AgreedPrice.IsPositive() {
		response.BadRequest(c, "agreedPrice must be a positive number")
		return
	}
	if req.AgreedPrice != nil && !models.AmountFits(*req.AgreedPrice) {
		response.BadRequest(c, "agreedPrice must not exceed "+models.MaxAmount.String())
		return
	}
	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if start != nil && end != nil && end.Before(*start) {
		response.BadRequest(c, "endDate must be on or after startDate")
		return
	}
	p := middleware.Principal(c)
	if p == nil || p.SponsorID == nil {
		response.Forbidden(c, "Forbidden: You do not have permission to manage this sponsor profile")
		return
	}

	pl, slot, err := h.store.Create(c.Request.Context(), CreateInput{
		SponsorID:   *p.SponsorID,
		CampaignID:  campaignID,
		AdSlotID:    slotID,
		AgreedPrice: req.AgreedPrice,
		StartDate:   start,
		EndDate:     end,
		Message:     req.Message,
	})
	switch {
	case err == nil:
	case errors.Is(err, adslots.ErrUnavailable):
		response.Conflict(c, "Ad slot is no longer available")
		return
	case errors.Is(err, database.ErrNotFound):
		response.NotFound(c, "Ad slot not found")
		return
	case errors.Is(err, adslots.ErrCampaignNotFound):
		response.NotFound(c, "Campaign not found")
		return
	case errors.Is(err, adslots.ErrCampaignNotOwned):
		response.Forbidden(c, "Unauthorized to book for this campaign")
		return
	case database.IsForeignKeyViolation(err):
		response.NotFound(c, "Campaign or ad slot no longer exists")
		return
	default:
		h.logger.Error("create placement failed", zap.Error(err),
			zap.String("campaign_id", campaignID.String()), zap.String("ad_slot_id", slotID.String()))
		response.Internal(c, "Failed to create placement")
		return
	}
	ctx := c.Request.Context()
	h.events.Publish(ctx, events.SlotBooked, slot)
	h.events.Publish(ctx, events.PlacementCreated, pl)
	response.Created(c, pl)
}

// UpdateStatus handles PATCH /placements/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Placement not found")
		return
	}
	var req StatusRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	to := models.PlacementStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if !to.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	ctx := c.Request.Context()
	cur, err := h.store.GetOwned(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Placement not found")
			return
		}
		h.logger.Error("load placement failed", zap.Error(err), zap.String("placement_id", id.String()))
		response.Internal(c, "Failed to update placement")
		return
	}

	p := middleware.Principal(c)
	var side Side
	switch {
	case p.OwnsPublisher(cur.PublisherID):
		side = SidePublisher
	case p.OwnsSponsor(cur.SponsorID):
		side = SideSponsor
	default:
		response.Forbidden(c, "Unauthorized to modify this placement")
		return
	}
	if !CanTransition(side, cur.Status, to) {
		response.Conflict(c, "Cannot change placement from "+string(cur.Status)+" to "+string(to))
		return
	}

	pl, released, err := h.store.SetStatus(ctx, id, cur.Status, to)
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			response.Conflict(c, "Placement was modified, reload and try again")
			return
		}
		h.logger.Error("update placement status failed", zap.Error(err), zap.String("placement_id", id.String()))
		response.Internal(c, "Failed to update placement")
		return
	}
	h.events.Publish(ctx, events.PlacementUpdated, pl)
	if released != nil {
		h.events.Publish(ctx, events.SlotReleased, released)
	}
	h.logger.Info("placement status changed", zap.String("placement_id", id.String()),
		zap.String("from", string(cur.Status)), zap.String("to", string(to)))
	response.OK(c, pl)
}
