package adslots

import (
	"context"
	"errors"
	"net/http"
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

// Store is the ad slot persistence used by the handler.
type Store interface {
	OwnerLookup
	List(ctx context.Context, f ListFilter) ([]models.AdSlotListItem, int, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*models.AdSlotDetail, error)
	Create(ctx context.Context, publisherID uuid.UUID, in CreateInput, typ models.AdSlotType) (*models.AdSlot, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.AdSlot, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Book(ctx context.Context, slotID uuid.UUID, req Booking) (*models.AdSlot, *models.Placement, error)
	Unbook(ctx context.Context, slotID uuid.UUID) (*models.AdSlot, error)
}

// BookRequest is the body for POST /ad-slots/:id/book.
type BookRequest struct {
	CampaignID string  `json:"campaignId"`
	Message    *string `json:"message"`
}

// BookResponse is returned by book and unbook.
type BookResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	AdSlot    *models.AdSlot    `json:"adSlot"`
	Placement *models.Placement `json:"placement,omitempty"`
}

// Handler handles ad slot HTTP endpoints.
type Handler struct {
	store  Store
	events events.Publisher
	logger *zap.Logger
}

// NewHandler creates an ad slot handler.
func NewHandler(store Store, pub events.Publisher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Handler{store: store, events: pub, logger: logger}
}

// List handles GET /ad-slots.
func (h *Handler) List(c *gin.Context) {
	f := ListFilter{
		Available: c.Query("available") == "true",
		Search:    strings.TrimSpace(c.Query("search")),
	}
	if v := c.Query("publisherId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			response.BadRequest(c, "publisherId must be a valid id")
			return
		}
		f.PublisherID = &id
	}
	if v := c.Query("type"); v != "" {
		f.Type = models.AdSlotType(strings.ToUpper(v))
		if !f.Type.Valid() {
			response.BadRequest(c, "invalid ad slot type")
			return
		}
	}
	if v := c.Query("maxPrice"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			response.BadRequest(c, "maxPrice must be a number")
			return
		}
		f.MaxPrice = &d
	}
	_, f.Limit, f.Offset = utils.Page(c.Query("page"), c.Query("limit"), 50, 100)

	list, total, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list ad slots failed", zap.Error(err))
		response.Internal(c, "Failed to fetch ad slots")
		return
	}
	c.Header("X-Total-Count", strconv.Itoa(total))
	response.OK(c, list)
}

// Get handles GET /ad-slots/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Ad slot not found")
		return
	}
	detail, err := h.store.GetDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Ad slot not found")
			return
		}
		h.logger.Error("get ad slot failed", zap.Error(err), zap.String("ad_slot_id", id.String()))
		response.Internal(c, "Failed to fetch ad slot")
		return
	}
	response.OK(c, detail)
}

// Create handles POST /ad-slots behind publisher ownership.
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" || req.Type == "" || req.BasePrice == nil ||
		req.PublisherID == "" || strings.TrimSpace(req.Position) == "" {
		response.BadRequest(c, "Missing required fields")
		return
	}
	if !req.BasePrice.IsPositive() {
		response.BadRequest(c, "basePrice must be a positive number")
		return
	}
	if !models.AmountFits(*req.BasePrice) {
		response.BadRequest(c, "basePrice must not exceed "+models.MaxAmount.String())
		return
	}
	typ := models.AdSlotType(strings.ToUpper(req.Type))
	if !typ.Valid() {
		response.BadRequest(c, "invalid ad slot type")
		return
	}
	publisherID, err := uuid.Parse(req.PublisherID)
	if err != nil {
		response.BadRequest(c, "publisherId must be a valid id")
		return
	}
	if !middleware.Principal(c).OwnsPublisher(publisherID) {
		response.Forbidden(c, "Forbidden: You do not have permission to manage this publisher profile")
		return
	}
	slot, err := h.store.Create(c.Request.Context(), publisherID, req, typ)
	if err != nil {
		if database.IsCheckViolation(err) {
			response.BadRequest(c, "ad slot values violate a constraint")
			return
		}
		h.logger.Error("create ad slot failed", zap.Error(err), zap.String("publisher_id", publisherID.String()))
		response.Internal(c, "Failed to create ad slot")
		return
	}
	h.events.Publish(c.Request.Context(), events.SlotCreated, slot)
	response.Created(c, slot)
}

// Update handles PUT /ad-slots/:id behind RequireOwner.
func (h *Handler) Update(c *gin.Context) {
	slot := c.MustGet(ContextSlot).(*models.AdSlot)
	var req UpdateInput
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		req.Name = nil
	}
	if req.BasePrice != nil && !req.BasePrice.IsPositive() {
		response.BadRequest(c, "basePrice must be a positive number")
		return
	}
	if req.BasePrice != nil && !models.AmountFits(*req.BasePrice) {
		response.BadRequest(c, "basePrice must not exceed "+models.MaxAmount.String())
		return
	}
	if req.Type != nil {
		t := strings.ToUpper(*req.Type)
		if !models.AdSlotType(t).Valid() {
			response.BadRequest(c, "invalid ad slot type")
			return
		}
		req.Type = &t
	}
	updated, err := h.store.Update(c.Request.Context(), slot.ID, req)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Ad slot not found")
			return
		}
		if errors.Is(err, ErrSlotHeld) {
			response.Conflict(c, "Ad slot has an open placement")
			return
		}
		h.logger.Error("update ad slot failed", zap.Error(err), zap.String("ad_slot_id", slot.ID.String()))
		response.Internal(c, "Failed to update ad slot")
		return
	}
	h.events.Publish(c.Request.Context(), events.SlotUpdated, updated)
	response.OK(c, updated)
}

// Delete handles DELETE /ad-slots/:id behind RequireOwner.
func (h *Handler) Delete(c *gin.Context) {
	slot := c.MustGet(ContextSlot).(*models.AdSlot)
	if err := h.store.Delete(c.Request.Context(), slot.ID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Ad slot not found")
			return
		}
		h.logger.Error("delete ad slot failed", zap.Error(err), zap.String("ad_slot_id", slot.ID.String()))
		response.Internal(c, "Failed to delete ad slot")
		return
	}
	h.events.Publish(c.Request.Context(), events.SlotDeleted, gin.H{"id": slot.ID, "publisherId": slot.PublisherID})
	response.Message(c, "Ad slot deleted successfully")
}

// Book handles POST /ad-slots/:id/book.
func (h *Handler) Book(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Ad slot not found")
		return
	}
	var req BookRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	p := middleware.Principal(c)
	booking := Booking{Message: req.Message}
	if req.CampaignID != "" {
		cid, err := uuid.Parse(req.CampaignID)
		if err != nil {
			response.BadRequest(c, "campaignId must be a valid id")
			return
		}
		if p == nil || p.SponsorID == nil {
			response.Forbidden(c, "Forbidden: You do not have permission to manage this sponsor profile")
			return
		}
		booking.CampaignID = &cid
		booking.SponsorID = *p.SponsorID
	}

	slot, pl, err := h.store.Book(c.Request.Context(), id, booking)
	switch {
	case err == nil:
	case errors.Is(err, database.ErrNotFound):
		response.NotFound(c, "Ad slot not found")
		return
	case errors.Is(err, ErrUnavailable):
		response.BadRequest(c, "Ad slot is no longer available")
		return
	case errors.Is(err, ErrCampaignNotFound):
		response.NotFound(c, "Campaign not found")
		return
	case errors.Is(err, ErrCampaignNotOwned):
		response.Forbidden(c, "Unauthorized to book for this campaign")
		return
	default:
		h.logger.Error("book ad slot failed", zap.Error(err), zap.String("ad_slot_id", id.String()))
		response.Internal(c, "Failed to book ad slot")
		return
	}

	ctx := c.Request.Context()
	h.events.Publish(ctx, events.SlotBooked, slot)
	if pl != nil {
		h.events.Publish(ctx, events.PlacementCreated, pl)
	}
	h.logger.Info("ad slot booked", zap.String("ad_slot_id", id.String()), zap.Bool("placement", pl != nil))
	c.JSON(http.StatusOK, BookResponse{Success: true, Message: "Ad slot booked successfully!", AdSlot: slot, Placement: pl})
}

// Unbook handles POST /ad-slots/:id/unbook behind RequireOwner.
func (h *Handler) Unbook(c *gin.Context) {
	slot := c.MustGet(ContextSlot).(*models.AdSlot)
	updated, err := h.store.Unbook(c.Request.Context(), slot.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Ad slot not found")
			return
		}
		if errors.Is(err, ErrSlotHeld) {
			response.Conflict(c, "Ad slot has an open placement; reject it before unbooking")
			return
		}
		h.logger.Error("unbook ad slot failed", zap.Error(err), zap.String("ad_slot_id", slot.ID.String()))
		response.Internal(c, "Failed to unbook ad slot")
		return
	}
	h.events.Publish(c.Request.Context(), events.SlotReleased, updated)
	c.JSON(http.StatusOK, BookResponse{Success: true, Message: "Ad slot is now available again", AdSlot: updated})
}
