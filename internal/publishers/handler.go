package publishers

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
	"github.com/slotmarket/backend/pkg/response"
)

// Store is the publisher persistence used by the handler.
type Store interface {
	List(ctx context.Context) ([]models.PublisherListItem, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Publisher, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*models.PublisherDetail, error)
	Stats(ctx context.Context, id uuid.UUID) (*Stats, error)
	Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Publisher, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Publisher, error)
}

// Handler handles publisher HTTP endpoints.
type Handler struct {
	store      Store
	principals middleware.PrincipalEvicter
	logger     *zap.Logger
}

// NewHandler creates a publisher handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// SetPrincipalEvicter lets Create drop the caller's cached principal so the new
// publisher id is seen by the ownership checks on the next request.
func (h *Handler) SetPrincipalEvicter(e middleware.PrincipalEvicter) {
	h.principals = e
}

// List handles GET /publishers.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list publishers failed", zap.Error(err))
		response.Internal(c, "Failed to fetch publishers")
		return
	}
	response.OK(c, list)
}

// Get handles GET /publishers/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Publisher not found")
		return
	}
	detail, err := h.store.GetDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Publisher not found")
			return
		}
		h.logger.Error("get publisher failed", zap.Error(err), zap.String("publisher_id", id.String()))
		response.Internal(c, "Failed to fetch publisher")
		return
	}
	response.OK(c, detail)
}

// Stats handles GET /publishers/:id/stats.
func (h *Handler) Stats(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Publisher not found")
		return
	}
	ctx := c.Request.Context()
	if _, err := h.store.GetByID(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Publisher not found")
			return
		}
		h.logger.Error("get publisher failed", zap.Error(err), zap.String("publisher_id", id.String()))
		response.Internal(c, "Failed to fetch stats")
		return
	}
	st, err := h.store.Stats(ctx, id)
	if err != nil {
		h.logger.Error("publisher stats failed", zap.Error(err), zap.String("publisher_id", id.String()))
		response.Internal(c, "Failed to fetch stats")
		return
	}
	response.OK(c, st)
}

// Create handles POST /publishers. The new publisher is linked to the caller.
func (h *Handler) Create(c *gin.Context) {
	var req CreateInput
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" {
		response.BadRequest(c, "Name and email are required")
		return
	}
	if req.MonthlyViews != nil && *req.MonthlyViews < 0 {
		response.BadRequest(c, "monthlyViews cannot be negative")
		return
	}
	p := middleware.Principal(c)
	pub, err := h.store.Create(c.Request.Context(), p.UserID, req)
	if err != nil {
		if database.IsUniqueViolation(err) {
			response.Conflict(c, "A publisher profile already exists for this user")
			return
		}
		h.logger.Error("create publisher failed", zap.Error(err), zap.String("user_id", p.UserID.String()))
		response.Internal(c, "Failed to create publisher")
		return
	}
	if h.principals != nil {
		h.principals.EvictUser(c.Request.Context(), p.UserID)
	}
	response.Created(c, pub)
}

// Update handles PUT /publishers/:id; only the linked user may edit.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Publisher profile not found")
		return
	}
	ctx := c.Request.Context()
	pub, err := h.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Publisher profile not found")
			return
		}
		h.logger.Error("get publisher failed", zap.Error(err), zap.String("publisher_id", id.String()))
		response.Internal(c, "Failed to update publisher")
		return
	}
	p := middleware.Principal(c)
	if p == nil || pub.UserID == nil || *pub.UserID != p.UserID {
		response.Forbidden(c, "Unauthorized: You do not own this profile")
		return
	}
	var req UpdateInput
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		req.Name = nil
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) == "" {
		req.Email = nil
	}
	if req.MonthlyViews != nil && *req.MonthlyViews < 0 {
		response.BadRequest(c, "monthlyViews cannot be negative")
		return
	}
	updated, err := h.store.Update(ctx, id, req)
	if err != nil {
		h.logger.Error("update publisher failed", zap.Error(err), zap.String("publisher_id", id.String()))
		response.Internal(c, "Failed to update publisher")
		return
	}
	response.OK(c, updated)
}
