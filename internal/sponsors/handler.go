package sponsors

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/middleware"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
	"github.com/slotmarket/backend/pkg/queue"
	"github.com/slotmarket/backend/pkg/response"
	"github.com/slotmarket/backend/pkg/storage"
	"github.com/slotmarket/backend/pkg/utils"
)

// Store is the sponsor persistence used by the handler.
type Store interface {
	List(ctx context.Context) ([]models.SponsorListItem, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Sponsor, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*models.SponsorDetail, error)
	Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Sponsor, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Sponsor, error)
	SetLogo(ctx context.Context, id uuid.UUID, url string) (*string, error)
}

// LogoQueue accepts background logo imports.
type LogoQueue interface {
	EnqueueLogoImport(ctx context.Context, payload queue.LogoImportPayload) (string, error)
}

// Handler handles sponsor HTTP endpoints.
type Handler struct {
	store      Store
	assets     storage.Assets
	jobs       LogoQueue
	maxLogo    int64
	principals middleware.PrincipalEvicter
	logger     *zap.Logger
}

// NewHandler creates a sponsor handler. assets and jobs may be nil when S3 or
// Redis are not configured; the logo endpoints then answer 503.
func NewHandler(store Store, assets storage.Assets, jobs LogoQueue, maxLogo int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxLogo <= 0 {
		maxLogo = storage.MaxLogoSize
	}
	return &Handler{store: store, assets: assets, jobs: jobs, maxLogo: maxLogo, logger: logger}
}

// SetPrincipalEvicter lets Create drop the caller's cached principal so the new
// sponsor id is seen by the ownership checks on the next request.
func (h *Handler) SetPrincipalEvicter(e middleware.PrincipalEvicter) {
	h.principals = e
}

// List handles GET /sponsors.
func (h *Handler) List(c *gin.Context) {
	list, err := h.store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list sponsors failed", zap.Error(err))
		response.Internal(c, "Failed to fetch sponsors")
		return
	}
	response.OK(c, list)
}

// Get handles GET /sponsors/:id.
func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Sponsor not found")
		return
	}
	detail, err := h.store.GetDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Sponsor not found")
			return
		}
		h.logger.Error("get sponsor failed", zap.Error(err), zap.String("sponsor_id", id.String()))
		response.Internal(c, "Failed to fetch sponsor")
		return
	}
	response.OK(c, detail)
}

// Create handles POST /sponsors. The new sponsor is linked to the caller.
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
	p := middleware.Principal(c)
	s, err := h.store.Create(c.Request.Context(), p.UserID, req)
	if err != nil {
		if database.IsUniqueViolation(err) {
			response.Conflict(c, "A sponsor profile already exists for this user")
			return
		}
		h.logger.Error("create sponsor failed", zap.Error(err), zap.String("user_id", p.UserID.String()))
		response.Internal(c, "Failed to create sponsor")
		return
	}
	if h.principals != nil {
		h.principals.EvictUser(c.Request.Context(), p.UserID)
	}
	response.Created(c, s)
}

// ownedSponsor loads :id and checks it belongs to the caller, writing the error response otherwise.
func (h *Handler) ownedSponsor(c *gin.Context) (*models.Sponsor, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, "Sponsor profile not found")
		return nil, false
	}
	s, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			response.NotFound(c, "Sponsor profile not found")
			return nil, false
		}
		h.logger.Error("get sponsor failed", zap.Error(err), zap.String("sponsor_id", id.String()))
		response.Internal(c, "Failed to fetch sponsor")
		return nil, false
	}
	p := middleware.Principal(c)
	if p == nil || s.UserID == nil || *s.UserID != p.UserID {
		response.Forbidden(c, "Unauthorized: You do not own this profile")
		return nil, false
	}
	return s, true
}

// Update handles PUT /sponsors/:id.
func (h *Handler) Update(c *gin.Context) {
	s, ok := h.ownedSponsor(c)
	if !ok {
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
	updated, err := h.store.Update(c.Request.Context(), s.ID, req)
	if err != nil {
		h.logger.Error("update sponsor failed", zap.Error(err), zap.String("sponsor_id", s.ID.String()))
		response.Internal(c, "Failed to update sponsor details")
		return
	}
	response.OK(c, updated)
}

// UploadLogo handles POST /sponsors/:id/logo (multipart field "file").
func (h *Handler) UploadLogo(c *gin.Context) {
	if h.assets == nil {
		response.ServiceUnavailable(c, "logo storage is not configured")
		return
	}
	s, ok := h.ownedSponsor(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if fh.Size > h.maxLogo {
		response.BadRequest(c, "logo exceeds the maximum size")
		return
	}
	ext := storage.LogoExtension(fh.Header.Get("Content-Type"), fh.Filename)
	if ext == "" {
		response.BadRequest(c, "logo must be a JPEG, PNG, WebP, GIF or SVG image")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "could not read upload")
		return
	}
	defer f.Close()

	key := storage.LogoKey(s.ID.String(), uuid.NewString(), ext)
	logoURL, err := h.assets.Upload(c.Request.Context(), key, storage.ContentTypeForFilename("logo"+ext), f, fh.Size)
	if err != nil {
		h.logger.Error("logo upload failed", zap.Error(err), zap.String("sponsor_id", s.ID.String()))
		response.Internal(c, "Failed to upload logo")
		return
	}
	previous, err := h.store.SetLogo(c.Request.Context(), s.ID, logoURL)
	if err != nil {
		h.logger.Error("set logo failed", zap.Error(err), zap.String("sponsor_id", s.ID.String()))
		response.Internal(c, "Failed to save logo")
		return
	}
	if err := storage.RemoveReplacedLogo(c.Request.Context(), h.assets, s.ID.String(), previous, logoURL); err != nil {
		h.logger.Warn("delete replaced logo failed", zap.Error(err), zap.String("sponsor_id", s.ID.String()))
	}
	s.Logo = &logoURL
	response.OK(c, s)
}

// ImportLogoRequest is the body for POST /sponsors/:id/logo/import.
type ImportLogoRequest struct {
	URL string `json:"url"`
}

// ImportLogo handles POST /sponsors/:id/logo/import by queueing a background fetch.
func (h *Handler) ImportLogo(c *gin.Context) {
	if h.jobs == nil {
		response.ServiceUnavailable(c, "background jobs are not configured")
		return
	}
	s, ok := h.ownedSponsor(c)
	if !ok {
		return
	}
	var req ImportLogoRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		response.BadRequest(c, "url must be an absolute http(s) URL")
		return
	}
	if err := utils.PublicHost(u.Hostname()); err != nil {
		response.BadRequest(c, "url must point to a public host")
		return
	}
	jobID, err := h.jobs.EnqueueLogoImport(c.Request.Context(), queue.LogoImportPayload{SponsorID: s.ID, SourceURL: u.String()})
	if err != nil {
		h.logger.Error("enqueue logo import failed", zap.Error(err), zap.String("sponsor_id", s.ID.String()))
		response.Internal(c, "Failed to queue logo import")
		return
	}
	response.Accepted(c, gin.H{"jobId": jobID})
}
