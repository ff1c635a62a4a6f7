package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/apiclient"
	"github.com/slotmarket/backend/pkg/cache"
	"github.com/slotmarket/backend/pkg/utils"
)

// MarketplacePage is the view model for /marketplace.
type MarketplacePage struct {
	Type     string                  `json:"type,omitempty"`
	MaxPrice string                  `json:"maxPrice,omitempty"`
	Search   string                  `json:"search,omitempty"`
	Page     int                     `json:"page"`
	Total    int                     `json:"total"`
	AdSlots  []models.AdSlotListItem `json:"adSlots"`
}

// SponsorDashboardPage is the view model for /dashboard/sponsor.
type SponsorDashboardPage struct {
	SponsorID string                    `json:"sponsorId"`
	Sort      string                    `json:"sort"`
	Page      int                       `json:"page"`
	Total     int                       `json:"total"`
	Campaigns []models.CampaignListItem `json:"campaigns"`
}

// PublisherDashboardPage is the view model for /dashboard/publisher.
type PublisherDashboardPage struct {
	PublisherID string                  `json:"publisherId"`
	Total       int                     `json:"total"`
	AdSlots     []models.AdSlotListItem `json:"adSlots"`
}

func totalCount(h http.Header, fallback int) int {
	if n, err := strconv.Atoi(h.Get("X-Total-Count")); err == nil {
		return n
	}
	return fallback
}

// serveCached answers from the page cache or runs load and caches its result
// under key, tagged with path.
func (h *Handler) serveCached(c *gin.Context, path, key string, load func(ctx context.Context) (any, error)) {
	ctx := c.Request.Context()
	if raw, err := h.cache.Get(ctx, key); err == nil {
		c.Header("X-Cache", "HIT")
		c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
		return
	} else if !errors.Is(err, cache.ErrMiss) {
		h.logger.Warn("page cache read failed", zap.String("key", key), zap.Error(err))
	}

	view, err := load(ctx)
	if err != nil {
		h.logger.Error("page load failed", zap.String("path", path), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load page"})
		return
	}
	raw, err := json.Marshal(view)
	if err != nil {
		h.logger.Error("encode page failed", zap.String("path", path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load page"})
		return
	}
	if err := h.cache.SetTagged(ctx, cache.PathTag(path), key, raw, h.pageTTL); err != nil {
		h.logger.Warn("page cache write failed", zap.String("key", key), zap.Error(err))
	}
	c.Header("X-Cache", "MISS")
	c.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

// Marketplace handles GET /pages/marketplace. Only available slots are listed.
func (h *Handler) Marketplace(c *gin.Context) {
	page, _, _ := utils.Page(c.Query("page"), "", 1, 1)
	q := url.Values{}
	q.Set("available", "true")
	q.Set("page", strconv.Itoa(page))
	view := MarketplacePage{Page: page}
	if v := c.Query("type"); v != "" {
		q.Set("type", v)
		view.Type = v
	}
	if v := c.Query("maxPrice"); v != "" {
		q.Set("maxPrice", v)
		view.MaxPrice = v
	}
	if v := c.Query("search"); v != "" {
		q.Set("search", v)
		view.Search = v
	}
	query := q.Encode()

	h.serveCached(c, PathMarketplace, cache.PageKey(PathMarketplace, query), func(ctx context.Context) (any, error) {
		hdr, err := h.api.Do(ctx, http.MethodGet, "/ad-slots?"+query, "", nil, &view.AdSlots)
		if err != nil {
			return nil, err
		}
		if view.AdSlots == nil {
			view.AdSlots = []models.AdSlotListItem{}
		}
		view.Total = totalCount(hdr, len(view.AdSlots))
		return view, nil
	})
}

// principal resolves the caller through the API and checks its role.
func (h *Handler) principal(c *gin.Context, role models.Role) (*models.Principal, string, bool) {
	token := h.sessionToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return nil, "", false
	}
	var p models.Principal
	if _, err := h.api.Do(c.Request.Context(), http.MethodGet, "/auth/me", token, nil, &p); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return nil, "", false
		}
		h.logger.Error("resolve caller failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load page"})
		return nil, "", false
	}
	if p.Role != role {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return nil, "", false
	}
	return &p, token, true
}

// SponsorDashboard handles GET /pages/dashboard/sponsor.
func (h *Handler) SponsorDashboard(c *gin.Context) {
	p, token, ok := h.principal(c, models.RoleSponsor)
	if !ok {
		return
	}
	if p.SponsorID == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}
	page, _, _ := utils.Page(c.Query("page"), "", 1, 1)
	view := SponsorDashboardPage{SponsorID: p.SponsorID.String(), Sort: c.DefaultQuery("sort", "createdAt_desc"), Page: page}
	q := url.Values{}
	q.Set("sponsorId", view.SponsorID)
	q.Set("sort", view.Sort)
	q.Set("page", strconv.Itoa(page))
	query := q.Encode()

	h.serveCached(c, PathSponsorDashboard, cache.PageKey(PathSponsorDashboard, query), func(ctx context.Context) (any, error) {
		hdr, err := h.api.Do(ctx, http.MethodGet, "/campaigns?"+query, token, nil, &view.Campaigns)
		if err != nil {
			return nil, err
		}
		if view.Campaigns == nil {
			view.Campaigns = []models.CampaignListItem{}
		}
		view.Total = totalCount(hdr, len(view.Campaigns))
		return view, nil
	})
}

// PublisherDashboard handles GET /pages/dashboard/publisher.
func (h *Handler) PublisherDashboard(c *gin.Context) {
	p, token, ok := h.principal(c, models.RolePublisher)
	if !ok {
		return
	}
	if p.PublisherID == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}
	view := PublisherDashboardPage{PublisherID: p.PublisherID.String()}
	q := url.Values{}
	q.Set("publisherId", view.PublisherID)
	query := q.Encode()

	h.serveCached(c, PathPublisherDashboard, cache.PageKey(PathPublisherDashboard, query), func(ctx context.Context) (any, error) {
		hdr, err := h.api.Do(ctx, http.MethodGet, "/ad-slots?"+query, token, nil, &view.AdSlots)
		if err != nil {
			return nil, err
		}
		if view.AdSlots == nil {
			view.AdSlots = []models.AdSlotListItem{}
		}
		view.Total = totalCount(hdr, len(view.AdSlots))
		return view, nil
	})
}
