// Package web serves the frontend's server-side form actions and cached page data.
// Every call to the API carries the caller's session cookie as a bearer token.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/pkg/cache"
)

// Paths whose cached page data an action can invalidate.
const (
	PathSponsorDashboard   = "/dashboard/sponsor"
	PathPublisherDashboard = "/dashboard/publisher"
	PathMarketplace        = "/marketplace"
)

// API is the REST client the actions forward to.
type API interface {
	Do(ctx context.Context, method, path, token string, body, out any) (http.Header, error)
}

// Handler serves actions and page data.
type Handler struct {
	api         API
	cache       cache.Store
	cookieNames []string
	pageTTL     time.Duration
	logger      *zap.Logger
}

// NewHandler creates a web handler.
func NewHandler(api API, store cache.Store, cookieNames []string, pageTTL time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = cache.NewMemory()
	}
	return &Handler{api: api, cache: store, cookieNames: cookieNames, pageTTL: pageTTL, logger: logger}
}

// sessionToken returns the first non-empty session cookie.
func (h *Handler) sessionToken(c *gin.Context) string {
	for _, name := range h.cookieNames {
		if v, err := c.Cookie(name); err == nil && v != "" {
			return v
		}
	}
	return ""
}

// invalidate drops every cached variant of paths. Failures are logged; the
// action already succeeded against the API.
func (h *Handler) invalidate(ctx context.Context, paths ...string) {
	for _, p := range paths {
		if err := h.cache.InvalidateTag(ctx, cache.PathTag(p)); err != nil {
			h.logger.Warn("page cache invalidation failed", zap.String("path", p), zap.Error(err))
		}
	}
}
