package dashboard

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/pkg/response"
)

// Stats is the marketplace-wide summary. Every figure is computed at query time.
type Stats struct {
	TotalSponsors    int             `json:"totalSponsors"`
	TotalPublishers  int             `json:"totalPublishers"`
	TotalCampaigns   int             `json:"totalCampaigns"`
	ActiveCampaigns  int             `json:"activeCampaigns"`
	TotalAdSlots     int             `json:"totalAdSlots"`
	AvailableAdSlots int             `json:"availableAdSlots"`
	TotalPlacements  int             `json:"totalPlacements"`
	TotalRevenue     decimal.Decimal `json:"totalRevenue"`
}

// Store computes dashboard stats.
type Store interface {
	Stats(ctx context.Context) (*Stats, error)
}

// Repository reads stats from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a dashboard repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Stats runs one round trip of scalar subqueries.
func (r *Repository) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM sponsors),
		(SELECT COUNT(*) FROM publishers),
		(SELECT COUNT(*) FROM campaigns),
		(SELECT COUNT(*) FROM campaigns WHERE status = 'ACTIVE'),
		(SELECT COUNT(*) FROM ad_slots),
		(SELECT COUNT(*) FROM ad_slots WHERE is_available),
		(SELECT COUNT(*) FROM placements),
		(SELECT COALESCE(SUM(agreed_price), 0) FROM placements WHERE status = 'ACTIVE')`).Scan(
		&s.TotalSponsors, &s.TotalPublishers, &s.TotalCampaigns, &s.ActiveCampaigns,
		&s.TotalAdSlots, &s.AvailableAdSlots, &s.TotalPlacements, &s.TotalRevenue)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}
	return &s, nil
}

// Handler handles GET /dashboard/stats.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates a dashboard handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Stats handles GET /dashboard/stats.
func (h *Handler) Stats(c *gin.Context) {
	st, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("dashboard stats failed", zap.Error(err))
		response.Internal(c, "Failed to fetch dashboard stats")
		return
	}
	response.OK(c, st)
}
