package publishers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
)

// CreateInput holds the fields accepted when creating a publisher.
type CreateInput struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Website      *string `json:"website"`
	Category     *string `json:"category"`
	MonthlyViews *int64  `json:"monthlyViews"`
}

// UpdateInput holds a partial publisher update; nil fields are left unchanged.
type UpdateInput struct {
	Name         *string `json:"name"`
	Email        *string `json:"email"`
	Website      *string `json:"website"`
	Category     *string `json:"category"`
	MonthlyViews *int64  `json:"monthlyViews"`
	IsActive     *bool   `json:"isActive"`
}

// Stats is the publisher earnings summary.
type Stats struct {
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	ActiveSlots  int             `json:"activeSlots"`
	AvgPrice     int64           `json:"avgPrice"`
}

// Repository handles publisher persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a publisher repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const publisherColumns = `p.id, p.user_id, p.name, p.email, p.website, p.category, p.monthly_views, p.is_active, p.created_at, p.updated_at`

func scanPublisher(row pgx.Row, p *models.Publisher, extra ...any) error {
	dest := append([]any{&p.ID, &p.UserID, &p.Name, &p.Email, &p.Website, &p.Category, &p.MonthlyViews, &p.IsActive, &p.CreatedAt, &p.UpdatedAt}, extra...)
	return row.Scan(dest...)
}

// List returns all publishers by audience size with slot and placement counts.
func (r *Repository) List(ctx context.Context) ([]models.PublisherListItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+publisherColumns+`,
		(SELECT COUNT(*) FROM ad_slots a WHERE a.publisher_id = p.id),
		(SELECT COUNT(*) FROM placements pl WHERE pl.publisher_id = p.id)
		FROM publishers p ORDER BY p.monthly_views DESC, p.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list publishers: %w", err)
	}
	defer rows.Close()
	list := []models.PublisherListItem{}
	for rows.Next() {
		var item models.PublisherListItem
		if err := scanPublisher(rows, &item.Publisher, &item.Count.AdSlots, &item.Count.Placements); err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, rows.Err()
}

// GetByID returns a publisher by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Publisher, error) {
	var p models.Publisher
	if err := scanPublisher(r.pool.QueryRow(ctx, `SELECT `+publisherColumns+` FROM publishers p WHERE p.id = $1`, id), &p); err != nil {
		return nil, database.NotFound(err)
	}
	return &p, nil
}

// GetDetail returns a publisher with its slots and ten most recent placements.
func (r *Repository) GetDetail(ctx context.Context, id uuid.UUID) (*models.PublisherDetail, error) {
	p, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &models.PublisherDetail{Publisher: *p, AdSlots: []models.AdSlot{}, Placements: []models.PublisherPlacement{}}

	rows, err := r.pool.Query(ctx, `SELECT id, publisher_id, name, description, type, position, width, height,
		base_price, is_available, created_at, updated_at
		FROM ad_slots WHERE publisher_id = $1 ORDER BY created_at DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("publisher slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a models.AdSlot
		if err := rows.Scan(&a.ID, &a.PublisherID, &a.Name, &a.Description, &a.Type, &a.Position, &a.Width, &a.Height,
			&a.BasePrice, &a.IsAvailable, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		detail.AdSlots = append(detail.AdSlots, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prow, err := r.pool.Query(ctx, `SELECT pl.id, pl.campaign_id, pl.ad_slot_id, pl.publisher_id, pl.agreed_price,
		pl.start_date, pl.end_date, pl.status, pl.message, pl.created_at, pl.updated_at, c.name, s.name
		FROM placements pl
		JOIN campaigns c ON c.id = pl.campaign_id
		JOIN sponsors s ON s.id = c.sponsor_id
		WHERE pl.publisher_id = $1
		ORDER BY pl.created_at DESC LIMIT 10`, id)
	if err != nil {
		return nil, fmt.Errorf("publisher placements: %w", err)
	}
	defer prow.Close()
	for prow.Next() {
		var pp models.PublisherPlacement
		pl := &pp.Placement
		if err := prow.Scan(&pl.ID, &pl.CampaignID, &pl.AdSlotID, &pl.PublisherID, &pl.AgreedPrice,
			&pl.StartDate, &pl.EndDate, &pl.Status, &pl.Message, &pl.CreatedAt, &pl.UpdatedAt,
			&pp.Campaign.Name, &pp.Campaign.Sponsor.Name); err != nil {
			return nil, err
		}
		detail.Placements = append(detail.Placements, pp)
	}
	return detail, prow.Err()
}

// Stats sums revenue from active placements and summarises the publisher's slots.
func (r *Repository) Stats(ctx context.Context, id uuid.UUID) (*Stats, error) {
	const q = `SELECT
		(SELECT COALESCE(SUM(agreed_price), 0) FROM placements WHERE publisher_id = $1 AND status = 'ACTIVE'),
		(SELECT COUNT(*) FROM ad_slots WHERE publisher_id = $1 AND is_available),
		(SELECT COALESCE(AVG(base_price), 0) FROM ad_slots WHERE publisher_id = $1)`
	var (
		st  Stats
		avg decimal.Decimal
	)
	if err := r.pool.QueryRow(ctx, q, id).Scan(&st.TotalRevenue, &st.ActiveSlots, &avg); err != nil {
		return nil, fmt.Errorf("publisher stats: %w", err)
	}
	st.AvgPrice = avg.Round(0).IntPart()
	return &st, nil
}

// Create inserts a publisher linked to userID.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Publisher, error) {
	const q = `INSERT INTO publishers AS p (user_id, name, email, website, category, monthly_views)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, 0))
		RETURNING ` + publisherColumns
	var p models.Publisher
	err := scanPublisher(r.pool.QueryRow(ctx, q, userID, in.Name, in.Email, in.Website, in.Category, in.MonthlyViews), &p)
	if err != nil {
		return nil, fmt.Errorf("insert publisher: %w", err)
	}
	return &p, nil
}

// Update applies a partial update.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Publisher, error) {
	const q = `UPDATE publishers AS p SET
		name = COALESCE($2, p.name),
		email = COALESCE($3, p.email),
		website = COALESCE($4, p.website),
		category = COALESCE($5, p.category),
		monthly_views = COALESCE($6, p.monthly_views),
		is_active = COALESCE($7, p.is_active),
		updated_at = NOW()
		WHERE p.id = $1
		RETURNING ` + publisherColumns
	var p models.Publisher
	err := scanPublisher(r.pool.QueryRow(ctx, q, id, in.Name, in.Email, in.Website, in.Category, in.MonthlyViews, in.IsActive), &p)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &p, nil
}
