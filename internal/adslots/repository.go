package adslots

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
)

// ListFilter narrows the ad slot list.
type ListFilter struct {
	PublisherID *uuid.UUID
	Type        models.AdSlotType
	Available   bool
	Search      string
	MaxPrice    *decimal.Decimal
	Limit       int
	Offset      int
}

// CreateInput is the body for POST /ad-slots.
type CreateInput struct {
	PublisherID string           `json:"publisherId"`
	Name        string           `json:"name"`
	Description *string          `json:"description"`
	Type        string           `json:"type"`
	Position    string           `json:"position"`
	Width       *int             `json:"width"`
	Height      *int             `json:"height"`
	BasePrice   *decimal.Decimal `json:"basePrice"`
}

// UpdateInput is the body for PUT /ad-slots/:id; nil fields are unchanged.
type UpdateInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Type        *string          `json:"type"`
	Position    *string          `json:"position"`
	Width       *int             `json:"width"`
	Height      *int             `json:"height"`
	BasePrice   *decimal.Decimal `json:"basePrice"`
	IsAvailable *bool            `json:"isAvailable"`
}

// Repository handles ad slot persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an ad slot repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const slotColumns = `a.id, a.publisher_id, a.name, a.description, a.type, a.position, a.width, a.height,
	a.base_price, a.is_available, a.created_at, a.updated_at`

func scanSlot(row pgx.Row, s *models.AdSlot, extra ...any) error {
	dest := append([]any{&s.ID, &s.PublisherID, &s.Name, &s.Description, &s.Type, &s.Position, &s.Width, &s.Height,
		&s.BasePrice, &s.IsAvailable, &s.CreatedAt, &s.UpdatedAt}, extra...)
	return row.Scan(dest...)
}

// List returns slots ordered by base price, most expensive first, plus the unpaged total.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.AdSlotListItem, int, error) {
	where := []string{"TRUE"}
	var args []any
	if f.PublisherID != nil {
		args = append(args, *f.PublisherID)
		where = append(where, fmt.Sprintf("a.publisher_id = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("a.type = $%d", len(args)))
	}
	if f.Available {
		where = append(where, "a.is_available")
	}
	if f.Search != "" {
		args = append(args, database.ContainsPattern(f.Search))
		n := len(args)
		where = append(where, fmt.Sprintf(`(a.name ILIKE $%d ESCAPE '\' OR a.description ILIKE $%d ESCAPE '\')`, n, n))
	}
	if f.MaxPrice != nil {
		args = append(args, *f.MaxPrice)
		where = append(where, fmt.Sprintf("a.base_price <= $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ad_slots a WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count ad slots: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	q := `SELECT ` + slotColumns + `, p.id, p.name, p.category, p.monthly_views,
		(SELECT COUNT(*) FROM placements pl WHERE pl.ad_slot_id = a.id)
		FROM ad_slots a JOIN publishers p ON p.id = a.publisher_id
		WHERE ` + cond + ` ORDER BY a.base_price DESC, a.created_at DESC` +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list ad slots: %w", err)
	}
	defer rows.Close()
	list := []models.AdSlotListItem{}
	for rows.Next() {
		var item models.AdSlotListItem
		var views int64
		if err := scanSlot(rows, &item.AdSlot, &item.Publisher.ID, &item.Publisher.Name, &item.Publisher.Category,
			&views, &item.Count.Placements); err != nil {
			return nil, 0, err
		}
		item.Publisher.MonthlyViews = &views
		list = append(list, item)
	}
	return list, total, rows.Err()
}

// GetByID returns an ad slot by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.AdSlot, error) {
	var s models.AdSlot
	if err := scanSlot(r.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM ad_slots a WHERE a.id = $1`, id), &s); err != nil {
		return nil, database.NotFound(err)
	}
	return &s, nil
}

// GetDetail returns a slot with its publisher and placements.
func (r *Repository) GetDetail(ctx context.Context, id uuid.UUID) (*models.AdSlotDetail, error) {
	var d models.AdSlotDetail
	p := &d.Publisher
	err := scanSlot(r.pool.QueryRow(ctx, `SELECT `+slotColumns+`,
		p.id, p.user_id, p.name, p.email, p.website, p.category, p.monthly_views, p.is_active, p.created_at, p.updated_at
		FROM ad_slots a JOIN publishers p ON p.id = a.publisher_id WHERE a.id = $1`, id), &d.AdSlot,
		&p.ID, &p.UserID, &p.Name, &p.Email, &p.Website, &p.Category, &p.MonthlyViews, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, database.NotFound(err)
	}
	d.Placements = []models.AdSlotPlacement{}

	rows, err := r.pool.Query(ctx, `SELECT `+PlacementColumns+`, c.id, c.name, c.status
		FROM placements pl JOIN campaigns c ON c.id = pl.campaign_id
		WHERE pl.ad_slot_id = $1 ORDER BY pl.created_at DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("ad slot placements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sp models.AdSlotPlacement
		if err := ScanPlacement(rows, &sp.Placement, &sp.Campaign.ID, &sp.Campaign.Name, &sp.Campaign.Status); err != nil {
			return nil, err
		}
		d.Placements = append(d.Placements, sp)
	}
	return &d, rows.Err()
}

// Create inserts an available slot.
func (r *Repository) Create(ctx context.Context, publisherID uuid.UUID, in CreateInput, typ models.AdSlotType) (*models.AdSlot, error) {
	const q = `INSERT INTO ad_slots AS a (publisher_id, name, description, type, position, width, height, base_price, is_available)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
		RETURNING ` + slotColumns
	var s models.AdSlot
	err := scanSlot(r.pool.QueryRow(ctx, q, publisherID, strings.TrimSpace(in.Name), in.Description, string(typ),
		strings.TrimSpace(in.Position), in.Width, in.Height, *in.BasePrice), &s)
	if err != nil {
		return nil, fmt.Errorf("insert ad slot: %w", err)
	}
	return &s, nil
}

// Update applies the non-nil fields of in. Setting isAvailable back to true is
// refused with ErrSlotHeld while an open placement occupies the slot.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.AdSlot, error) {
	const q = `UPDATE ad_slots AS a SET
		name = COALESCE($2, a.name),
		description = COALESCE($3, a.description),
		type = COALESCE($4, a.type),
		position = COALESCE($5, a.position),
		width = COALESCE($6, a.width),
		height = COALESCE($7, a.height),
		base_price = COALESCE($8, a.base_price),
		is_available = COALESCE($9, a.is_available),
		updated_at = NOW()
		WHERE a.id = $1 AND ($9::boolean IS NOT TRUE OR a.is_available OR NOT EXISTS (
			SELECT 1 FROM placements op WHERE op.ad_slot_id = $1 AND op.status IN ` + openStatuses + `))
		RETURNING ` + slotColumns
	var s models.AdSlot
	err := scanSlot(r.pool.QueryRow(ctx, q, id, in.Name, in.Description, in.Type, in.Position,
		in.Width, in.Height, in.BasePrice, in.IsAvailable), &s)
	if err == nil {
		return &s, nil
	}
	if errors.Is(err, pgx.ErrNoRows) && in.IsAvailable != nil && *in.IsAvailable {
		return nil, heldOrMissing(ctx, r.pool, id)
	}
	return nil, database.NotFound(err)
}

// Delete removes a slot; its placements cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ad_slots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ad slot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// Book reserves the slot and, when req names a campaign, opens a PENDING
// placement at the slot's base price in the same transaction.
func (r *Repository) Book(ctx context.Context, slotID uuid.UUID, req Booking) (*models.AdSlot, *models.Placement, error) {
	var (
		slot *models.AdSlot
		pl   *models.Placement
	)
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if req.CampaignID != nil {
			if err := CheckCampaignOwner(ctx, tx, *req.CampaignID, req.SponsorID); err != nil {
				return err
			}
		}
		var err error
		if slot, err = Reserve(ctx, tx, slotID); err != nil {
			return err
		}
		if req.CampaignID == nil {
			return nil
		}
		pl, err = InsertPlacement(ctx, tx, NewPlacement{
			CampaignID:  *req.CampaignID,
			AdSlotID:    slot.ID,
			PublisherID: slot.PublisherID,
			AgreedPrice: slot.BasePrice,
			Message:     req.Message,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return slot, pl, nil
}

// Unbook makes the slot available again. It fails with ErrSlotHeld while a
// pending, approved or active placement still occupies the slot.
func (r *Repository) Unbook(ctx context.Context, slotID uuid.UUID) (*models.AdSlot, error) {
	return Release(ctx, r.pool, slotID, uuid.Nil)
}
