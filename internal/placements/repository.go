package placements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/slotmarket/backend/internal/adslots"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
)

// ErrStatusChanged is returned when the placement moved on since it was read.
var ErrStatusChanged = errors.New("placement status changed concurrently")

// ListFilter narrows the placement list. Exactly one of SponsorID or PublisherID scopes it.
type ListFilter struct {
	SponsorID   *uuid.UUID
	PublisherID *uuid.UUID
	Status      models.PlacementStatus
	CampaignID  *uuid.UUID
	AdSlotID    *uuid.UUID
}

// CreateInput holds a validated placement request.
type CreateInput struct {
	SponsorID   uuid.UUID
	CampaignID  uuid.UUID
	AdSlotID    uuid.UUID
	AgreedPrice *decimal.Decimal
	StartDate   *time.Time
	EndDate     *time.Time
	Message     *string
}

// Owned is a placement together with the sponsor of its campaign.
type Owned struct {
	models.Placement
	SponsorID uuid.UUID
}

// Repository handles placement persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a placement repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns placements newest first with their campaign, slot and publisher summaries.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.PlacementListItem, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.SponsorID != nil {
		add("c.sponsor_id = $%d", *f.SponsorID)
	}
	if f.PublisherID != nil {
		add("pl.publisher_id = $%d", *f.PublisherID)
	}
	if f.Status != "" {
		add("pl.status = $%d", string(f.Status))
	}
	if f.CampaignID != nil {
		add("pl.campaign_id = $%d", *f.CampaignID)
	}
	if f.AdSlotID != nil {
		add("pl.ad_slot_id = $%d", *f.AdSlotID)
	}
	if len(where) == 0 {
		where = append(where, "TRUE")
	}
	q := `SELECT ` + adslots.PlacementColumns + `,
		c.id, c.name, c.status, a.id, a.name, a.type, p.id, p.name, p.category
		FROM placements pl
		JOIN campaigns c ON c.id = pl.campaign_id
		JOIN ad_slots a ON a.id = pl.ad_slot_id
		JOIN publishers p ON p.id = pl.publisher_id
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY pl.created_at DESC`
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list placements: %w", err)
	}
	defer rows.Close()
	list := []models.PlacementListItem{}
	for rows.Next() {
		var it models.PlacementListItem
		if err := adslots.ScanPlacement(rows, &it.Placement,
			&it.Campaign.ID, &it.Campaign.Name, &it.Campaign.Status,
			&it.AdSlot.ID, &it.AdSlot.Name, &it.AdSlot.Type,
			&it.Publisher.ID, &it.Publisher.Name, &it.Publisher.Category); err != nil {
			return nil, err
		}
		list = append(list, it)
	}
	return list, rows.Err()
}

// GetOwned returns a placement with its campaign's sponsor.
func (r *Repository) GetOwned(ctx context.Context, id uuid.UUID) (*Owned, error) {
	var o Owned
	err := adslots.ScanPlacement(r.pool.QueryRow(ctx, `SELECT `+adslots.PlacementColumns+`, c.sponsor_id
		FROM placements pl JOIN campaigns c ON c.id = pl.campaign_id WHERE pl.id = $1`, id), &o.Placement, &o.SponsorID)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &o, nil
}

// Create books the slot and opens a PENDING placement in one transaction.
// The agreed price defaults to the slot's base price.
func (r *Repository) Create(ctx context.Context, in CreateInput) (*models.Placement, *models.AdSlot, error) {
	var (
		pl   *models.Placement
		slot *models.AdSlot
	)
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := adslots.CheckCampaignOwner(ctx, tx, in.CampaignID, in.SponsorID); err != nil {
			return err
		}
		var err error
		if slot, err = adslots.Reserve(ctx, tx, in.AdSlotID); err != nil {
			return err
		}
		price := slot.BasePrice
		if in.AgreedPrice != nil {
			price = *in.AgreedPrice
		}
		pl, err = adslots.InsertPlacement(ctx, tx, adslots.NewPlacement{
			CampaignID:  in.CampaignID,
			AdSlotID:    slot.ID,
			PublisherID: slot.PublisherID,
			AgreedPrice: price,
			StartDate:   in.StartDate,
			EndDate:     in.EndDate,
			Message:     in.Message,
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return pl, slot, nil
}

// SetStatus moves a placement from one status to another. When the new status
// frees the slot, the slot is released in the same transaction and returned.
func (r *Repository) SetStatus(ctx context.Context, id uuid.UUID, from, to models.PlacementStatus) (*models.Placement, *models.AdSlot, error) {
	var (
		pl   models.Placement
		slot *models.AdSlot
	)
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := adslots.ScanPlacement(tx.QueryRow(ctx, `UPDATE placements AS pl SET status = $3, updated_at = NOW()
			WHERE pl.id = $1 AND pl.status = $2
			RETURNING `+adslots.PlacementColumns, id, string(from), string(to)), &pl)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStatusChanged
		}
		if err != nil {
			return fmt.Errorf("update placement status: %w", err)
		}
		if releasesSlot(to) {
			// A slot another open placement holds stays booked.
			slot, err = adslots.Release(ctx, tx, pl.AdSlotID, pl.ID)
			if err != nil && !errors.Is(err, adslots.ErrSlotHeld) {
				return fmt.Errorf("release slot: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &pl, slot, nil
}
