package adslots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
)

var (
	// ErrUnavailable is returned when the slot is already booked.
	ErrUnavailable = errors.New("ad slot is no longer available")
	// ErrCampaignNotFound is returned when a booking names an unknown campaign.
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrCampaignNotOwned is returned when a booking names another sponsor's campaign.
	ErrCampaignNotOwned = errors.New("campaign belongs to another sponsor")
	// ErrSlotHeld is returned when a release would free a slot that an open placement still occupies.
	ErrSlotHeld = errors.New("ad slot is held by an open placement")
)

// openStatuses are the placement states that keep a slot booked.
const openStatuses = `('PENDING', 'APPROVED', 'ACTIVE')`

// Booking carries the optional campaign a slot is booked for.
type Booking struct {
	SponsorID  uuid.UUID
	CampaignID *uuid.UUID
	Message    *string
}

// NewPlacement holds the values of a placement opened by a booking.
type NewPlacement struct {
	CampaignID  uuid.UUID
	AdSlotID    uuid.UUID
	PublisherID uuid.UUID
	AgreedPrice decimal.Decimal
	StartDate   *time.Time
	EndDate     *time.Time
	Message     *string
}

// PlacementColumns is the select list matching ScanPlacement, aliased as pl.
const PlacementColumns = `pl.id, pl.campaign_id, pl.ad_slot_id, pl.publisher_id, pl.agreed_price,
	pl.start_date, pl.end_date, pl.status, pl.message, pl.created_at, pl.updated_at`

// ScanPlacement scans PlacementColumns followed by extra destinations.
func ScanPlacement(row pgx.Row, p *models.Placement, extra ...any) error {
	dest := append([]any{&p.ID, &p.CampaignID, &p.AdSlotID, &p.PublisherID, &p.AgreedPrice,
		&p.StartDate, &p.EndDate, &p.Status, &p.Message, &p.CreatedAt, &p.UpdatedAt}, extra...)
	return row.Scan(dest...)
}

// Reserve flips the slot to unavailable. Concurrent callers serialize on the
// row lock and only the first sees is_available.
func Reserve(ctx context.Context, q database.DBTX, slotID uuid.UUID) (*models.AdSlot, error) {
	var s models.AdSlot
	err := scanSlot(q.QueryRow(ctx, `UPDATE ad_slots AS a SET is_available = FALSE, updated_at = NOW()
		WHERE a.id = $1 AND a.is_available
		RETURNING `+slotColumns, slotID), &s)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("reserve ad slot: %w", err)
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ad_slots WHERE id = $1)`, slotID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check ad slot: %w", err)
	}
	if !exists {
		return nil, database.ErrNotFound
	}
	return nil, ErrUnavailable
}

// Release makes the slot available again unless a placement other than except
// still holds it, in which case it returns ErrSlotHeld. Pass uuid.Nil to count
// every open placement.
func Release(ctx context.Context, q database.DBTX, slotID, except uuid.UUID) (*models.AdSlot, error) {
	var s models.AdSlot
	err := scanSlot(q.QueryRow(ctx, `UPDATE ad_slots AS a SET is_available = TRUE, updated_at = NOW()
		WHERE a.id = $1 AND NOT EXISTS (SELECT 1 FROM placements op
			WHERE op.ad_slot_id = $1 AND op.id <> $2 AND op.status IN `+openStatuses+`)
		RETURNING `+slotColumns, slotID, except), &s)
	if err == nil {
		return &s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("release ad slot: %w", err)
	}
	return nil, heldOrMissing(ctx, q, slotID)
}

// heldOrMissing explains why a guarded slot update matched no row.
func heldOrMissing(ctx context.Context, q database.DBTX, slotID uuid.UUID) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ad_slots WHERE id = $1)`, slotID).Scan(&exists); err != nil {
		return fmt.Errorf("check ad slot: %w", err)
	}
	if !exists {
		return database.ErrNotFound
	}
	return ErrSlotHeld
}

// CheckCampaignOwner verifies campaignID exists and belongs to sponsorID.
func CheckCampaignOwner(ctx context.Context, q database.DBTX, campaignID, sponsorID uuid.UUID) error {
	var owner uuid.UUID
	err := q.QueryRow(ctx, `SELECT sponsor_id FROM campaigns WHERE id = $1`, campaignID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCampaignNotFound
	}
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}
	if owner != sponsorID {
		return ErrCampaignNotOwned
	}
	return nil
}

// InsertPlacement opens a PENDING placement.
func InsertPlacement(ctx context.Context, q database.DBTX, in NewPlacement) (*models.Placement, error) {
	var p models.Placement
	err := ScanPlacement(q.QueryRow(ctx, `INSERT INTO placements AS pl
		(campaign_id, ad_slot_id, publisher_id, agreed_price, start_date, end_date, status, message)
		VALUES ($1, $2, $3, $4, $5, $6, 'PENDING', $7)
		RETURNING `+PlacementColumns,
		in.CampaignID, in.AdSlotID, in.PublisherID, in.AgreedPrice, in.StartDate, in.EndDate, in.Message), &p)
	if err != nil {
		return nil, fmt.Errorf("insert placement: %w", err)
	}
	return &p, nil
}
