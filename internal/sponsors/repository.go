package sponsors

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
)

// CreateInput holds the fields accepted when creating a sponsor.
type CreateInput struct {
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Website     *string `json:"website"`
	Logo        *string `json:"logo"`
	Description *string `json:"description"`
	Industry    *string `json:"industry"`
}

// UpdateInput holds a partial sponsor update; nil fields are left unchanged.
type UpdateInput struct {
	Name        *string `json:"name"`
	Email       *string `json:"email"`
	Website     *string `json:"website"`
	Logo        *string `json:"logo"`
	Description *string `json:"description"`
	Industry    *string `json:"industry"`
	IsActive    *bool   `json:"isActive"`
}

// Repository handles sponsor persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sponsor repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sponsorColumns = `s.id, s.user_id, s.name, s.email, s.website, s.logo, s.description, s.industry, s.is_active, s.created_at, s.updated_at`

func scanSponsor(row pgx.Row, s *models.Sponsor, extra ...any) error {
	dest := append([]any{&s.ID, &s.UserID, &s.Name, &s.Email, &s.Website, &s.Logo, &s.Description, &s.Industry, &s.IsActive, &s.CreatedAt, &s.UpdatedAt}, extra...)
	return row.Scan(dest...)
}

// List returns all sponsors, newest first, with their campaign counts.
func (r *Repository) List(ctx context.Context) ([]models.SponsorListItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sponsorColumns+`,
		(SELECT COUNT(*) FROM campaigns c WHERE c.sponsor_id = s.id)
		FROM sponsors s ORDER BY s.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sponsors: %w", err)
	}
	defer rows.Close()
	list := []models.SponsorListItem{}
	for rows.Next() {
		var item models.SponsorListItem
		if err := scanSponsor(rows, &item.Sponsor, &item.Count.Campaigns); err != nil {
			return nil, err
		}
		list = append(list, item)
	}
	return list, rows.Err()
}

// GetByID returns a sponsor by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Sponsor, error) {
	var s models.Sponsor
	if err := scanSponsor(r.pool.QueryRow(ctx, `SELECT `+sponsorColumns+` FROM sponsors s WHERE s.id = $1`, id), &s); err != nil {
		return nil, database.NotFound(err)
	}
	return &s, nil
}

// GetDetail returns a sponsor with all campaigns and the five latest payments.
func (r *Repository) GetDetail(ctx context.Context, id uuid.UUID) (*models.SponsorDetail, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &models.SponsorDetail{Sponsor: *s, Campaigns: []models.SponsorCampaign{}, Payments: []models.Payment{}}

	rows, err := r.pool.Query(ctx, `SELECT c.id, c.sponsor_id, c.name, c.description, c.budget, c.spent, c.cpm_rate, c.cpc_rate,
		c.start_date, c.end_date, c.status, c.target_categories, c.target_regions, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM placements p WHERE p.campaign_id = c.id)
		FROM campaigns c WHERE c.sponsor_id = $1 ORDER BY c.created_at DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("sponsor campaigns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc models.SponsorCampaign
		c := &sc.Campaign
		if err := rows.Scan(&c.ID, &c.SponsorID, &c.Name, &c.Description, &c.Budget, &c.Spent, &c.CPMRate, &c.CPCRate,
			&c.StartDate, &c.EndDate, &c.Status, &c.TargetCategories, &c.TargetRegions, &c.CreatedAt, &c.UpdatedAt,
			&sc.Count.Placements); err != nil {
			return nil, err
		}
		detail.Campaigns = append(detail.Campaigns, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prow, err := r.pool.Query(ctx, `SELECT id, sponsor_id, amount, currency, status, description, created_at
		FROM payments WHERE sponsor_id = $1 ORDER BY created_at DESC LIMIT 5`, id)
	if err != nil {
		return nil, fmt.Errorf("sponsor payments: %w", err)
	}
	defer prow.Close()
	for prow.Next() {
		var p models.Payment
		if err := prow.Scan(&p.ID, &p.SponsorID, &p.Amount, &p.Currency, &p.Status, &p.Description, &p.CreatedAt); err != nil {
			return nil, err
		}
		detail.Payments = append(detail.Payments, p)
	}
	return detail, prow.Err()
}

// Create inserts a sponsor linked to userID.
func (r *Repository) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Sponsor, error) {
	const q = `INSERT INTO sponsors AS s (user_id, name, email, website, logo, description, industry)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + sponsorColumns
	var s models.Sponsor
	err := scanSponsor(r.pool.QueryRow(ctx, q, userID, in.Name, in.Email, in.Website, in.Logo, in.Description, in.Industry), &s)
	if err != nil {
		return nil, fmt.Errorf("insert sponsor: %w", err)
	}
	return &s, nil
}

// Update applies a partial update.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Sponsor, error) {
	const q = `UPDATE sponsors AS s SET
		name = COALESCE($2, s.name),
		email = COALESCE($3, s.email),
		website = COALESCE($4, s.website),
		logo = COALESCE($5, s.logo),
		description = COALESCE($6, s.description),
		industry = COALESCE($7, s.industry),
		is_active = COALESCE($8, s.is_active),
		updated_at = NOW()
		WHERE s.id = $1
		RETURNING ` + sponsorColumns
	var s models.Sponsor
	err := scanSponsor(r.pool.QueryRow(ctx, q, id, in.Name, in.Email, in.Website, in.Logo, in.Description, in.Industry, in.IsActive), &s)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &s, nil
}

// SetLogo stores the logo URL for a sponsor and returns the URL it replaced.
func (r *Repository) SetLogo(ctx context.Context, id uuid.UUID, url string) (*string, error) {
	var previous *string
	err := r.pool.QueryRow(ctx, `UPDATE sponsors AS s SET logo = $2, updated_at = NOW()
		FROM (SELECT id, logo FROM sponsors WHERE id = $1 FOR UPDATE) AS old
		WHERE s.id = old.id
		RETURNING old.logo`, id, url).Scan(&previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("set logo: %w", err)
	}
	return previous, nil
}
