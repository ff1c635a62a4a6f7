package campaigns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/database"
)

// ListFilter narrows the campaign list.
type ListFilter struct {
	SponsorID uuid.UUID
	Status    models.CampaignStatus
	Search    string
	MaxBudget *decimal.Decimal
	Sort      string
	Limit     int
	Offset    int
}

// sortOrders maps the accepted sort keys to ORDER BY clauses.
var sortOrders = map[string]string{
	"createdAt_desc": "c.created_at DESC",
	"createdAt_asc":  "c.created_at ASC",
	"budget_desc":    "c.budget DESC, c.created_at DESC",
	"budget_asc":     "c.budget ASC, c.created_at DESC",
	"name_asc":       "lower(c.name) ASC, c.created_at DESC",
}

// Fields holds validated campaign values for insert or full replacement.
type Fields struct {
	SponsorID        uuid.UUID
	Name             string
	Description      *string
	Budget           decimal.Decimal
	CPMRate          *decimal.Decimal
	CPCRate          *decimal.Decimal
	StartDate        time.Time
	EndDate          time.Time
	Status           models.CampaignStatus
	TargetCategories []string
	TargetRegions    []string
}

// Repository handles campaign persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a campaign repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const campaignColumns = `c.id, c.sponsor_id, c.name, c.description, c.budget, c.spent, c.cpm_rate, c.cpc_rate,
	c.start_date, c.end_date, c.status, c.target_categories, c.target_regions, c.created_at, c.updated_at`

func scanCampaign(row pgx.Row, c *models.Campaign, extra ...any) error {
	dest := append([]any{&c.ID, &c.SponsorID, &c.Name, &c.Description, &c.Budget, &c.Spent, &c.CPMRate, &c.CPCRate,
		&c.StartDate, &c.EndDate, &c.Status, &c.TargetCategories, &c.TargetRegions, &c.CreatedAt, &c.UpdatedAt}, extra...)
	return row.Scan(dest...)
}

// List returns the sponsor's campaigns with sponsor summary and counts, plus the unpaged total.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.CampaignListItem, int, error) {
	where := []string{"c.sponsor_id = $1"}
	args := []any{f.SponsorID}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("c.status = $%d", len(args)))
	}
	if f.Search != "" {
		args = append(args, database.ContainsPattern(f.Search))
		where = append(where, fmt.Sprintf(`c.name ILIKE $%d ESCAPE '\'`, len(args)))
	}
	if f.MaxBudget != nil {
		args = append(args, *f.MaxBudget)
		where = append(where, fmt.Sprintf("c.budget <= $%d", len(args)))
	}
	order, ok := sortOrders[f.Sort]
	if !ok {
		order = sortOrders["createdAt_desc"]
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM campaigns c WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	q := `SELECT ` + campaignColumns + `, s.id, s.name, s.logo,
		(SELECT COUNT(*) FROM creatives cr WHERE cr.campaign_id = c.id),
		(SELECT COUNT(*) FROM placements p WHERE p.campaign_id = c.id)
		FROM campaigns c JOIN sponsors s ON s.id = c.sponsor_id
		WHERE ` + cond + ` ORDER BY ` + order +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()
	list := []models.CampaignListItem{}
	for rows.Next() {
		var item models.CampaignListItem
		if err := scanCampaign(rows, &item.Campaign, &item.Sponsor.ID, &item.Sponsor.Name, &item.Sponsor.Logo,
			&item.Count.Creatives, &item.Count.Placements); err != nil {
			return nil, 0, err
		}
		list = append(list, item)
	}
	return list, total, rows.Err()
}

// GetByID returns a campaign by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var c models.Campaign
	if err := scanCampaign(r.pool.QueryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns c WHERE c.id = $1`, id), &c); err != nil {
		return nil, database.NotFound(err)
	}
	return &c, nil
}

// GetDetail returns a campaign with its sponsor, creatives and placements.
func (r *Repository) GetDetail(ctx context.Context, id uuid.UUID) (*models.CampaignDetail, error) {
	var d models.CampaignDetail
	s := &d.Sponsor
	err := scanCampaign(r.pool.QueryRow(ctx, `SELECT `+campaignColumns+`,
		s.id, s.user_id, s.name, s.email, s.website, s.logo, s.description, s.industry, s.is_active, s.created_at, s.updated_at
		FROM campaigns c JOIN sponsors s ON s.id = c.sponsor_id WHERE c.id = $1`, id), &d.Campaign,
		&s.ID, &s.UserID, &s.Name, &s.Email, &s.Website, &s.Logo, &s.Description, &s.Industry, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, database.NotFound(err)
	}
	d.Creatives = []models.Creative{}
	d.Placements = []models.CampaignPlacement{}

	rows, err := r.pool.Query(ctx, `SELECT id, campaign_id, name, type, asset_url, click_url, is_active, created_at
		FROM creatives WHERE campaign_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return nil, fmt.Errorf("campaign creatives: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cr models.Creative
		if err := rows.Scan(&cr.ID, &cr.CampaignID, &cr.Name, &cr.Type, &cr.AssetURL, &cr.ClickURL, &cr.IsActive, &cr.CreatedAt); err != nil {
			return nil, err
		}
		d.Creatives = append(d.Creatives, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prow, err := r.pool.Query(ctx, `SELECT pl.id, pl.campaign_id, pl.ad_slot_id, pl.publisher_id, pl.agreed_price,
		pl.start_date, pl.end_date, pl.status, pl.message, pl.created_at, pl.updated_at,
		a.id, a.publisher_id, a.name, a.description, a.type, a.position, a.width, a.height, a.base_price, a.is_available, a.created_at, a.updated_at,
		p.id, p.name, p.category
		FROM placements pl
		JOIN ad_slots a ON a.id = pl.ad_slot_id
		JOIN publishers p ON p.id = pl.publisher_id
		WHERE pl.campaign_id = $1 ORDER BY pl.created_at DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("campaign placements: %w", err)
	}
	defer prow.Close()
	for prow.Next() {
		var cp models.CampaignPlacement
		pl, a := &cp.Placement, &cp.AdSlot
		if err := prow.Scan(&pl.ID, &pl.CampaignID, &pl.AdSlotID, &pl.PublisherID, &pl.AgreedPrice,
			&pl.StartDate, &pl.EndDate, &pl.Status, &pl.Message, &pl.CreatedAt, &pl.UpdatedAt,
			&a.ID, &a.PublisherID, &a.Name, &a.Description, &a.Type, &a.Position, &a.Width, &a.Height, &a.BasePrice, &a.IsAvailable, &a.CreatedAt, &a.UpdatedAt,
			&cp.Publisher.ID, &cp.Publisher.Name, &cp.Publisher.Category); err != nil {
			return nil, err
		}
		d.Placements = append(d.Placements, cp)
	}
	return &d, prow.Err()
}

// Create inserts a campaign and returns it with its sponsor summary.
func (r *Repository) Create(ctx context.Context, f Fields) (*models.CampaignListItem, error) {
	const q = `WITH c AS (
		INSERT INTO campaigns (sponsor_id, name, description, budget, cpm_rate, cpc_rate, start_date, end_date, status, target_categories, target_regions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING *)
		SELECT ` + campaignColumns + `, s.id, s.name, s.logo FROM c JOIN sponsors s ON s.id = c.sponsor_id`
	var item models.CampaignListItem
	err := scanCampaign(r.pool.QueryRow(ctx, q, f.SponsorID, f.Name, f.Description, f.Budget, f.CPMRate, f.CPCRate,
		f.StartDate, f.EndDate, string(f.Status), f.TargetCategories, f.TargetRegions),
		&item.Campaign, &item.Sponsor.ID, &item.Sponsor.Name, &item.Sponsor.Logo)
	if err != nil {
		return nil, fmt.Errorf("insert campaign: %w", err)
	}
	return &item, nil
}

// Update writes the merged campaign values.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, f Fields) (*models.Campaign, error) {
	const q = `UPDATE campaigns AS c SET
		name = $2, description = $3, budget = $4, cpm_rate = $5, cpc_rate = $6,
		start_date = $7, end_date = $8, status = $9, target_categories = $10, target_regions = $11,
		updated_at = NOW()
		WHERE c.id = $1
		RETURNING ` + campaignColumns
	var c models.Campaign
	err := scanCampaign(r.pool.QueryRow(ctx, q, id, f.Name, f.Description, f.Budget, f.CPMRate, f.CPCRate,
		f.StartDate, f.EndDate, string(f.Status), f.TargetCategories, f.TargetRegions), &c)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &c, nil
}

// Delete removes a campaign; its creatives and placements cascade. Slots held by
// its open placements become available again.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE ad_slots SET is_available = TRUE, updated_at = NOW()
			WHERE id IN (SELECT ad_slot_id FROM placements
				WHERE campaign_id = $1 AND status IN ('PENDING', 'APPROVED', 'ACTIVE'))`, id); err != nil {
			return fmt.Errorf("release slots: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete campaign: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return database.ErrNotFound
		}
		return nil
	})
}
