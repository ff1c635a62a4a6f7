//go:build integration

package placements_test

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/adslots"
	"github.com/slotmarket/backend/internal/auth"
	"github.com/slotmarket/backend/internal/campaigns"
	"github.com/slotmarket/backend/internal/dashboard"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/internal/placements"
	"github.com/slotmarket/backend/internal/publishers"
	"github.com/slotmarket/backend/internal/sponsors"
	"github.com/slotmarket/backend/pkg/database"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()

	ctr, err := postgres.Run(
		ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("slotmarket"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		log.Fatal(err)
	}
	dsn, err = ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatal(err)
	}
	if err := database.Migrate(dsn, zap.NewNop()); err != nil {
		log.Fatal(err)
	}

	code := m.Run()
	_ = ctr.Terminate(ctx)
	os.Exit(code)
}

type world struct {
	pool      *pgxpool.Pool
	sponsor   *models.Sponsor
	publisher *models.Publisher
	campaign  *models.CampaignListItem
	slot      *models.AdSlot
}

func seed(t *testing.T) world {
	t.Helper()
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	users := auth.NewRepository(pool)
	suffix := uuid.NewString()[:8]
	su, err := users.CreateUser(ctx, "brand-"+suffix+"@example.com", "x", "Brand", models.RoleSponsor)
	require.NoError(t, err)
	pu, err := users.CreateUser(ctx, "site-"+suffix+"@example.com", "x", "Site", models.RolePublisher)
	require.NoError(t, err)

	sponsor, err := sponsors.NewRepository(pool).Create(ctx, su.ID, sponsors.CreateInput{Name: "Acme", Email: su.Email})
	require.NoError(t, err)
	publisher, err := publishers.NewRepository(pool).Create(ctx, pu.ID, publishers.CreateInput{Name: "Daily Tech", Email: pu.Email})
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	campaign, err := campaigns.NewRepository(pool).Create(ctx, campaigns.Fields{
		SponsorID:        sponsor.ID,
		Name:             "Launch",
		Budget:           decimal.RequireFromString("5000"),
		StartDate:        start,
		EndDate:          start.AddDate(0, 1, 0),
		Status:           models.CampaignActive,
		TargetCategories: []string{},
		TargetRegions:    []string{},
	})
	require.NoError(t, err)

	price := decimal.RequireFromString("750")
	slot, err := adslots.NewRepository(pool).Create(ctx, publisher.ID, adslots.CreateInput{
		Name:      "Header banner",
		Position:  "header",
		BasePrice: &price,
	}, models.AdSlotDisplay)
	require.NoError(t, err)

	return world{pool: pool, sponsor: sponsor, publisher: publisher, campaign: campaign, slot: slot}
}

func TestConcurrentPlacementsBookSlotOnce(t *testing.T) {
	w := seed(t)
	repo := placements.NewRepository(w.pool)

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		won, failed int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repo.Create(context.Background(), placements.CreateInput{
				SponsorID:  w.sponsor.ID,
				CampaignID: w.campaign.ID,
				AdSlotID:   w.slot.ID,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, adslots.ErrUnavailable):
				failed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	assert.Equal(t, 9, failed)

	list, err := repo.List(context.Background(), placements.ListFilter{PublisherID: &w.publisher.ID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].AgreedPrice.Equal(decimal.RequireFromString("750")))
	assert.Equal(t, models.PlacementPending, list[0].Status)
}

func TestRejectReleasesSlotAndRevenueCountsActive(t *testing.T) {
	w := seed(t)
	ctx := context.Background()
	repo := placements.NewRepository(w.pool)

	pl, slot, err := repo.Create(ctx, placements.CreateInput{SponsorID: w.sponsor.ID, CampaignID: w.campaign.ID, AdSlotID: w.slot.ID})
	require.NoError(t, err)
	assert.False(t, slot.IsAvailable)

	_, released, err := repo.SetStatus(ctx, pl.ID, models.PlacementPending, models.PlacementRejected)
	require.NoError(t, err)
	require.NotNil(t, released)
	assert.True(t, released.IsAvailable)

	_, _, err = repo.SetStatus(ctx, pl.ID, models.PlacementPending, models.PlacementApproved)
	assert.ErrorIs(t, err, placements.ErrStatusChanged)

	price := decimal.RequireFromString("900.50")
	pl, _, err = repo.Create(ctx, placements.CreateInput{SponsorID: w.sponsor.ID, CampaignID: w.campaign.ID, AdSlotID: w.slot.ID, AgreedPrice: &price})
	require.NoError(t, err)
	_, _, err = repo.SetStatus(ctx, pl.ID, models.PlacementPending, models.PlacementApproved)
	require.NoError(t, err)
	_, _, err = repo.SetStatus(ctx, pl.ID, models.PlacementApproved, models.PlacementActive)
	require.NoError(t, err)

	before, err := dashboard.NewRepository(w.pool).Stats(ctx)
	require.NoError(t, err)
	assert.True(t, before.TotalRevenue.GreaterThanOrEqual(price))
	assert.GreaterOrEqual(t, before.TotalPlacements, 2)
}

func TestBookWithForeignCampaignIsRejected(t *testing.T) {
	a := seed(t)
	b := seed(t)
	ctx := context.Background()

	_, _, err := adslots.NewRepository(a.pool).Book(ctx, a.slot.ID, adslots.Booking{SponsorID: b.sponsor.ID, CampaignID: &a.campaign.ID})
	assert.ErrorIs(t, err, adslots.ErrCampaignNotOwned)

	got, err := adslots.NewRepository(a.pool).GetByID(ctx, a.slot.ID)
	require.NoError(t, err)
	assert.True(t, got.IsAvailable, "failed booking must roll back the reservation")

	slot, pl, err := adslots.NewRepository(a.pool).Book(ctx, a.slot.ID, adslots.Booking{SponsorID: a.sponsor.ID, CampaignID: &a.campaign.ID})
	require.NoError(t, err)
	require.NotNil(t, pl)

	want := models.AdSlotSummary{ID: a.slot.ID, Name: "Header banner", Type: models.AdSlotDisplay}
	gotSummary := models.AdSlotSummary{ID: slot.ID, Name: slot.Name, Type: slot.Type}
	if diff := cmp.Diff(want, gotSummary); diff != "" {
		t.Errorf("booked slot mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, slot.IsAvailable)
}

func TestRejectKeepsSlotHeldByAnotherPlacement(t *testing.T) {
	w := seed(t)
	ctx := context.Background()
	repo := placements.NewRepository(w.pool)
	slots := adslots.NewRepository(w.pool)

	p1, _, err := repo.Create(ctx, placements.CreateInput{SponsorID: w.sponsor.ID, CampaignID: w.campaign.ID, AdSlotID: w.slot.ID})
	require.NoError(t, err)

	_, err = slots.Unbook(ctx, w.slot.ID)
	assert.ErrorIs(t, err, adslots.ErrSlotHeld)
	yes := true
	_, err = slots.Update(ctx, w.slot.ID, adslots.UpdateInput{IsAvailable: &yes})
	assert.ErrorIs(t, err, adslots.ErrSlotHeld)

	// A second open placement on the same slot, as left by data written before the guard existed.
	p2, err := adslots.InsertPlacement(ctx, w.pool, adslots.NewPlacement{
		CampaignID:  w.campaign.ID,
		AdSlotID:    w.slot.ID,
		PublisherID: w.publisher.ID,
		AgreedPrice: decimal.RequireFromString("750"),
	})
	require.NoError(t, err)

	_, released, err := repo.SetStatus(ctx, p1.ID, models.PlacementPending, models.PlacementRejected)
	require.NoError(t, err)
	assert.Nil(t, released)
	got, err := slots.GetByID(ctx, w.slot.ID)
	require.NoError(t, err)
	assert.False(t, got.IsAvailable, "slot must stay booked while p2 is open")

	_, released, err = repo.SetStatus(ctx, p2.ID, models.PlacementPending, models.PlacementRejected)
	require.NoError(t, err)
	require.NotNil(t, released)
	assert.True(t, released.IsAvailable)

	_, err = slots.Unbook(ctx, w.slot.ID)
	assert.NoError(t, err)
	_, err = slots.Unbook(ctx, uuid.New())
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestCampaignSearchTreatsWildcardsLiterally(t *testing.T) {
	w := seed(t)
	ctx := context.Background()
	repo := campaigns.NewRepository(w.pool)
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for _, name := range []string{"Sale 50% off", "Sale 500 off", "top_tier"} {
		_, err := repo.Create(ctx, campaigns.Fields{
			SponsorID: w.sponsor.ID, Name: name, Budget: decimal.RequireFromString("100"),
			StartDate: start, EndDate: start.AddDate(0, 0, 7), Status: models.CampaignDraft,
			TargetCategories: []string{}, TargetRegions: []string{},
		})
		require.NoError(t, err)
	}

	names := func(search string) []string {
		list, _, err := repo.List(ctx, campaigns.ListFilter{SponsorID: w.sponsor.ID, Search: search, Sort: "name_asc", Limit: 50})
		require.NoError(t, err)
		out := []string{}
		for _, c := range list {
			out = append(out, c.Name)
		}
		return out
	}
	assert.Equal(t, []string{"Sale 50% off"}, names("50%"))
	assert.Equal(t, []string{"top_tier"}, names("p_t"))
	assert.ElementsMatch(t, []string{"Sale 50% off", "Sale 500 off"}, names("sale"))
}
