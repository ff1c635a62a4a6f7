package campaigns

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotmarket/backend/internal/models"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func strp(s string) *string { return &s }

func TestCreateRequestFields(t *testing.T) {
	sponsor := uuid.NewString()
	valid := CreateRequest{SponsorID: sponsor, Name: " Spring Launch ", Budget: dec("5000"), StartDate: "2025-03-01", EndDate: "2025-03-31"}

	f, err := valid.Fields()
	require.NoError(t, err)
	assert.Equal(t, "Spring Launch", f.Name)
	assert.Equal(t, models.CampaignDraft, f.Status)
	assert.Equal(t, []string{}, f.TargetCategories)
	assert.Equal(t, []string{}, f.TargetRegions)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), f.StartDate)

	tests := []struct {
		name   string
		mutate func(r *CreateRequest)
		msg    string
	}{
		{"missing name", func(r *CreateRequest) { r.Name = "" }, "required"},
		{"missing budget", func(r *CreateRequest) { r.Budget = nil }, "required"},
		{"missing sponsor", func(r *CreateRequest) { r.SponsorID = "" }, "required"},
		{"bad sponsor", func(r *CreateRequest) { r.SponsorID = "abc" }, "sponsorId"},
		{"zero budget", func(r *CreateRequest) { r.Budget = dec("0") }, "budget must be a positive number"},
		{"bad date", func(r *CreateRequest) { r.StartDate = "03/01/2025" }, "valid dates"},
		{"end before start", func(r *CreateRequest) { r.EndDate = "2025-02-28" }, "endDate must be on or after startDate"},
		{"negative cpm", func(r *CreateRequest) { r.CPMRate = dec("-1") }, "cpmRate"},
		{"budget overflows column", func(r *CreateRequest) { r.Budget = dec("10000000000") }, "budget must not exceed"},
		{"budget rounds past column", func(r *CreateRequest) { r.Budget = dec("9999999999.999") }, "budget must not exceed"},
		{"cpc overflows column", func(r *CreateRequest) { r.CPCRate = dec("1e12") }, "must not exceed"},
		{"bad status", func(r *CreateRequest) { r.Status = "LIVE" }, "invalid status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := req.Fields()
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCreateRequestSameDayAndStatus(t *testing.T) {
	req := CreateRequest{SponsorID: uuid.NewString(), Name: "One Day", Budget: dec("10"),
		StartDate: "2025-03-01T09:00:00Z", EndDate: "2025-03-01T09:00:00Z", Status: "active"}
	f, err := req.Fields()
	require.NoError(t, err)
	assert.Equal(t, models.CampaignActive, f.Status)
}

func TestUpdateRequestMergeChecksMergedDates(t *testing.T) {
	existing := &models.Campaign{
		ID: uuid.New(), SponsorID: uuid.New(), Name: "Old", Budget: decimal.NewFromInt(100),
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC),
		Status:    models.CampaignActive,
	}

	_, err := UpdateRequest{StartDate: strp("2025-04-15")}.Merge(existing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endDate must be on or after startDate")

	f, err := UpdateRequest{StartDate: strp("2025-04-15"), EndDate: strp("2025-05-01"), Name: strp(""), Status: strp("paused")}.Merge(existing)
	require.NoError(t, err)
	assert.Equal(t, "Old", f.Name)
	assert.Equal(t, models.CampaignPaused, f.Status)
	assert.True(t, f.Budget.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, []string{}, f.TargetRegions)

	_, err = UpdateRequest{Budget: dec("-5")}.Merge(existing)
	assert.Error(t, err)
}

func TestAmountFitsBoundary(t *testing.T) {
	assert.True(t, models.AmountFits(decimal.RequireFromString("9999999999.99")))
	assert.True(t, models.AmountFits(decimal.RequireFromString("9999999999.994")))
	assert.False(t, models.AmountFits(decimal.RequireFromString("9999999999.995")))
}
