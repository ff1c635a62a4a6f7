package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignActive    CampaignStatus = "ACTIVE"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

// Valid reports whether s is a known campaign status.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignDraft, CampaignActive, CampaignPaused, CampaignCompleted:
		return true
	}
	return false
}

// Campaign is a sponsor's budgeted initiative spanning a date range.
type Campaign struct {
	ID               uuid.UUID        `json:"id"`
	SponsorID        uuid.UUID        `json:"sponsorId"`
	Name             string           `json:"name"`
	Description      *string          `json:"description"`
	Budget           decimal.Decimal  `json:"budget"`
	Spent            decimal.Decimal  `json:"spent"`
	CPMRate          *decimal.Decimal `json:"cpmRate"`
	CPCRate          *decimal.Decimal `json:"cpcRate"`
	StartDate        time.Time        `json:"startDate"`
	EndDate          time.Time        `json:"endDate"`
	Status           CampaignStatus   `json:"status"`
	TargetCategories []string         `json:"targetCategories"`
	TargetRegions    []string         `json:"targetRegions"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// CampaignSummary is the embedded campaign shape on ad slot rows.
type CampaignSummary struct {
	ID     uuid.UUID      `json:"id"`
	Name   string         `json:"name"`
	Status CampaignStatus `json:"status"`
}

// CampaignListItem is a campaign with its sponsor and aggregate counts.
type CampaignListItem struct {
	Campaign
	Sponsor SponsorSummary `json:"sponsor"`
	Count   struct {
		Creatives  int `json:"creatives"`
		Placements int `json:"placements"`
	} `json:"_count"`
}

// CampaignPlacement is a placement row in the campaign detail view.
type CampaignPlacement struct {
	Placement
	AdSlot    AdSlot           `json:"adSlot"`
	Publisher PublisherSummary `json:"publisher"`
}

// CampaignDetail is a campaign with sponsor, creatives and placements.
type CampaignDetail struct {
	Campaign
	Sponsor    Sponsor             `json:"sponsor"`
	Creatives  []Creative          `json:"creatives"`
	Placements []CampaignPlacement `json:"placements"`
}

// Creative is an asset attached to a campaign.
type Creative struct {
	ID         uuid.UUID `json:"id"`
	CampaignID uuid.UUID `json:"campaignId"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	AssetURL   string    `json:"assetUrl"`
	ClickURL   *string   `json:"clickUrl"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
}
