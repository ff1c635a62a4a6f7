package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PlacementStatus is the lifecycle state of a placement.
type PlacementStatus string

const (
	PlacementPending   PlacementStatus = "PENDING"
	PlacementApproved  PlacementStatus = "APPROVED"
	PlacementActive    PlacementStatus = "ACTIVE"
	PlacementCompleted PlacementStatus = "COMPLETED"
	PlacementRejected  PlacementStatus = "REJECTED"
)

// Valid reports whether s is a known placement status.
func (s PlacementStatus) Valid() bool {
	switch s {
	case PlacementPending, PlacementApproved, PlacementActive, PlacementCompleted, PlacementRejected:
		return true
	}
	return false
}

// Placement binds a campaign to an ad slot at an agreed price.
type Placement struct {
	ID          uuid.UUID       `json:"id"`
	CampaignID  uuid.UUID       `json:"campaignId"`
	AdSlotID    uuid.UUID       `json:"adSlotId"`
	PublisherID uuid.UUID       `json:"publisherId"`
	AgreedPrice decimal.Decimal `json:"agreedPrice"`
	StartDate   *time.Time      `json:"startDate"`
	EndDate     *time.Time      `json:"endDate"`
	Status      PlacementStatus `json:"status"`
	Message     *string         `json:"message,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// AdSlotSummary is the embedded ad slot shape on placement rows.
type AdSlotSummary struct {
	ID   uuid.UUID  `json:"id"`
	Name string     `json:"name"`
	Type AdSlotType `json:"type"`
}

// PlacementListItem is a placement with its campaign, slot and publisher summaries.
type PlacementListItem struct {
	Placement
	Campaign  CampaignSummary  `json:"campaign"`
	AdSlot    AdSlotSummary    `json:"adSlot"`
	Publisher PublisherSummary `json:"publisher"`
}
