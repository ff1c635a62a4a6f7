package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdSlotType is the medium of an ad slot.
type AdSlotType string

const (
	AdSlotDisplay    AdSlotType = "DISPLAY"
	AdSlotVideo      AdSlotType = "VIDEO"
	AdSlotNative     AdSlotType = "NATIVE"
	AdSlotNewsletter AdSlotType = "NEWSLETTER"
	AdSlotPodcast    AdSlotType = "PODCAST"
)

// Valid reports whether t is a known slot type.
func (t AdSlotType) Valid() bool {
	switch t {
	case AdSlotDisplay, AdSlotVideo, AdSlotNative, AdSlotNewsletter, AdSlotPodcast:
		return true
	}
	return false
}

// AdSlot is a bookable advertising placement offered by a publisher.
type AdSlot struct {
	ID          uuid.UUID       `json:"id"`
	PublisherID uuid.UUID       `json:"publisherId"`
	Name        string          `json:"name"`
	Description *string         `json:"description"`
	Type        AdSlotType      `json:"type"`
	Position    *string         `json:"position"`
	Width       *int            `json:"width"`
	Height      *int            `json:"height"`
	BasePrice   decimal.Decimal `json:"basePrice"`
	IsAvailable bool            `json:"isAvailable"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// AdSlotListItem is a slot with its publisher summary and placement count.
type AdSlotListItem struct {
	AdSlot
	Publisher PublisherSummary `json:"publisher"`
	Count     struct {
		Placements int `json:"placements"`
	} `json:"_count"`
}

// AdSlotPlacement is a placement row in the ad slot detail view.
type AdSlotPlacement struct {
	Placement
	Campaign CampaignSummary `json:"campaign"`
}

// AdSlotDetail is a slot with its publisher and placements.
type AdSlotDetail struct {
	AdSlot
	Publisher  Publisher         `json:"publisher"`
	Placements []AdSlotPlacement `json:"placements"`
}
