package models

import (
	"time"

	"github.com/google/uuid"
)

// Publisher lists ad slots for sale.
type Publisher struct {
	ID           uuid.UUID  `json:"id"`
	UserID       *uuid.UUID `json:"userId,omitempty"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Website      *string    `json:"website"`
	Category     *string    `json:"category"`
	MonthlyViews int64      `json:"monthlyViews"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// PublisherSummary is the embedded publisher shape on ad slot and placement rows.
type PublisherSummary struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Category     *string   `json:"category,omitempty"`
	MonthlyViews *int64    `json:"monthlyViews,omitempty"`
}

// PublisherListItem is a publisher with aggregate counts.
type PublisherListItem struct {
	Publisher
	Count struct {
		AdSlots    int `json:"adSlots"`
		Placements int `json:"placements"`
	} `json:"_count"`
}

// PublisherPlacement is a recent placement in the publisher detail view.
type PublisherPlacement struct {
	Placement
	Campaign struct {
		Name    string `json:"name"`
		Sponsor struct {
			Name string `json:"name"`
		} `json:"sponsor"`
	} `json:"campaign"`
}

// PublisherDetail is a publisher with its slots and most recent placements.
type PublisherDetail struct {
	Publisher
	AdSlots    []AdSlot             `json:"adSlots"`
	Placements []PublisherPlacement `json:"placements"`
}
