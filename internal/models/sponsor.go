package models

import (
	"time"

	"github.com/google/uuid"
)

// Sponsor funds campaigns and books ad slots.
type Sponsor struct {
	ID          uuid.UUID  `json:"id"`
	UserID      *uuid.UUID `json:"userId,omitempty"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Website     *string    `json:"website"`
	Logo        *string    `json:"logo"`
	Description *string    `json:"description"`
	Industry    *string    `json:"industry"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// SponsorSummary is the embedded sponsor shape on campaign rows.
type SponsorSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Logo *string   `json:"logo,omitempty"`
}

// SponsorListItem is a sponsor with aggregate counts.
type SponsorListItem struct {
	Sponsor
	Count struct {
		Campaigns int `json:"campaigns"`
	} `json:"_count"`
}

// SponsorCampaign is a campaign row in the sponsor detail view.
type SponsorCampaign struct {
	Campaign
	Count struct {
		Placements int `json:"placements"`
	} `json:"_count"`
}

// SponsorDetail is a sponsor with its campaigns and latest payments.
type SponsorDetail struct {
	Sponsor
	Campaigns []SponsorCampaign `json:"campaigns"`
	Payments  []Payment         `json:"payments"`
}
