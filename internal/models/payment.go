package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus for sponsor payments.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// Payment is money a sponsor paid into the marketplace.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	SponsorID   uuid.UUID       `json:"sponsorId"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	Description *string         `json:"description"`
	CreatedAt   time.Time       `json:"createdAt"`
}
