package campaigns

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/slotmarket/backend/internal/models"
)

// ValidationError is a client input problem reported as 400.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func invalid(msg string) error { return &ValidationError{msg: msg} }

// IsValidation reports whether err came from request validation.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// CreateRequest is the body for POST /campaigns.
type CreateRequest struct {
	SponsorID        string           `json:"sponsorId"`
	Name             string           `json:"name"`
	Description      *string          `json:"description"`
	Budget           *decimal.Decimal `json:"budget"`
	CPMRate          *decimal.Decimal `json:"cpmRate"`
	CPCRate          *decimal.Decimal `json:"cpcRate"`
	StartDate        string           `json:"startDate"`
	EndDate          string           `json:"endDate"`
	Status           string           `json:"status"`
	TargetCategories []string         `json:"targetCategories"`
	TargetRegions    []string         `json:"targetRegions"`
}

// UpdateRequest is the body for PUT /campaigns/:id; nil fields are unchanged.
type UpdateRequest struct {
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	Budget           *decimal.Decimal `json:"budget"`
	CPMRate          *decimal.Decimal `json:"cpmRate"`
	CPCRate          *decimal.Decimal `json:"cpcRate"`
	StartDate        *string          `json:"startDate"`
	EndDate          *string          `json:"endDate"`
	Status           *string          `json:"status"`
	TargetCategories *[]string        `json:"targetCategories"`
	TargetRegions    *[]string        `json:"targetRegions"`
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// ParseDate accepts RFC 3339 timestamps, datetime-local values and plain dates (UTC).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalid("startDate and endDate must be valid dates")
}

func checkRates(cpm, cpc *decimal.Decimal) error {
	if cpm != nil && cpm.IsNegative() {
		return invalid("cpmRate cannot be negative")
	}
	if cpc != nil && cpc.IsNegative() {
		return invalid("cpcRate cannot be negative")
	}
	if (cpm != nil && !models.AmountFits(*cpm)) || (cpc != nil && !models.AmountFits(*cpc)) {
		return invalid("cpmRate and cpcRate must not exceed " + models.MaxAmount.String())
	}
	return nil
}

func checkBudget(budget decimal.Decimal) error {
	if !budget.IsPositive() {
		return invalid("budget must be a positive number")
	}
	if !models.AmountFits(budget) {
		return invalid("budget must not exceed " + models.MaxAmount.String())
	}
	return nil
}

// Fields validates a create request.
func (req CreateRequest) Fields() (Fields, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.Budget == nil || strings.TrimSpace(req.StartDate) == "" ||
		strings.TrimSpace(req.EndDate) == "" || strings.TrimSpace(req.SponsorID) == "" {
		return Fields{}, invalid("Name, budget, startDate, endDate, and sponsorId are required")
	}
	sponsorID, err := uuid.Parse(req.SponsorID)
	if err != nil {
		return Fields{}, invalid("sponsorId must be a valid id")
	}
	if err := checkBudget(*req.Budget); err != nil {
		return Fields{}, err
	}
	if err := checkRates(req.CPMRate, req.CPCRate); err != nil {
		return Fields{}, err
	}
	start, err := ParseDate(req.StartDate)
	if err != nil {
		return Fields{}, err
	}
	end, err := ParseDate(req.EndDate)
	if err != nil {
		return Fields{}, err
	}
	if end.Before(start) {
		return Fields{}, invalid("endDate must be on or after startDate")
	}
	status := models.CampaignDraft
	if req.Status != "" {
		status = models.CampaignStatus(strings.ToUpper(req.Status))
		if !status.Valid() {
			return Fields{}, invalid("invalid status")
		}
	}
	f := Fields{
		SponsorID:        sponsorID,
		Name:             name,
		Description:      req.Description,
		Budget:           *req.Budget,
		CPMRate:          req.CPMRate,
		CPCRate:          req.CPCRate,
		StartDate:        start,
		EndDate:          end,
		Status:           status,
		TargetCategories: req.TargetCategories,
		TargetRegions:    req.TargetRegions,
	}
	if f.TargetCategories == nil {
		f.TargetCategories = []string{}
	}
	if f.TargetRegions == nil {
		f.TargetRegions = []string{}
	}
	return f, nil
}

// Merge applies req over existing and validates the result.
func (req UpdateRequest) Merge(existing *models.Campaign) (Fields, error) {
	f := Fields{
		SponsorID:        existing.SponsorID,
		Name:             existing.Name,
		Description:      existing.Description,
		Budget:           existing.Budget,
		CPMRate:          existing.CPMRate,
		CPCRate:          existing.CPCRate,
		StartDate:        existing.StartDate,
		EndDate:          existing.EndDate,
		Status:           existing.Status,
		TargetCategories: existing.TargetCategories,
		TargetRegions:    existing.TargetRegions,
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		f.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		f.Description = req.Description
	}
	if req.Budget != nil {
		if err := checkBudget(*req.Budget); err != nil {
			return Fields{}, err
		}
		f.Budget = *req.Budget
	}
	if req.CPMRate != nil {
		f.CPMRate = req.CPMRate
	}
	if req.CPCRate != nil {
		f.CPCRate = req.CPCRate
	}
	if err := checkRates(f.CPMRate, f.CPCRate); err != nil {
		return Fields{}, err
	}
	if req.StartDate != nil && strings.TrimSpace(*req.StartDate) != "" {
		t, err := ParseDate(*req.StartDate)
		if err != nil {
			return Fields{}, err
		}
		f.StartDate = t
	}
	if req.EndDate != nil && strings.TrimSpace(*req.EndDate) != "" {
		t, err := ParseDate(*req.EndDate)
		if err != nil {
			return Fields{}, err
		}
		f.EndDate = t
	}
	if f.EndDate.Before(f.StartDate) {
		return Fields{}, invalid("endDate must be on or after startDate")
	}
	if req.Status != nil && *req.Status != "" {
		st := models.CampaignStatus(strings.ToUpper(*req.Status))
		if !st.Valid() {
			return Fields{}, invalid("invalid status")
		}
		f.Status = st
	}
	if req.TargetCategories != nil {
		f.TargetCategories = *req.TargetCategories
	}
	if req.TargetRegions != nil {
		f.TargetRegions = *req.TargetRegions
	}
	if f.TargetCategories == nil {
		f.TargetCategories = []string{}
	}
	if f.TargetRegions == nil {
		f.TargetRegions = []string{}
	}
	return f, nil
}
