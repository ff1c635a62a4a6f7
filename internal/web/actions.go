package web

import (
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slotmarket/backend/internal/campaigns"
	"github.com/slotmarket/backend/internal/models"
	"github.com/slotmarket/backend/pkg/apiclient"
	"github.com/slotmarket/backend/pkg/utils"
)

// ActionResult is the outcome of a form action.
type ActionResult struct {
	Success     bool              `json:"success"`
	Error       string            `json:"error,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

func invalid(c *gin.Context, msg string, fields map[string]string) {
	c.JSON(http.StatusUnprocessableEntity, ActionResult{Error: msg, FieldErrors: fields})
}

func rfc3339(s string) (string, bool) {
	t, err := campaigns.ParseDate(s)
	if err != nil {
		return "", false
	}
	return t.Format(time.RFC3339), true
}

// campaignPayload converts the campaign form. requireAll is set on create.
func campaignPayload(c *gin.Context, requireAll bool) (map[string]any, string, map[string]string) {
	fields := map[string]string{}
	body := map[string]any{}
	for _, key := range []string{"targetCategories", "targetRegions"} {
		if v, ok := c.GetPostForm(key); ok || requireAll {
			body[key] = utils.SplitList(v)
		}
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if requireAll || name != "" {
		if utf8.RuneCountInString(name) < 3 {
			return nil, "Campaign name is too short", map[string]string{"name": "Min 3 chars"}
		}
		body["name"] = name
	}
	if d, ok := c.GetPostForm("description"); ok {
		body["description"] = d
	}
	if b := strings.TrimSpace(c.PostForm("budget")); b != "" || requireAll {
		budget, err := decimal.NewFromString(b)
		if err != nil || !budget.IsPositive() {
			fields["budget"] = "Must be a positive number"
		} else {
			body["budget"] = budget
		}
	}
	for _, key := range []string{"startDate", "endDate"} {
		v := strings.TrimSpace(c.PostForm(key))
		if v == "" && !requireAll {
			continue
		}
		ts, ok := rfc3339(v)
		if !ok {
			fields[key] = "Invalid date"
			continue
		}
		body[key] = ts
	}
	if len(fields) > 0 {
		return nil, "Please fix the highlighted fields", fields
	}
	return body, "", nil
}

// forward runs an authenticated API call and writes the ActionResult.
func (h *Handler) forward(c *gin.Context, method, path string, body any, failMsg string, invalidate ...string) {
	token := h.sessionToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, ActionResult{Error: "Unauthorized"})
		return
	}
	ctx := c.Request.Context()
	if _, err := h.api.Do(ctx, method, path, token, body, nil); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			h.logger.Info("api rejected action", zap.String("path", path), zap.Int("status", apiErr.Status), zap.String("error", apiErr.Message))
		} else {
			h.logger.Error("api call failed", zap.String("path", path), zap.Error(err))
		}
		c.JSON(http.StatusBadGateway, ActionResult{Error: failMsg})
		return
	}
	h.invalidate(ctx, invalidate...)
	c.JSON(http.StatusOK, ActionResult{Success: true})
}

// CreateCampaign handles POST /actions/campaigns.
func (h *Handler) CreateCampaign(c *gin.Context) {
	if h.sessionToken(c) == "" {
		c.JSON(http.StatusUnauthorized, ActionResult{Error: "Unauthorized"})
		return
	}
	body, msg, fields := campaignPayload(c, true)
	if body == nil {
		invalid(c, msg, fields)
		return
	}
	body["sponsorId"] = c.PostForm("sponsorId")
	body["status"] = "ACTIVE"
	h.forward(c, http.MethodPost, "/campaigns", body, "Failed to create campaign", PathSponsorDashboard)
}

// UpdateCampaign handles POST /actions/campaigns/:id.
func (h *Handler) UpdateCampaign(c *gin.Context) {
	if h.sessionToken(c) == "" {
		c.JSON(http.StatusUnauthorized, ActionResult{Error: "Unauthorized"})
		return
	}
	body, msg, fields := campaignPayload(c, false)
	if body == nil {
		invalid(c, msg, fields)
		return
	}
	if s := strings.TrimSpace(c.PostForm("status")); s != "" {
		body["status"] = strings.ToUpper(s)
	}
	h.forward(c, http.MethodPut, "/campaigns/"+c.Param("id"), body, "Failed to update campaign", PathSponsorDashboard)
}

// DeleteCampaign handles POST /actions/campaigns/:id/delete.
func (h *Handler) DeleteCampaign(c *gin.Context) {
	h.forward(c, http.MethodDelete, "/campaigns/"+c.Param("id"), nil, "Delete failed", PathSponsorDashboard)
}

// CreateAdSlot handles POST /actions/ad-slots.
func (h *Handler) CreateAdSlot(c *gin.Context) {
	if h.sessionToken(c) == "" {
		c.JSON(http.StatusUnauthorized, ActionResult{Error: "Unauthorized"})
		return
	}
	fields := map[string]string{}
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		fields["name"] = "Required"
	}
	typ := strings.ToUpper(strings.TrimSpace(c.PostForm("type")))
	if typ == "" {
		fields["type"] = "Required"
	}
	position := strings.TrimSpace(c.PostForm("position"))
	if position == "" {
		fields["position"] = "Required"
	}
	price, err := decimal.NewFromString(strings.TrimSpace(c.PostForm("basePrice")))
	switch {
	case err != nil || !price.IsPositive():
		fields["basePrice"] = "Must be a positive number"
	case !models.AmountFits(price):
		fields["basePrice"] = "Too large"
	}
	if len(fields) > 0 {
		invalid(c, "Please fix the highlighted fields", fields)
		return
	}
	body := map[string]any{
		"name":        name,
		"type":        typ,
		"basePrice":   price,
		"publisherId": c.PostForm("publisherId"),
		"position":    position,
	}
	if d, ok := c.GetPostForm("description"); ok {
		body["description"] = d
	}
	h.forward(c, http.MethodPost, "/ad-slots", body, "Failed to create ad slot", PathPublisherDashboard, PathMarketplace)
}

// DeleteAdSlot handles POST /actions/ad-slots/:id/delete.
func (h *Handler) DeleteAdSlot(c *gin.Context) {
	h.forward(c, http.MethodDelete, "/ad-slots/"+c.Param("id"), nil, "Failed to delete ad slot", PathPublisherDashboard, PathMarketplace)
}
