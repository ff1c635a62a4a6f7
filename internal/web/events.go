package web

import (
	"context"
	"strings"
	"time"

	"github.com/slotmarket/backend/internal/events"
)

// pagesAffected maps an event kind to the cached pages that kind of change makes stale.
var pagesAffected = map[string][]string{
	"slot":      {PathMarketplace, PathPublisherDashboard},
	"placement": {PathMarketplace, PathSponsorDashboard, PathPublisherDashboard},
	"campaign":  {PathSponsorDashboard},
}

// OnEvent drops the cached pages a marketplace change affects. Bookings, unbookings
// and placement decisions go straight to the API, so this is how they reach the page cache.
func (h *Handler) OnEvent(ev events.Event) {
	kind, _, _ := strings.Cut(ev.Type, ".")
	paths := pagesAffected[kind]
	if len(paths) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.invalidate(ctx, paths...)
}

// FollowEvents applies OnEvent to every event on bridge until ctx is done.
func (h *Handler) FollowEvents(ctx context.Context, bridge events.Bridge) error {
	return events.Follow(ctx, bridge, h.OnEvent, h.logger)
}
