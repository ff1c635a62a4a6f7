// Package events fans marketplace changes out to WebSocket subscribers so
// optimistic client updates can be confirmed or rolled back.
package events

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/slotmarket/backend/pkg/metrics"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30 * time.Second
	PongWait     = 60 * time.Second
)

// Marketplace event types.
const (
	SlotCreated      = "slot.created"
	SlotUpdated      = "slot.updated"
	SlotDeleted      = "slot.deleted"
	SlotBooked       = "slot.booked"
	SlotReleased     = "slot.released"
	CampaignCreated  = "campaign.created"
	CampaignUpdated  = "campaign.updated"
	CampaignDeleted  = "campaign.deleted"
	PlacementCreated = "placement.created"
	PlacementUpdated = "placement.updated"
)

// Event is the envelope written to subscribers.
type Event struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"at"`
}

// Publisher is what handlers use to announce a change.
type Publisher interface {
	Publish(ctx context.Context, eventType string, payload any)
}

// Bridge relays events between instances.
type Bridge interface {
	PublishEvent(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, handler func(Event)) error
}

// Hub holds the connected subscribers of this instance.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
	bridge  Bridge
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHub creates a hub. bridge may be nil for a single instance.
func NewHub(bridge Bridge, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		bridge:  bridge,
		metrics: m,
		logger:  logger,
	}
}

// Run relays bridge messages to local clients until ctx is done, resubscribing
// whenever the bridge subscription fails.
func (h *Hub) Run(ctx context.Context) error {
	if h.bridge == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	return Follow(ctx, h.bridge, h.Broadcast, h.logger)
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("subscriber joined", zap.String("client_id", c.ID), zap.Int("subscribers", n))
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		close(c.send)
	}
	h.mu.Unlock()
	h.logger.Debug("subscriber left", zap.String("client_id", c.ID))
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends ev to matching local clients. Slow clients drop events.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if !c.wants(ev.Type) {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.logger.Debug("subscriber buffer full, dropping event", zap.String("client_id", c.ID), zap.String("event", ev.Type))
		}
	}
}

// Publish announces an event. With a bridge the bridge's subscription performs the
// local broadcast, so each instance delivers exactly once.
func (h *Hub) Publish(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("marshal event failed", zap.String("event", eventType), zap.Error(err))
		return
	}
	ev := Event{Type: eventType, Data: data, At: time.Now().UTC()}
	h.metrics.RecordEvent(eventType)
	if h.bridge != nil {
		err := h.bridge.PublishEvent(ctx, ev)
		if err == nil {
			return
		}
		h.logger.Warn("bridge publish failed, delivering locally", zap.String("event", eventType), zap.Error(err))
	}
	h.Broadcast(ev)
}

// parseFilter turns "slot,placement" into a prefix set. Empty means everything.
func parseFilter(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p+".")
		}
	}
	return out
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) {}
