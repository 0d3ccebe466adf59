// Package realtime pushes event envelopes to websocket connections.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"bloodlink-backend/internal/domain"
	"bloodlink-backend/internal/logger"
	"bloodlink-backend/internal/metrics"
	"bloodlink-backend/internal/presence"
)

// Relay fans events out to every process instance. Each instance then
// delivers to its own connections.
type Relay interface {
	Publish(ctx context.Context, payload []byte) error
	Subscribe(ctx context.Context, handle func([]byte)) error
}

// relayMessage carries the target alongside the envelope, which hides it.
type relayMessage struct {
	Target int32        `json:"target,omitempty"`
	Event  domain.Event `json:"event"`
}

type Hub struct {
	registry  *presence.Registry
	relay     Relay
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

type Option func(*Hub)

// WithRelay routes every publish through r.
func WithRelay(r Relay) Option {
	return func(h *Hub) { h.relay = r }
}

// WithAllowedOrigins restricts websocket handshakes to the given origins.
// An empty list accepts any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[o] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

func NewHub(registry *presence.Registry, heartbeat time.Duration, opts ...Option) *Hub {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	h := &Hub{
		registry:  registry,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}

	registry.OnChange(func(userID int32, online bool) {
		name := domain.EventUserOffline
		if online {
			name = domain.EventUserOnline
		}
		if err := h.Publish(context.Background(), domain.NewEvent(name, domain.PresenceData{UserID: userID})); err != nil {
			logger.Warn("Failed to publish presence change", "userID", userID, "online", online, "error", err)
		}
	})
	return h
}

// Distributed reports whether publishes reach other instances.
func (h *Hub) Distributed() bool {
	return h.relay != nil
}

// Publish delivers ev locally, or through the relay when one is configured.
func (h *Hub) Publish(ctx context.Context, ev domain.Event) error {
	if h.relay == nil {
		h.Deliver(ev)
		return nil
	}

	payload, err := json.Marshal(relayMessage{Target: ev.TargetUserID, Event: ev})
	if err != nil {
		return err
	}
	logger.ExternalServiceCall("redis", "PUBLISH", "event", ev.Name)
	err = h.relay.Publish(ctx, payload)
	logger.ExternalServiceResult("redis", "PUBLISH", err, "event", ev.Name)
	if err != nil {
		// Local users still get the event when the relay is down.
		h.Deliver(ev)
		return domain.Dependency("realtime relay", err)
	}
	return nil
}

// Deliver writes ev to the matching local connections and returns how many
// accepted it.
func (h *Hub) Deliver(ev domain.Event) int {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Failed to encode realtime event", "event", ev.Name, "error", err)
		return 0
	}

	sent := 0
	if ev.TargetUserID != 0 {
		for _, c := range h.registry.ConnectionsFor(ev.TargetUserID) {
			if c.Send(msg) {
				sent++
			}
		}
	} else {
		h.registry.Each(func(c presence.Conn) {
			if c.Send(msg) {
				sent++
			}
		})
	}

	result := "ok"
	if sent == 0 {
		result = "skipped"
	}
	metrics.DeliveryAttempts.WithLabelValues("realtime", result).Inc()
	return sent
}

// RunRelay consumes relayed events until ctx is done. It is a no-op
// without a relay.
func (h *Hub) RunRelay(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	return h.relay.Subscribe(ctx, func(payload []byte) {
		var m relayMessage
		if err := json.Unmarshal(payload, &m); err != nil {
			logger.Warn("Dropping malformed relay message", "error", err)
			return
		}
		m.Event.TargetUserID = m.Target
		h.Deliver(m.Event)
	})
}

// ServeWS upgrades the request and registers the connection for userID.
// It blocks until the connection closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID int32) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Failed to upgrade websocket", "userID", userID, "error", err)
		return
	}

	c := newClient(userID, conn)
	h.registry.Register(c)
	logger.Info("Websocket connected", "userID", userID, "connID", c.id)

	go c.writePump(h.heartbeat)
	c.readPump(h.heartbeat)

	h.registry.Unregister(c)
	c.close()
	logger.Info("Websocket disconnected", "userID", userID, "connID", c.id)
}

// Close drops every connection. Offline events are not broadcast.
func (h *Hub) Close() {
	for _, c := range h.registry.Close() {
		if cl, ok := c.(*client); ok {
			cl.close()
		}
	}
}
