package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/swupdate/internal/events"
	"github.com/oshokin/swupdate/internal/logger"
)

const (
	// EventsPath is where the hub is mounted.
	EventsPath = "/events"

	writeTimeout     = 10 * time.Second
	pingInterval     = 30 * time.Second
	subscriberBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: sameOrigin,
}

// Hub fans progress events out to every connected websocket.
// Delivery is best effort: a subscriber that cannot keep up loses events.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan events.Event]struct{}
	closed      bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[chan events.Event]struct{}),
	}
}

// Publish implements events.Sink.
func (h *Hub) Publish(ctx context.Context, e events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
			logger.WarnKV(ctx, "Dropping event for slow subscriber", "type", e.Type)
		}
	}
}

// Subscribers returns the number of connected observers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.subscribers)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.closed = true

	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// Handler returns an HTTP handler serving the hub at EventsPath.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(EventsPath, h)

	return mux
}

// ServeHTTP upgrades the request and streams events until either side goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithKV(r.Context(), "remote_addr", r.RemoteAddr)

	// Subscribe before the handshake completes so that a client that has
	// connected never misses an event published afterwards.
	ch, ok := h.subscribe()
	if !ok {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	defer h.unsubscribe(ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(ctx, "Websocket upgrade failed", "error", err)
		return
	}

	defer func() {
		_ = conn.Close()
	}()

	logger.DebugKV(ctx, "Observer connected")

	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e, open := <-ch:
			if !open {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(writeTimeout),
				)

				return
			}

			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))

			if err := conn.WriteJSON(e); err != nil {
				logger.DebugKV(ctx, "Observer write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-done:
			logger.DebugKV(ctx, "Observer disconnected")
			return
		}
	}
}

func (h *Hub) subscribe() (chan events.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, false
	}

	ch := make(chan events.Event, subscriberBuffer)
	h.subscribers[ch] = struct{}{}

	return ch, true
}

func (h *Hub) unsubscribe(ch chan events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[ch]; ok {
		delete(h.subscribers, ch)
		close(ch)
	}
}

// sameOrigin accepts requests without an Origin header and those whose
// origin host matches the request host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}

	return strings.EqualFold(strings.TrimSpace(u.Host), strings.TrimSpace(r.Host))
}
