// Package feed streams daemon events to the overlay hub over a
// websocket. Publishing never blocks the voice loop: events queue into
// a small backlog and drop when the hub is away.
package feed

import (
	"context"
	"encoding/json"
	log "log/slog"
	"time"

	ws "github.com/gorilla/websocket"
)

// Event is one entry on the outbound feed.
type Event struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Feed publishes events to the hub. A nil Feed is valid and discards
// everything, so callers never guard their publishes.
type Feed struct {
	url    string
	events chan Event
}

// New returns a disconnected feed for url, or nil when url is empty.
func New(url string) *Feed {
	if url == "" {
		return nil
	}
	const backlog = 64
	return &Feed{
		url:    url,
		events: make(chan Event, backlog),
	}
}

// Publish queues an event without blocking. Events drop when the
// backlog is full or the feed is off.
func (f *Feed) Publish(kind string, payload any) {
	if f == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Warn("Feed payload not serializable", "kind", kind, "err", err)
		return
	}
	select {
	case f.events <- Event{Kind: kind, Payload: raw, At: time.Now()}:
	default:
		log.Debug("Feed backlog full, dropping event", "kind", kind)
	}
}

// Run dials the hub and forwards queued events until ctx is done,
// redialing after a fixed delay whenever the connection drops.
func (f *Feed) Run(ctx context.Context) {
	if f == nil {
		return
	}
	const redial = 5 * time.Second

	var conn *ws.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		if conn == nil {
			c, _, err := ws.DefaultDialer.DialContext(ctx, f.url, nil)
			if err != nil {
				log.Debug("Feed hub unreachable", "url", f.url, "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(redial):
				}
				continue
			}
			log.Info("Feed connected", "url", f.url)
			conn = c
		}

		select {
		case <-ctx.Done():
			return
		case ev := <-f.events:
			if err := conn.WriteJSON(ev); err != nil {
				log.Warn("Feed write failed, redialing", "err", err)
				conn.Close()
				conn = nil
			}
		}
	}
}
