package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"zigbee-node/internal/node"
)

// subscriberBuffer is the per-connection send queue. A subscriber that
// falls this far behind the event stream is dropped from the feed.
const subscriberBuffer = 64

// eventFeed streams node events to WebSocket subscribers. Delivery is
// best-effort: publish never blocks the event bus, and a subscriber whose
// queue is full is evicted rather than throttling the node.
type eventFeed struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[*feedSub]struct{}
	closed bool
}

// feedSub is one subscriber. Its queue is closed exactly once, by the
// feed, when the subscriber is dropped or the feed shuts down.
type feedSub struct {
	queue chan []byte
}

func newEventFeed(logger *slog.Logger) *eventFeed {
	return &eventFeed{
		logger: logger,
		subs:   make(map[*feedSub]struct{}),
	}
}

// subscribe attaches a new subscriber, or returns nil after shutdown.
func (f *eventFeed) subscribe() *feedSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	sub := &feedSub{queue: make(chan []byte, subscriberBuffer)}
	f.subs[sub] = struct{}{}
	f.logger.Debug("ws subscriber attached", "total", len(f.subs))
	return sub
}

// drop detaches a subscriber and closes its queue. Safe to call for an
// already-dropped subscriber.
func (f *eventFeed) drop(sub *feedSub) {
	f.mu.Lock()
	if _, ok := f.subs[sub]; ok {
		delete(f.subs, sub)
		close(sub.queue)
		f.logger.Debug("ws subscriber detached", "total", len(f.subs))
	}
	f.mu.Unlock()
}

// publish fans one event out to every subscriber, evicting the slow ones.
func (f *eventFeed) publish(event node.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("ws encode event", "type", event.Type, "err", err)
		return
	}

	f.mu.Lock()
	for sub := range f.subs {
		select {
		case sub.queue <- data:
		default:
			delete(f.subs, sub)
			close(sub.queue)
			f.logger.Warn("ws subscriber evicted, queue full")
		}
	}
	f.mu.Unlock()
}

// shutdown drops every subscriber and refuses new ones. Safe to call
// multiple times.
func (f *eventFeed) shutdown() {
	f.mu.Lock()
	f.closed = true
	for sub := range f.subs {
		delete(f.subs, sub)
		close(sub.queue)
	}
	f.mu.Unlock()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}

	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(4096)

	sub := s.feed.subscribe()
	if sub == nil {
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go func() {
		for msg := range sub.queue {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				s.feed.drop(sub)
				return
			}
		}
		// Queue closed: evicted or feed shutdown.
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	// The socket is a one-way feed; inbound frames only signal liveness.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			s.feed.drop(sub)
			return
		}
	}
}
