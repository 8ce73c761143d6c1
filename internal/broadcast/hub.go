// Package broadcast fans pipeline output out to independently-paced
// subscribers. Each subscriber owns a bounded queue; a full queue drops
// that subscriber's oldest update and never blocks the publisher.
package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"pairflow/internal/metrics"
)

// Channel names a logical output stream.
type Channel string

const (
	ChannelPrices      Channel = "prices"
	ChannelBars        Channel = "bars"
	ChannelSpread      Channel = "spread"
	ChannelCorrelation Channel = "correlation"
	ChannelSummary     Channel = "summary"
	ChannelAlerts      Channel = "alerts"
)

// Channels returns every supported channel.
func Channels() []Channel {
	return []Channel{
		ChannelPrices, ChannelBars, ChannelSpread,
		ChannelCorrelation, ChannelSummary, ChannelAlerts,
	}
}

// IsValid checks if the Channel is a known stream name.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelPrices, ChannelBars, ChannelSpread,
		ChannelCorrelation, ChannelSummary, ChannelAlerts:
		return true
	}
	return false
}

// DefaultQueueSize is the per-subscriber queue depth when none is
// configured.
const DefaultQueueSize = 64

// Message is the envelope delivered to subscribers.
type Message struct {
	Type      Channel `json:"type"`
	Data      any     `json:"data"`
	Timestamp int64   `json:"timestamp"` // publish time, milliseconds
}

// Subscriber is one registered consumer of a channel.
type Subscriber struct {
	channel Channel
	out     chan Message
	once    sync.Once
}

// C returns the subscriber's receive queue. The channel is closed on
// Unsubscribe.
func (s *Subscriber) C() <-chan Message {
	return s.out
}

// Channel reports which stream the subscriber is attached to.
func (s *Subscriber) Channel() Channel {
	return s.channel
}

func (s *Subscriber) close() {
	s.once.Do(func() { close(s.out) })
}

// Hub routes published payloads to every subscriber of a channel.
type Hub struct {
	mu        sync.RWMutex
	queueSize int
	subs      map[Channel]map[*Subscriber]struct{}
	dropped   atomic.Uint64
}

// NewHub creates a hub whose subscribers buffer up to queueSize messages.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	h := &Hub{
		queueSize: queueSize,
		subs:      make(map[Channel]map[*Subscriber]struct{}),
	}
	for _, c := range Channels() {
		h.subs[c] = make(map[*Subscriber]struct{})
	}
	return h
}

// Subscribe registers a new consumer on the channel.
func (h *Hub) Subscribe(c Channel) *Subscriber {
	sub := &Subscriber{channel: c, out: make(chan Message, h.queueSize)}

	h.mu.Lock()
	if _, ok := h.subs[c]; !ok {
		h.subs[c] = make(map[*Subscriber]struct{})
	}
	h.subs[c][sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Unsubscribe detaches the consumer and closes its queue.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	delete(h.subs[sub.channel], sub)
	h.mu.Unlock()
	sub.close()
}

// Publish enqueues the payload for every current subscriber of the channel
// and returns without waiting on any consumer. A subscriber whose queue is
// full loses its own oldest queued message; nobody else is affected.
func (h *Hub) Publish(c Channel, payload any) {
	msg := Message{Type: c, Data: payload, Timestamp: time.Now().UnixMilli()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[c] {
		select {
		case sub.out <- msg:
			continue
		default:
		}
		// Queue full: drop this subscriber's oldest message and retry
		// once. A concurrent reader may have drained in between, so the
		// retry can also legitimately succeed without a drop.
		select {
		case <-sub.out:
			h.dropped.Add(1)
			metrics.BroadcastDropped.Inc()
		default:
		}
		select {
		case sub.out <- msg:
		default:
			h.dropped.Add(1)
			metrics.BroadcastDropped.Inc()
		}
	}
}

// Counts reports the number of subscribers per channel.
func (h *Hub) Counts() map[Channel]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[Channel]int, len(h.subs))
	for c, subs := range h.subs {
		out[c] = len(subs)
	}
	return out
}

// TotalSubscribers reports the number of connected subscribers.
func (h *Hub) TotalSubscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, subs := range h.subs {
		total += len(subs)
	}
	return total
}

// Dropped reports how many messages were discarded on full queues.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
