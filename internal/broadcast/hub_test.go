package broadcast

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pairflow/internal/metrics"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	h := NewHub(8)
	s1 := h.Subscribe(ChannelPrices)
	s2 := h.Subscribe(ChannelPrices)
	other := h.Subscribe(ChannelAlerts)

	h.Publish(ChannelPrices, "p1")

	for _, s := range []*Subscriber{s1, s2} {
		select {
		case msg := <-s.C():
			if msg.Type != ChannelPrices || msg.Data != "p1" {
				t.Errorf("unexpected message: %+v", msg)
			}
		default:
			t.Fatal("subscriber did not receive published message")
		}
	}
	select {
	case <-other.C():
		t.Error("alerts subscriber received a prices message")
	default:
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	h := NewHub(3)
	slow := h.Subscribe(ChannelSpread)

	exportedBefore := testutil.ToFloat64(metrics.BroadcastDropped)
	for i := 0; i < 10; i++ {
		h.Publish(ChannelSpread, i)
	}

	// The queue must hold the 3 newest payloads; older ones were dropped.
	want := []int{7, 8, 9}
	for _, w := range want {
		select {
		case msg := <-slow.C():
			if msg.Data != w {
				t.Errorf("expected payload %d, got %v", w, msg.Data)
			}
		default:
			t.Fatalf("expected queued payload %d", w)
		}
	}
	if h.Dropped() == 0 {
		t.Error("drops should have been counted")
	}
	if got := testutil.ToFloat64(metrics.BroadcastDropped) - exportedBefore; got != float64(h.Dropped()) {
		t.Errorf("exported drop counter out of sync: delta %v, hub counted %d", got, h.Dropped())
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	h := NewHub(1)
	h.Subscribe(ChannelSummary) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Publish(ChannelSummary, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a stalled subscriber")
	}
}

func TestSlowSubscriberIsolation(t *testing.T) {
	h := NewHub(2)
	stalled := h.Subscribe(ChannelBars)
	_ = stalled // never drained
	healthy := h.Subscribe(ChannelBars)

	for i := 0; i < 5; i++ {
		h.Publish(ChannelBars, i)
		select {
		case msg := <-healthy.C():
			if msg.Data != i {
				t.Errorf("healthy subscriber lost ordering: want %d got %v", i, msg.Data)
			}
		default:
			t.Fatalf("healthy subscriber starved at %d", i)
		}
	}
}

func TestUnsubscribeClosesQueue(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe(ChannelCorrelation)

	if h.TotalSubscribers() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", h.TotalSubscribers())
	}
	h.Unsubscribe(sub)
	if h.TotalSubscribers() != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe")
	}

	if _, ok := <-sub.C(); ok {
		t.Error("queue should be closed after unsubscribe")
	}

	// Publishing after unsubscribe must be a no-op, not a panic.
	h.Publish(ChannelCorrelation, "late")

	counts := h.Counts()
	if counts[ChannelCorrelation] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}
}
