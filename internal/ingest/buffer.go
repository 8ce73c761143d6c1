// Package ingest holds the most recent ticks per symbol in bounded,
// FIFO-evicting ring buffers. It is the sole write path for incoming ticks.
package ingest

import (
	"sort"
	"sync"

	"pairflow/internal/market"
)

// DefaultCapacity is the per-symbol tick retention when none is configured.
const DefaultCapacity = 10000

// TickStore keeps one bounded ring buffer per symbol.
type TickStore struct {
	globalMu sync.RWMutex
	capacity int
	data     map[string]*symbolBuffer
}

type symbolBuffer struct {
	mu    sync.Mutex
	ticks []market.Tick // fixed-size ring
	next  int           // next write position
	size  int
	total uint64 // ticks ever pushed, survives eviction
	last  market.Tick
}

// BufferStats is a point-in-time readout of one symbol's buffer.
type BufferStats struct {
	Symbol        string  `json:"symbol"`
	Length        int     `json:"length"`
	TotalIngested uint64  `json:"totalIngested"`
	LastPrice     float64 `json:"lastPrice"`
	LastTimestamp int64   `json:"lastTimestamp"`
}

// NewTickStore creates a store whose per-symbol buffers hold at most
// capacity ticks. Non-positive capacity falls back to DefaultCapacity.
func NewTickStore(capacity int) *TickStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &TickStore{
		capacity: capacity,
		data:     make(map[string]*symbolBuffer),
	}
}

// Push appends a tick to its symbol's buffer, evicting the oldest entry
// when the buffer is full. It never fails and never blocks beyond the
// per-symbol critical section.
func (s *TickStore) Push(t market.Tick) {
	// Fast path: lock per-symbol buffer only
	s.globalMu.RLock()
	buf, ok := s.data[t.Symbol]
	s.globalMu.RUnlock()

	if !ok {
		// Need to initialize new symbol buffer (exclusive lock)
		s.globalMu.Lock()
		if buf, ok = s.data[t.Symbol]; !ok {
			buf = &symbolBuffer{ticks: make([]market.Tick, s.capacity)}
			s.data[t.Symbol] = buf
		}
		s.globalMu.Unlock()
	}

	buf.mu.Lock()
	buf.ticks[buf.next] = t
	buf.next = (buf.next + 1) % len(buf.ticks)
	if buf.size < len(buf.ticks) {
		buf.size++
	}
	buf.total++
	buf.last = t
	buf.mu.Unlock()
}

// Snapshot returns a copy of the most recent count ticks for symbol in
// arrival order, newest-last. A non-positive or oversized count returns
// everything retained. Safe to call concurrently with Push.
func (s *TickStore) Snapshot(symbol string, count int) []market.Tick {
	s.globalMu.RLock()
	buf, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return nil
	}

	buf.mu.Lock()
	defer buf.mu.Unlock()

	n := buf.size
	if count > 0 && count < n {
		n = count
	}
	out := make([]market.Tick, n)
	// Oldest requested tick sits n positions behind the write cursor.
	start := buf.next - n
	if start < 0 {
		start += len(buf.ticks)
	}
	for i := 0; i < n; i++ {
		out[i] = buf.ticks[(start+i)%len(buf.ticks)]
	}
	return out
}

// LatestPrices returns the last observed price per symbol. A nil or empty
// symbols slice queries all tracked symbols.
func (s *TickStore) LatestPrices(symbols []string) map[string]float64 {
	if len(symbols) == 0 {
		symbols = s.ActiveSymbols()
	}

	prices := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		s.globalMu.RLock()
		buf, ok := s.data[symbol]
		s.globalMu.RUnlock()
		if !ok {
			continue
		}
		buf.mu.Lock()
		if buf.size > 0 {
			prices[symbol] = buf.last.Price
		}
		buf.mu.Unlock()
	}
	return prices
}

// ActiveSymbols returns the sorted list of symbols currently tracked.
func (s *TickStore) ActiveSymbols() []string {
	s.globalMu.RLock()
	symbols := make([]string, 0, len(s.data))
	for symbol := range s.data {
		symbols = append(symbols, symbol)
	}
	s.globalMu.RUnlock()

	sort.Strings(symbols)
	return symbols
}

// Stats returns per-symbol buffer statistics for the health endpoint.
func (s *TickStore) Stats() []BufferStats {
	symbols := s.ActiveSymbols()

	out := make([]BufferStats, 0, len(symbols))
	for _, symbol := range symbols {
		s.globalMu.RLock()
		buf := s.data[symbol]
		s.globalMu.RUnlock()
		if buf == nil {
			continue
		}
		buf.mu.Lock()
		st := BufferStats{
			Symbol:        symbol,
			Length:        buf.size,
			TotalIngested: buf.total,
		}
		if buf.size > 0 {
			st.LastPrice = buf.last.Price
			st.LastTimestamp = buf.last.Timestamp.UnixMilli()
		}
		buf.mu.Unlock()
		out = append(out, st)
	}
	return out
}
