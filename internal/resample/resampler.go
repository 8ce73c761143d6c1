// Package resample converts tick streams into fixed-interval OHLCV bars.
// Each (symbol, interval) owns at most one live bar at a time; a bar is
// finalized exactly once when its bucket boundary is crossed.
package resample

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairflow/internal/market"
)

// DefaultMaxBars is the finalized-bar retention per (symbol, interval).
const DefaultMaxBars = 1000

// DefaultPollInterval is how often the wall-clock finalizer checks for
// elapsed buckets with no triggering tick.
const DefaultPollInterval = time.Second

// DefaultGrace is how long past a bucket boundary the wall-clock finalizer
// waits before closing the bar, so in-flight ticks stamped inside the
// bucket still land in it instead of arriving late.
const DefaultGrace = time.Second

type key struct {
	symbol   string
	interval market.Interval
}

// Resampler maintains live bars per (symbol, interval) and a bounded
// history of finalized bars.
type Resampler struct {
	mu        sync.Mutex
	intervals []market.Interval
	maxBars   int
	grace     time.Duration
	live      map[key]*market.Bar
	finalized map[key][]market.Bar
	lastFinal map[key]time.Time
	onFinal   func(market.Bar)
	lateTicks uint64
	logger    *zap.Logger
}

// New creates a resampler producing bars at the given intervals. grace is
// how far past a bucket boundary the wall-clock finalizer waits before
// closing the bar. onFinal is invoked exactly once per finalized bar, while
// holding no resampler lock state callers could re-enter; it must not block
// for long.
func New(intervals []market.Interval, maxBars int, grace time.Duration, onFinal func(market.Bar), logger *zap.Logger) *Resampler {
	if len(intervals) == 0 {
		intervals = market.Intervals()
	}
	if maxBars <= 0 {
		maxBars = DefaultMaxBars
	}
	if grace < 0 {
		grace = 0
	}
	if onFinal == nil {
		onFinal = func(market.Bar) {}
	}
	return &Resampler{
		intervals: intervals,
		maxBars:   maxBars,
		grace:     grace,
		live:      make(map[key]*market.Bar),
		finalized: make(map[key][]market.Bar),
		lastFinal: make(map[key]time.Time),
		onFinal:   onFinal,
		logger:    logger,
	}
}

// Apply folds one tick into the live bar of every configured interval.
// A tick belonging to an already-finalized bucket, or to a bucket before
// the live bar's, is late and is dropped; resampled history is never
// corrected retroactively and no bucket is finalized twice.
func (r *Resampler) Apply(t market.Tick) {
	var closed []market.Bar

	r.mu.Lock()
	for _, iv := range r.intervals {
		k := key{symbol: t.Symbol, interval: iv}
		bucket := iv.Truncate(t.Timestamp)

		bar, ok := r.live[k]
		if !ok {
			// The wall-clock finalizer may have closed this bucket already;
			// reopening it would emit a second finalized bar for it.
			if last, done := r.lastFinal[k]; done && !bucket.After(last) {
				r.lateTicks++
				continue
			}
			nb := market.NewBar(t, iv)
			r.live[k] = &nb
			continue
		}

		switch {
		case bucket.Equal(bar.OpenTime):
			bar.Apply(t)
		case bucket.After(bar.OpenTime):
			closed = append(closed, r.finalizeLocked(k))
			nb := market.NewBar(t, iv)
			r.live[k] = &nb
		default:
			// Late tick for an already-closed bucket.
			r.lateTicks++
		}
	}
	r.mu.Unlock()

	for _, b := range closed {
		r.onFinal(b)
	}
}

// FinalizeElapsed closes every live bar whose bucket has elapsed at now by
// at least the configured grace, so quiet symbols still emit finalized bars
// on schedule while in-flight ticks get a bounded window to land.
func (r *Resampler) FinalizeElapsed(now time.Time) {
	var closed []market.Bar

	r.mu.Lock()
	for k, bar := range r.live {
		if !bar.CloseTime.Add(r.grace).After(now) {
			closed = append(closed, r.finalizeLocked(k))
		}
	}
	r.mu.Unlock()

	for _, b := range closed {
		r.onFinal(b)
	}
}

// Run drives the wall-clock finalizer until the context is canceled.
func (r *Resampler) Run(ctx context.Context, poll time.Duration) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.FinalizeElapsed(now)
		}
	}
}

// finalizeLocked marks the live bar final, stores it, and removes it from
// the live set. Caller holds r.mu and must hold the live bar for k.
func (r *Resampler) finalizeLocked(k key) market.Bar {
	bar := r.live[k]
	bar.IsFinal = true
	delete(r.live, k)
	r.lastFinal[k] = bar.OpenTime

	hist := append(r.finalized[k], *bar)
	if len(hist) > r.maxBars {
		hist = hist[len(hist)-r.maxBars:]
	}
	r.finalized[k] = hist

	if r.logger != nil {
		r.logger.Debug("bar finalized",
			zap.String("symbol", k.symbol),
			zap.String("interval", string(k.interval)),
			zap.Time("openTime", bar.OpenTime),
			zap.Float64("close", bar.Close),
		)
	}
	return *bar
}

// Bars returns up to n of the most recent bars for (symbol, interval),
// oldest-first, with the live bar appended last when one exists.
func (r *Resampler) Bars(symbol string, iv market.Interval, n int) []market.Bar {
	k := key{symbol: symbol, interval: iv}

	r.mu.Lock()
	defer r.mu.Unlock()

	hist := r.finalized[k]
	out := make([]market.Bar, len(hist), len(hist)+1)
	copy(out, hist)
	if bar, ok := r.live[k]; ok {
		out = append(out, *bar)
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// PairHistory returns the finalized close prices of two symbols aligned by
// bucket time, oldest-first, at most n pairs. Finalized bars already emit
// in increasing bucket order, so the aligned series needs no re-sorting.
func (r *Resampler) PairHistory(symbolA, symbolB string, iv market.Interval, n int) (times []time.Time, closesA, closesB []float64) {
	r.mu.Lock()
	histA := r.finalized[key{symbol: symbolA, interval: iv}]
	histB := r.finalized[key{symbol: symbolB, interval: iv}]
	byTimeB := make(map[int64]float64, len(histB))
	for _, b := range histB {
		byTimeB[b.OpenTime.UnixMilli()] = b.Close
	}
	for _, a := range histA {
		if cb, ok := byTimeB[a.OpenTime.UnixMilli()]; ok {
			times = append(times, a.OpenTime)
			closesA = append(closesA, a.Close)
			closesB = append(closesB, cb)
		}
	}
	r.mu.Unlock()

	if n > 0 && len(times) > n {
		times = times[len(times)-n:]
		closesA = closesA[len(closesA)-n:]
		closesB = closesB[len(closesB)-n:]
	}
	return times, closesA, closesB
}

// LateTicks reports how many out-of-order ticks have been dropped.
func (r *Resampler) LateTicks() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lateTicks
}
