// Package analytics maintains rolling pairwise statistics (hedge ratio,
// spread, z-score, correlation) over aligned resampled price pairs.
package analytics

import (
	"math"
	"sync"
	"time"

	"pairflow/internal/market"
)

const (
	// DefaultWindow is the rolling window for spread statistics.
	DefaultWindow = 20
	// DefaultCorrelationWindow is the rolling window for the Pearson
	// correlation of the raw price series.
	DefaultCorrelationWindow = 60

	// maxPending bounds the per-symbol map of bars waiting for their
	// counterpart; older orphans are discarded.
	maxPending = 16
)

// Config selects the symbol pair and window geometry of the engine.
type Config struct {
	SymbolA           string
	SymbolB           string
	Window            int
	CorrelationWindow int
	Method            Method
}

func (c Config) withDefaults() Config {
	if c.Window < 2 {
		c.Window = DefaultWindow
	}
	if c.CorrelationWindow < 2 {
		c.CorrelationWindow = DefaultCorrelationWindow
	}
	if !c.Method.IsValid() {
		c.Method = MethodOLS
	}
	return c
}

// Snapshot is the analytics output for one aligned price pair.
// ZScore, Correlation and RollingStd are NaN until enough samples have
// accumulated; consumers must treat NaN as "not yet defined", not as zero.
type Snapshot struct {
	Timestamp   time.Time
	SymbolA     string
	SymbolB     string
	PriceA      float64
	PriceB      float64
	HedgeRatio  float64
	Intercept   float64
	Spread      float64
	RollingMean float64
	RollingStd  float64
	ZScore      float64
	Correlation float64
	SampleCount int
}

// Engine owns the resettable rolling window state for one symbol pair.
// All methods are safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	cfg      Config
	closesA  []float64 // aligned closes, oldest-first
	closesB  []float64
	count    int // aligned pairs since last reset
	lastTime time.Time
	pendingA map[int64]float64 // bucket millis -> close, awaiting counterpart
	pendingB map[int64]float64
	last     *Snapshot
}

// NewEngine creates an engine for the configured pair.
func NewEngine(cfg Config) *Engine {
	e := &Engine{}
	e.reset(cfg.withDefaults())
	return e
}

// Reset discards all accumulated rolling state and restarts accumulation
// from zero under the new configuration. There is no partial carry-over.
func (e *Engine) Reset(cfg Config) {
	e.mu.Lock()
	e.reset(cfg.withDefaults())
	e.mu.Unlock()
}

func (e *Engine) reset(cfg Config) {
	e.cfg = cfg
	e.closesA = nil
	e.closesB = nil
	e.count = 0
	e.lastTime = time.Time{}
	e.pendingA = make(map[int64]float64)
	e.pendingB = make(map[int64]float64)
	e.last = nil
}

// Config returns the engine's current configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// ObserveBar feeds one finalized bar into the engine. When the bar
// completes an aligned pair for a new bucket the snapshot for that pair is
// returned with ok=true; otherwise the bar is parked until its counterpart
// arrives.
func (e *Engine) ObserveBar(b market.Bar) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	bucket := b.OpenTime.UnixMilli()
	switch b.Symbol {
	case e.cfg.SymbolA:
		e.pendingA[bucket] = b.Close
	case e.cfg.SymbolB:
		e.pendingB[bucket] = b.Close
	default:
		return Snapshot{}, false
	}

	pa, okA := e.pendingA[bucket]
	pb, okB := e.pendingB[bucket]
	if !okA || !okB {
		e.prunePending()
		return Snapshot{}, false
	}
	delete(e.pendingA, bucket)
	delete(e.pendingB, bucket)

	at := b.OpenTime
	if !at.After(e.lastTime) && e.count > 0 {
		// Already observed this bucket or an even later one.
		return Snapshot{}, false
	}
	snap := e.observe(at, pa, pb)
	return snap, true
}

// Observe appends one aligned price pair directly. Exposed for callers
// that align buckets themselves (and for tests).
func (e *Engine) Observe(at time.Time, priceA, priceB float64) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.observe(at, priceA, priceB)
}

func (e *Engine) observe(at time.Time, priceA, priceB float64) Snapshot {
	e.closesA = append(e.closesA, priceA)
	e.closesB = append(e.closesB, priceB)
	keep := e.cfg.Window
	if e.cfg.CorrelationWindow > keep {
		keep = e.cfg.CorrelationWindow
	}
	if len(e.closesA) > keep {
		e.closesA = e.closesA[len(e.closesA)-keep:]
		e.closesB = e.closesB[len(e.closesB)-keep:]
	}
	e.count++
	e.lastTime = at

	snap := Snapshot{
		Timestamp:   at,
		SymbolA:     e.cfg.SymbolA,
		SymbolB:     e.cfg.SymbolB,
		PriceA:      priceA,
		PriceB:      priceB,
		HedgeRatio:  math.NaN(),
		Intercept:   math.NaN(),
		Spread:      math.NaN(),
		RollingMean: math.NaN(),
		RollingStd:  math.NaN(),
		ZScore:      math.NaN(),
		Correlation: math.NaN(),
		SampleCount: e.count,
	}

	wa, wb := e.windowSlices(e.cfg.Window)
	if e.count >= 2 {
		slope, intercept, ok := fit(e.cfg.Method, wb, wa)
		if !ok {
			// Degenerate window (zero variance in B): fall back to a
			// zero hedge ratio so the spread is still defined.
			slope, intercept = 0, 0
		}
		snap.HedgeRatio = slope
		snap.Intercept = intercept
		// Spread excludes the intercept: priceA - slope*priceB. The
		// intercept is still surfaced on the snapshot for inspection.
		snap.Spread = priceA - slope*priceB

		if e.count >= e.cfg.Window {
			spreads := make([]float64, len(wa))
			for i := range wa {
				spreads[i] = wa[i] - slope*wb[i]
			}
			snap.RollingMean = mean(spreads)
			snap.RollingStd = sampleStd(spreads)
			if snap.RollingStd > 0 {
				snap.ZScore = (snap.Spread - snap.RollingMean) / snap.RollingStd
			}
		}
	}

	if e.count >= e.cfg.CorrelationWindow {
		ca, cb := e.windowSlices(e.cfg.CorrelationWindow)
		snap.Correlation = pearson(ca, cb)
	}

	e.last = &snap
	return snap
}

// windowSlices returns views over the last n aligned closes.
func (e *Engine) windowSlices(n int) (a, b []float64) {
	if len(e.closesA) < n {
		n = len(e.closesA)
	}
	return e.closesA[len(e.closesA)-n:], e.closesB[len(e.closesB)-n:]
}

// prunePending drops the oldest orphaned buckets so a one-sided stream
// cannot grow the maps without bound.
func (e *Engine) prunePending() {
	for _, pending := range []map[int64]float64{e.pendingA, e.pendingB} {
		for len(pending) > maxPending {
			oldest := int64(math.MaxInt64)
			for bucket := range pending {
				if bucket < oldest {
					oldest = bucket
				}
			}
			delete(pending, oldest)
		}
	}
}

// Last returns the most recently computed snapshot, if any.
func (e *Engine) Last() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Snapshot{}, false
	}
	return *e.last, true
}
