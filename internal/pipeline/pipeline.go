// Package pipeline wires the processing stages together: ticks flow from
// the feed into the ingestion buffer and resampler, finalized bars feed the
// pair analytics engine, snapshots drive alert evaluation and the stream
// hub. Stages are decoupled by bounded channels; an overloaded stage drops
// rather than stalling the feed.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"pairflow/internal/alert"
	"pairflow/internal/analytics"
	"pairflow/internal/broadcast"
	"pairflow/internal/ingest"
	"pairflow/internal/market"
	"pairflow/internal/metrics"
	"pairflow/internal/resample"
	"pairflow/internal/settings"
)

// Options sizes the pipeline's internal buffers and cadences. Zero values
// fall back to defaults.
type Options struct {
	TickBuffer      int           // tick channel capacity
	BarBuffer       int           // finalized bar channel capacity
	BufferCapacity  int           // per-symbol ring capacity in the tick store
	MaxBars         int           // finalized bars retained per (symbol, interval)
	QueueSize       int           // per-subscriber stream queue
	SnapshotHistory int           // analytics snapshots retained for export
	BroadcastEvery  time.Duration // prices and summary cadence
	FinalizerPoll   time.Duration // wall clock bar finalizer poll
	FinalizeGrace   time.Duration // how long past a bucket boundary the finalizer waits
}

func (o Options) withDefaults() Options {
	if o.TickBuffer <= 0 {
		o.TickBuffer = 4096
	}
	if o.BarBuffer <= 0 {
		o.BarBuffer = 1024
	}
	if o.BufferCapacity <= 0 {
		o.BufferCapacity = ingest.DefaultCapacity
	}
	if o.MaxBars <= 0 {
		o.MaxBars = 1000
	}
	if o.QueueSize <= 0 {
		o.QueueSize = broadcast.DefaultQueueSize
	}
	if o.SnapshotHistory <= 0 {
		o.SnapshotHistory = 10000
	}
	if o.BroadcastEvery <= 0 {
		o.BroadcastEvery = time.Second
	}
	if o.FinalizerPoll <= 0 {
		o.FinalizerPoll = time.Second
	}
	if o.FinalizeGrace <= 0 {
		o.FinalizeGrace = resample.DefaultGrace
	}
	return o
}

// Health is a point-in-time operational readout.
type Health struct {
	Status        string               `json:"status"`
	UptimeSeconds int64                `json:"uptimeSeconds"`
	FeedConnected bool                 `json:"feedConnected"`
	ActiveSymbols []string             `json:"activeSymbols"`
	Buffers       []ingest.BufferStats `json:"buffers"`
	LateTicks     uint64               `json:"lateTicks"`
	DroppedTicks  uint64               `json:"droppedTicks"`
	Subscribers   int                  `json:"subscribers"`
	Snapshots     int                  `json:"snapshots"`
}

// Pipeline owns every processing stage and the channels between them.
type Pipeline struct {
	opts   Options
	logger *zap.Logger

	store    *ingest.TickStore
	res      *resample.Resampler
	eng      *analytics.Engine
	alerts   *alert.Engine
	hub      *broadcast.Hub
	settings *settings.Store

	tickCh chan market.Tick
	barCh  chan market.Bar

	mu      sync.Mutex
	history []analytics.Snapshot
	dropped uint64

	feedUp  func() bool
	started time.Time
}

// New builds a fully wired pipeline around the given settings store.
func New(opts Options, st *settings.Store, logger *zap.Logger) *Pipeline {
	opts = opts.withDefaults()
	cur := st.Current()

	p := &Pipeline{
		opts:     opts,
		logger:   logger,
		store:    ingest.NewTickStore(opts.BufferCapacity),
		eng:      analytics.NewEngine(engineConfig(cur)),
		alerts:   alert.NewEngine(0),
		hub:      broadcast.NewHub(opts.QueueSize),
		settings: st,
		tickCh:   make(chan market.Tick, opts.TickBuffer),
		barCh:    make(chan market.Bar, opts.BarBuffer),
		history:  make([]analytics.Snapshot, 0, 1024),
		feedUp:   func() bool { return false },
		started:  time.Now(),
	}

	p.res = resample.New(market.Intervals(), opts.MaxBars, opts.FinalizeGrace, p.onFinalBar, logger)

	st.Watch(func(old, next settings.Settings) {
		if settings.ResetsAnalytics(old, next) {
			p.eng.Reset(engineConfig(next))
			p.logger.Info("analytics window reset",
				zap.String("symbol_a", next.SymbolA),
				zap.String("symbol_b", next.SymbolB),
				zap.String("interval", string(next.Interval)),
				zap.String("method", string(next.RegressionMethod)))
		}
	})
	return p
}

func engineConfig(s settings.Settings) analytics.Config {
	return analytics.Config{
		SymbolA:           s.SymbolA,
		SymbolB:           s.SymbolB,
		Window:            s.WindowSize,
		CorrelationWindow: s.CorrelationWindow,
		Method:            s.RegressionMethod,
	}
}

// OnTick is the feed entry point. It never blocks: when the tick channel is
// full the tick is counted and discarded.
func (p *Pipeline) OnTick(t market.Tick) {
	if !t.Valid() {
		metrics.TicksDropped.WithLabelValues("malformed").Inc()
		return
	}
	select {
	case p.tickCh <- t:
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		metrics.TicksDropped.WithLabelValues("overflow").Inc()
	}
}

// SetFeedProbe registers the connectivity check reported by Health.
func (p *Pipeline) SetFeedProbe(probe func() bool) {
	if probe != nil {
		p.feedUp = probe
	}
}

// Run drives the workers until the context is canceled.
func (p *Pipeline) Run(ctx context.Context) {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.res.Run(ctx, p.opts.FinalizerPoll)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.tickWorker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.barWorker(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.broadcastLoop(ctx)
	}()

	wg.Wait()
}

func (p *Pipeline) tickWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.tickCh:
			p.store.Push(t)
			p.res.Apply(t)
			metrics.TicksIngested.WithLabelValues(t.Symbol).Inc()
		}
	}
}

// onFinalBar runs on the resampler goroutine; hand off quickly.
func (p *Pipeline) onFinalBar(b market.Bar) {
	metrics.BarsFinalized.WithLabelValues(b.Symbol, string(b.Interval)).Inc()
	select {
	case p.barCh <- b:
	default:
		p.logger.Warn("bar channel full, dropping bar",
			zap.String("symbol", b.Symbol), zap.String("interval", string(b.Interval)))
	}
}

func (p *Pipeline) barWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-p.barCh:
			p.hub.Publish(broadcast.ChannelBars, barPayload(b))

			cur := p.settings.Current()
			if b.Interval != cur.Interval {
				continue
			}
			if b.Symbol != cur.SymbolA && b.Symbol != cur.SymbolB {
				continue
			}

			snap, ok := p.eng.ObserveBar(b)
			if !ok {
				continue
			}
			p.recordSnapshot(snap)
			p.hub.Publish(broadcast.ChannelSpread, spreadPayload(snap))
			p.hub.Publish(broadcast.ChannelCorrelation, correlationPayload(snap))
			p.evaluateAlerts(snap, cur)
		}
	}
}

func (p *Pipeline) evaluateAlerts(snap analytics.Snapshot, cur settings.Settings) {
	th := alert.Thresholds{
		ZScore:          cur.ZScoreThreshold,
		Correlation:     cur.CorrelationThreshold,
		Volatility:      cur.VolatilityThreshold,
		CooldownSeconds: cur.CooldownSeconds,
	}
	for _, a := range p.alerts.Evaluate(snap, th) {
		metrics.AlertsEmitted.WithLabelValues(string(a.Rule)).Inc()
		p.hub.Publish(broadcast.ChannelAlerts, a)
		p.logger.Info("alert emitted",
			zap.String("rule", string(a.Rule)),
			zap.String("severity", string(a.Severity)),
			zap.Float64("value", a.Value))
	}
}

func (p *Pipeline) recordSnapshot(snap analytics.Snapshot) {
	metrics.SnapshotsComputed.Inc()
	p.mu.Lock()
	p.history = append(p.history, snap)
	if over := len(p.history) - p.opts.SnapshotHistory; over > 0 {
		p.history = p.history[over:]
	}
	p.mu.Unlock()
}

func (p *Pipeline) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.BroadcastEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishPrices()
			p.publishSummary()
		}
	}
}

func (p *Pipeline) publishPrices() {
	cur := p.settings.Current()
	prices := p.store.LatestPrices(cur.DisplaySymbols)
	if len(prices) == 0 {
		return
	}
	p.hub.Publish(broadcast.ChannelPrices, PricesPayload{
		Prices:    prices,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (p *Pipeline) publishSummary() {
	cur := p.settings.Current()
	snap, ok := p.eng.Last()
	prices := p.store.LatestPrices([]string{cur.SymbolA, cur.SymbolB})

	out := SummaryPayload{
		Timestamp: time.Now().UnixMilli(),
		SymbolA:   cur.SymbolA,
		SymbolB:   cur.SymbolB,
		Interval:  string(cur.Interval),
		Prices:    prices,
	}
	if ok {
		out.HedgeRatio = nanPtr(snap.HedgeRatio)
		out.Spread = nanPtr(snap.Spread)
		out.ZScore = nanPtr(snap.ZScore)
		out.Correlation = nanPtr(snap.Correlation)
		out.SampleCount = snap.SampleCount
	}
	p.hub.Publish(broadcast.ChannelSummary, out)
}

// Snapshots returns up to n most recent analytics snapshots, oldest first.
// n <= 0 returns the full retained history.
func (p *Pipeline) Snapshots(n int) []analytics.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n <= 0 || n > len(p.history) {
		n = len(p.history)
	}
	out := make([]analytics.Snapshot, n)
	copy(out, p.history[len(p.history)-n:])
	return out
}

// Health reports the current operational state.
func (p *Pipeline) Health() Health {
	p.mu.Lock()
	dropped := p.dropped
	snapCount := len(p.history)
	p.mu.Unlock()

	return Health{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(p.started).Seconds()),
		FeedConnected: p.feedUp(),
		ActiveSymbols: p.store.ActiveSymbols(),
		Buffers:       p.store.Stats(),
		LateTicks:     p.res.LateTicks(),
		DroppedTicks:  dropped,
		Subscribers:   p.hub.TotalSubscribers(),
		Snapshots:     snapCount,
	}
}

// Accessors for the HTTP layer.

func (p *Pipeline) Hub() *broadcast.Hub          { return p.hub }
func (p *Pipeline) Alerts() *alert.Engine        { return p.alerts }
func (p *Pipeline) Settings() *settings.Store    { return p.settings }
func (p *Pipeline) Ticks() *ingest.TickStore     { return p.store }
func (p *Pipeline) Bars() *resample.Resampler    { return p.res }
func (p *Pipeline) Analytics() *analytics.Engine { return p.eng }
