package analytics

import (
	"math"
	"testing"
	"time"

	"pairflow/internal/market"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func finalBar(symbol string, close float64, seq int) market.Bar {
	open := t0.Add(time.Duration(seq) * time.Second)
	return market.Bar{
		Symbol:    symbol,
		Interval:  market.Interval1s,
		OpenTime:  open,
		CloseTime: open.Add(time.Second),
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    1,
		IsFinal:   true,
	}
}

func pairEngine(window, corrWindow int) *Engine {
	return NewEngine(Config{
		SymbolA:           "BTCUSDT",
		SymbolB:           "ETHUSDT",
		Window:            window,
		CorrelationWindow: corrWindow,
		Method:            MethodOLS,
	})
}

func TestZScoreNaNUntilWindowFull(t *testing.T) {
	e := pairEngine(20, 20)

	var last Snapshot
	for i := 0; i < 25; i++ {
		a := 100 + float64(i) + 0.3*float64(i%3)
		b := 50 + 0.5*float64(i)
		snap := e.Observe(t0.Add(time.Duration(i)*time.Second), a, b)

		if snap.SampleCount != i+1 {
			t.Fatalf("sampleCount = %d at observation %d", snap.SampleCount, i)
		}
		if i+1 < 20 {
			if !math.IsNaN(snap.ZScore) {
				t.Fatalf("zScore must be NaN before window fills, got %v at %d", snap.ZScore, i)
			}
			if !math.IsNaN(snap.Correlation) {
				t.Fatalf("correlation must be NaN before window fills, got %v at %d", snap.Correlation, i)
			}
		}
		last = snap
	}

	if math.IsNaN(last.ZScore) || math.IsInf(last.ZScore, 0) {
		t.Errorf("zScore must be finite after window fills, got %v", last.ZScore)
	}
	if math.IsNaN(last.Correlation) {
		t.Errorf("correlation must be defined after window fills, got %v", last.Correlation)
	}
	if last.Correlation < -1 || last.Correlation > 1 {
		t.Errorf("correlation out of bounds: %v", last.Correlation)
	}
}

func TestIdenticalPricesZeroStdNaNZScore(t *testing.T) {
	e := pairEngine(10, 10)

	var snap Snapshot
	for i := 0; i < 10; i++ {
		snap = e.Observe(t0.Add(time.Duration(i)*time.Second), 100, 40)
	}

	if snap.RollingStd != 0 {
		t.Errorf("expected zero rollingStd for identical prices, got %v", snap.RollingStd)
	}
	if !math.IsNaN(snap.ZScore) {
		t.Errorf("expected NaN zScore when std is zero, got %v", snap.ZScore)
	}
	if math.IsInf(snap.ZScore, 0) {
		t.Error("division by zero observed")
	}
}

func TestHedgeRatioTracksLinearRelation(t *testing.T) {
	e := pairEngine(10, 10)

	// A = 20 + 2*B exactly, with B moving.
	var snap Snapshot
	for i := 0; i < 10; i++ {
		b := 50 + float64(i)
		snap = e.Observe(t0.Add(time.Duration(i)*time.Second), 20+2*b, b)
	}

	if !almostEqual(snap.HedgeRatio, 2, 1e-9) {
		t.Errorf("expected hedge ratio 2, got %v", snap.HedgeRatio)
	}
	if !almostEqual(snap.Intercept, 20, 1e-6) {
		t.Errorf("expected intercept 20, got %v", snap.Intercept)
	}
	// Spread excludes the intercept, so it sits at the intercept value.
	if !almostEqual(snap.Spread, 20, 1e-6) {
		t.Errorf("expected spread 20, got %v", snap.Spread)
	}
	if !almostEqual(snap.Correlation, 1, 1e-9) {
		t.Errorf("expected correlation 1, got %v", snap.Correlation)
	}
}

func TestObserveBarAlignsBuckets(t *testing.T) {
	e := pairEngine(5, 5)

	if _, ok := e.ObserveBar(finalBar("BTCUSDT", 100, 0)); ok {
		t.Fatal("half a pair must not emit a snapshot")
	}
	if _, ok := e.ObserveBar(finalBar("SOLUSDT", 1, 0)); ok {
		t.Fatal("unrelated symbol must be ignored")
	}
	snap, ok := e.ObserveBar(finalBar("ETHUSDT", 50, 0))
	if !ok {
		t.Fatal("completing the pair must emit a snapshot")
	}
	if snap.PriceA != 100 || snap.PriceB != 50 || snap.SampleCount != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	// A stale bucket must not be observed twice.
	e.ObserveBar(finalBar("BTCUSDT", 101, 1))
	if _, ok := e.ObserveBar(finalBar("ETHUSDT", 51, 1)); !ok {
		t.Fatal("second bucket should produce a snapshot")
	}
	e.ObserveBar(finalBar("BTCUSDT", 999, 0))
	if _, ok := e.ObserveBar(finalBar("ETHUSDT", 999, 0)); ok {
		t.Error("re-completed old bucket must not emit")
	}
}

func TestResetDiscardsAllState(t *testing.T) {
	e := pairEngine(5, 5)
	for i := 0; i < 8; i++ {
		e.Observe(t0.Add(time.Duration(i)*time.Second), 100+float64(i), 50+float64(i))
	}
	if snap, ok := e.Last(); !ok || snap.SampleCount != 8 {
		t.Fatalf("expected 8 samples before reset")
	}

	e.Reset(Config{SymbolA: "BTCUSDT", SymbolB: "ETHUSDT", Window: 5, CorrelationWindow: 5})
	if _, ok := e.Last(); ok {
		t.Error("reset must clear the last snapshot")
	}

	snap := e.Observe(t0.Add(time.Hour), 100, 50)
	if snap.SampleCount != 1 {
		t.Errorf("sampleCount must restart from zero, got %d", snap.SampleCount)
	}
	if !math.IsNaN(snap.ZScore) {
		t.Errorf("zScore must be NaN right after reset, got %v", snap.ZScore)
	}
}

func TestCorrelationUsesOwnWindow(t *testing.T) {
	e := pairEngine(3, 6)

	var snap Snapshot
	for i := 0; i < 5; i++ {
		snap = e.Observe(t0.Add(time.Duration(i)*time.Second), 100+float64(i), 50+float64(i))
	}
	if !math.IsNaN(snap.Correlation) {
		t.Errorf("correlation needs 6 samples, got value at 5: %v", snap.Correlation)
	}
	if math.IsNaN(snap.ZScore) && snap.RollingStd > 0 {
		t.Errorf("zScore should be defined once its own window (3) filled")
	}

	snap = e.Observe(t0.Add(5*time.Second), 105, 55)
	if math.IsNaN(snap.Correlation) {
		t.Error("correlation must be defined at 6 samples")
	}
}
