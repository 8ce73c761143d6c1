package resample

import (
	"testing"
	"time"

	"pairflow/internal/market"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func tickAt(symbol string, price float64, at time.Time) market.Tick {
	return market.Tick{Symbol: symbol, Price: price, Quantity: 1, Timestamp: at}
}

func collect(finals *[]market.Bar) func(market.Bar) {
	return func(b market.Bar) { *finals = append(*finals, b) }
}

func TestBarLifecycle(t *testing.T) {
	var finals []market.Bar
	r := New([]market.Interval{market.Interval1m}, 0, 0, collect(&finals), nil)

	r.Apply(tickAt("BTCUSDT", 100, base.Add(1*time.Second)))
	r.Apply(tickAt("BTCUSDT", 105, base.Add(20*time.Second)))
	r.Apply(tickAt("BTCUSDT", 95, base.Add(40*time.Second)))
	// Crossing into the next minute finalizes the first bar.
	r.Apply(tickAt("BTCUSDT", 101, base.Add(61*time.Second)))

	if len(finals) != 1 {
		t.Fatalf("expected 1 finalized bar, got %d", len(finals))
	}
	b := finals[0]
	if !b.IsFinal {
		t.Error("finalized bar must have IsFinal set")
	}
	if b.Open != 100 || b.High != 105 || b.Low != 95 || b.Close != 95 || b.Volume != 3 {
		t.Errorf("unexpected OHLCV: %+v", b)
	}
	if !b.OpenTime.Equal(base) || !b.CloseTime.Equal(base.Add(time.Minute)) {
		t.Errorf("unexpected bucket bounds: %v..%v", b.OpenTime, b.CloseTime)
	}
}

func TestOneFinalBarPerBucketStrictlyIncreasing(t *testing.T) {
	var finals []market.Bar
	r := New([]market.Interval{market.Interval1s}, 0, 0, collect(&finals), nil)

	for i := 0; i < 10; i++ {
		r.Apply(tickAt("ETHUSDT", 3400+float64(i), base.Add(time.Duration(i)*time.Second)))
		r.Apply(tickAt("ETHUSDT", 3401+float64(i), base.Add(time.Duration(i)*time.Second+500*time.Millisecond)))
	}

	if len(finals) != 9 {
		t.Fatalf("expected 9 finalized bars, got %d", len(finals))
	}
	for i := 1; i < len(finals); i++ {
		if !finals[i].CloseTime.After(finals[i-1].CloseTime) {
			t.Fatalf("closeTime not strictly increasing at %d: %v then %v",
				i, finals[i-1].CloseTime, finals[i].CloseTime)
		}
	}
}

func TestLateTickDropped(t *testing.T) {
	var finals []market.Bar
	r := New([]market.Interval{market.Interval1m}, 0, 0, collect(&finals), nil)

	r.Apply(tickAt("BTCUSDT", 100, base.Add(61*time.Second)))
	// Tick from the previous, already-passed bucket must not reopen it.
	r.Apply(tickAt("BTCUSDT", 999, base.Add(10*time.Second)))

	if got := r.LateTicks(); got != 1 {
		t.Errorf("expected 1 late tick, got %d", got)
	}
	if len(finals) != 0 {
		t.Errorf("late tick must not finalize anything, got %d bars", len(finals))
	}
	bars := r.Bars("BTCUSDT", market.Interval1m, 0)
	if len(bars) != 1 || bars[0].Close != 100 {
		t.Errorf("live bar corrupted by late tick: %+v", bars)
	}
}

func TestWallClockFinalizer(t *testing.T) {
	var finals []market.Bar
	r := New([]market.Interval{market.Interval1m}, 0, 0, collect(&finals), nil)

	r.Apply(tickAt("SOLUSDT", 150, base.Add(30*time.Second)))

	// Nothing elapses before the bucket boundary.
	r.FinalizeElapsed(base.Add(59 * time.Second))
	if len(finals) != 0 {
		t.Fatalf("bar finalized too early")
	}

	r.FinalizeElapsed(base.Add(60 * time.Second))
	if len(finals) != 1 {
		t.Fatalf("expected finalizer to close elapsed bar, got %d", len(finals))
	}
	if !finals[0].IsFinal || finals[0].Close != 150 {
		t.Errorf("unexpected finalized bar: %+v", finals[0])
	}

	// A second pass must not emit the bar again.
	r.FinalizeElapsed(base.Add(2 * time.Minute))
	if len(finals) != 1 {
		t.Errorf("bar finalized more than once")
	}
}

func TestFinalizedBucketNotReopened(t *testing.T) {
	var finals []market.Bar
	r := New([]market.Interval{market.Interval1s}, 0, 0, collect(&finals), nil)

	// A tick stamped inside a bucket can arrive after the wall-clock
	// finalizer already closed that bucket.
	r.Apply(tickAt("BTCUSDT", 100, base.Add(500*time.Millisecond)))
	r.FinalizeElapsed(base.Add(time.Second))
	r.Apply(tickAt("BTCUSDT", 999, base.Add(900*time.Millisecond)))
	r.FinalizeElapsed(base.Add(2 * time.Second))

	if len(finals) != 1 {
		t.Fatalf("bucket finalized %d times: %+v", len(finals), finals)
	}
	if finals[0].Close != 100 {
		t.Errorf("late tick leaked into finalized bar: %+v", finals[0])
	}
	if got := r.LateTicks(); got != 1 {
		t.Errorf("expected the reopening tick to count as late, got %d", got)
	}
	bars := r.Bars("BTCUSDT", market.Interval1s, 0)
	if len(bars) != 1 {
		t.Errorf("bucket duplicated in history: %+v", bars)
	}
}

func TestFinalizeGraceHoldsBarOpen(t *testing.T) {
	var finals []market.Bar
	r := New([]market.Interval{market.Interval1s}, 0, time.Second, collect(&finals), nil)

	r.Apply(tickAt("BTCUSDT", 100, base.Add(500*time.Millisecond)))

	// At the boundary the grace window is still open.
	r.FinalizeElapsed(base.Add(time.Second))
	if len(finals) != 0 {
		t.Fatalf("bar finalized before the grace elapsed")
	}

	// An in-flight tick stamped inside the bucket still lands in it.
	r.Apply(tickAt("BTCUSDT", 101, base.Add(900*time.Millisecond)))

	r.FinalizeElapsed(base.Add(2 * time.Second))
	if len(finals) != 1 {
		t.Fatalf("expected 1 finalized bar after grace, got %d", len(finals))
	}
	if finals[0].Close != 101 || finals[0].Volume != 2 {
		t.Errorf("in-flight tick missing from finalized bar: %+v", finals[0])
	}
	if got := r.LateTicks(); got != 0 {
		t.Errorf("tick inside the grace window must not count late, got %d", got)
	}
}

func TestBarsRetentionBounded(t *testing.T) {
	r := New([]market.Interval{market.Interval1s}, 5, 0, nil, nil)

	for i := 0; i < 20; i++ {
		r.Apply(tickAt("BTCUSDT", float64(i), base.Add(time.Duration(i)*time.Second)))
	}

	bars := r.Bars("BTCUSDT", market.Interval1s, 0)
	// 5 retained finalized bars plus the live one.
	if len(bars) != 6 {
		t.Fatalf("expected 6 bars, got %d", len(bars))
	}
	if bars[len(bars)-1].IsFinal {
		t.Error("last bar should be the live bar")
	}
	if bars[0].Open != 14 {
		t.Errorf("oldest retained bar should start at price 14, got %.0f", bars[0].Open)
	}
}

func TestPairHistoryAlignment(t *testing.T) {
	r := New([]market.Interval{market.Interval1s}, 0, 0, nil, nil)

	for i := 0; i < 5; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		r.Apply(tickAt("BTCUSDT", 100+float64(i), at))
		if i != 2 { // gap in symbol B at bucket 2
			r.Apply(tickAt("ETHUSDT", 50+float64(i), at))
		}
	}
	r.FinalizeElapsed(base.Add(10 * time.Second))

	times, closesA, closesB := r.PairHistory("BTCUSDT", "ETHUSDT", market.Interval1s, 0)
	if len(times) != 4 {
		t.Fatalf("expected 4 aligned pairs, got %d", len(times))
	}
	for i := range times {
		if closesA[i]-100 != closesB[i]-50 {
			t.Errorf("pair %d misaligned: A=%.0f B=%.0f at %v", i, closesA[i], closesB[i], times[i])
		}
	}
}
