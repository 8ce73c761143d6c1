package alert

import (
	"math"
	"testing"
	"time"

	"pairflow/internal/analytics"
)

func snapshot(z, corr, std float64) analytics.Snapshot {
	return analytics.Snapshot{
		SymbolA:     "BTCUSDT",
		SymbolB:     "ETHUSDT",
		ZScore:      z,
		Correlation: corr,
		RollingStd:  std,
		SampleCount: 20,
	}
}

func thresholds() Thresholds {
	return Thresholds{ZScore: 2.0, Correlation: 0.5, Volatility: 500, CooldownSeconds: 60}
}

// withClock pins the engine to a fake clock and returns the advance func.
func withClock(e *Engine) func(d time.Duration) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return func(d time.Duration) { now = now.Add(d) }
}

func TestZScoreBreachSuppressesWarning(t *testing.T) {
	e := NewEngine(0)
	withClock(e)

	fired := e.Evaluate(snapshot(2.5, 0.9, 10), thresholds())
	if len(fired) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(fired))
	}
	if fired[0].Rule != RuleZScoreBreach || fired[0].Severity != SeverityDanger {
		t.Errorf("unexpected alert: %+v", fired[0])
	}
}

func TestZScoreWarningAt80Percent(t *testing.T) {
	e := NewEngine(0)
	withClock(e)

	fired := e.Evaluate(snapshot(-1.7, 0.9, 10), thresholds())
	if len(fired) != 1 || fired[0].Rule != RuleZScoreWarning {
		t.Fatalf("expected zScoreWarning, got %+v", fired)
	}
	if fired[0].Severity != SeverityWarning {
		t.Errorf("warning severity expected, got %s", fired[0].Severity)
	}
}

func TestNaNNeverMatches(t *testing.T) {
	e := NewEngine(0)
	withClock(e)

	nan := math.NaN()
	if fired := e.Evaluate(snapshot(nan, nan, nan), thresholds()); len(fired) != 0 {
		t.Errorf("NaN inputs fired alerts: %+v", fired)
	}
}

func TestMultipleCategoriesFireTogether(t *testing.T) {
	e := NewEngine(0)
	withClock(e)

	fired := e.Evaluate(snapshot(3.0, 0.2, 900), thresholds())
	if len(fired) != 3 {
		t.Fatalf("expected 3 alerts (breach, correlation, volatility), got %d", len(fired))
	}
	rules := map[RuleType]bool{}
	for _, a := range fired {
		rules[a.Rule] = true
	}
	if !rules[RuleZScoreBreach] || !rules[RuleCorrelationLow] || !rules[RuleVolatilityHigh] {
		t.Errorf("unexpected rule set: %v", rules)
	}
}

func TestCooldownSuppression(t *testing.T) {
	e := NewEngine(0)
	advance := withClock(e)
	th := thresholds()

	// Condition held continuously for 150s, evaluated every second:
	// exactly 3 emissions at t=0, 60, 120.
	total := 0
	for s := 0; s <= 150; s++ {
		total += len(e.Evaluate(snapshot(2.5, 0.9, 10), th))
		advance(time.Second)
	}
	if total != 3 {
		t.Errorf("expected 3 alerts over 150s with 60s cooldown, got %d", total)
	}
}

func TestCooldownIsPerRuleKey(t *testing.T) {
	e := NewEngine(0)
	withClock(e)
	th := thresholds()

	if fired := e.Evaluate(snapshot(2.5, 0.9, 10), th); len(fired) != 1 {
		t.Fatal("breach should fire")
	}
	// Same pair, different rule: not suppressed by the breach cooldown.
	if fired := e.Evaluate(snapshot(0.1, 0.2, 10), th); len(fired) != 1 {
		t.Error("correlationLow should not share the breach cooldown")
	}
}

func TestHistoryBoundedNewestFirst(t *testing.T) {
	e := NewEngine(5)
	advance := withClock(e)
	th := Thresholds{ZScore: 2.0, Correlation: 0.5, Volatility: 500, CooldownSeconds: 0}

	for i := 0; i < 8; i++ {
		e.Evaluate(snapshot(2.5+float64(i), 0.9, 10), th)
		advance(time.Second)
	}

	got := e.Recent(0)
	if len(got) != 5 {
		t.Fatalf("expected history capped at 5, got %d", len(got))
	}
	if got[0].Value != 9.5 {
		t.Errorf("newest alert should come first, got value %v", got[0].Value)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Error("history not newest-first")
		}
	}

	if limited := e.Recent(2); len(limited) != 2 {
		t.Errorf("expected limit to apply, got %d", len(limited))
	}
}
