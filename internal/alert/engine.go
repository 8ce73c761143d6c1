// Package alert evaluates threshold rules against analytics snapshots and
// emits cooldown-suppressed alert events into a bounded history.
package alert

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"pairflow/internal/analytics"
)

// DefaultCapacity is the alert history size when none is configured.
const DefaultCapacity = 100

// RuleType identifies the condition that fired an alert.
type RuleType string

const (
	RuleZScoreBreach   RuleType = "zScoreBreach"
	RuleZScoreWarning  RuleType = "zScoreWarning"
	RuleCorrelationLow RuleType = "correlationLow"
	RuleVolatilityHigh RuleType = "volatilityHigh"
)

// Severity grades an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Alert is a single emitted alert event. Immutable after creation; the
// history only ever evicts.
type Alert struct {
	ID             string    `json:"id"`
	Rule           RuleType  `json:"ruleType"`
	Severity       Severity  `json:"severity"`
	Message        string    `json:"message"`
	Timestamp      time.Time `json:"timestamp"`
	RelatedSymbols []string  `json:"relatedSymbols"`
	Value          float64   `json:"value"`
}

// Thresholds carries the rule parameters for one evaluation pass.
type Thresholds struct {
	ZScore          float64
	Correlation     float64
	Volatility      float64
	CooldownSeconds int
}

// Engine holds the cooldown ledger and the bounded alert history.
type Engine struct {
	mu        sync.Mutex
	capacity  int
	history   []Alert // oldest-first; Recent reverses
	lastFired map[string]time.Time
	now       func() time.Time
}

// NewEngine creates an alert engine with the given history capacity.
func NewEngine(capacity int) *Engine {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Engine{
		capacity:  capacity,
		lastFired: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Evaluate applies the rule set to one snapshot and returns the alerts that
// fired. Rules are checked in priority order and the z-score rules are
// mutually exclusive: a breach suppresses the warning. NaN inputs never
// match a rule.
func (e *Engine) Evaluate(snap analytics.Snapshot, th Thresholds) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	symbols := []string{snap.SymbolA, snap.SymbolB}
	pairKey := snap.SymbolA + "/" + snap.SymbolB
	var fired []Alert

	absZ := math.Abs(snap.ZScore)
	switch {
	case !math.IsNaN(snap.ZScore) && absZ > th.ZScore:
		fired = e.fireLocked(fired, Alert{
			Rule:     RuleZScoreBreach,
			Severity: SeverityDanger,
			Message: fmt.Sprintf("z-score %.2f is beyond threshold ±%.2f; mean reversion opportunity",
				snap.ZScore, th.ZScore),
			RelatedSymbols: symbols,
			Value:          snap.ZScore,
		}, pairKey, th)
	case !math.IsNaN(snap.ZScore) && absZ > 0.8*th.ZScore:
		fired = e.fireLocked(fired, Alert{
			Rule:     RuleZScoreWarning,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("z-score %.2f is approaching threshold ±%.2f",
				snap.ZScore, th.ZScore),
			RelatedSymbols: symbols,
			Value:          snap.ZScore,
		}, pairKey, th)
	}

	if !math.IsNaN(snap.Correlation) && snap.Correlation < th.Correlation {
		fired = e.fireLocked(fired, Alert{
			Rule:     RuleCorrelationLow,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("correlation %.3f fell below %.3f; spread may be unreliable",
				snap.Correlation, th.Correlation),
			RelatedSymbols: symbols,
			Value:          snap.Correlation,
		}, pairKey, th)
	}

	if !math.IsNaN(snap.RollingStd) && snap.RollingStd > th.Volatility {
		fired = e.fireLocked(fired, Alert{
			Rule:     RuleVolatilityHigh,
			Severity: SeverityWarning,
			Message: fmt.Sprintf("rolling volatility %.2f exceeds %.2f",
				snap.RollingStd, th.Volatility),
			RelatedSymbols: symbols,
			Value:          snap.RollingStd,
		}, pairKey, th)
	}

	return fired
}

// fireLocked emits the alert unless its (rule, pair) key is still cooling
// down. Caller holds e.mu.
func (e *Engine) fireLocked(fired []Alert, a Alert, pairKey string, th Thresholds) []Alert {
	key := string(a.Rule) + ":" + pairKey
	now := e.now()

	if last, ok := e.lastFired[key]; ok {
		if now.Sub(last) < time.Duration(th.CooldownSeconds)*time.Second {
			return fired
		}
	}

	a.ID = uuid.NewString()
	a.Timestamp = now
	e.lastFired[key] = now

	e.history = append(e.history, a)
	if len(e.history) > e.capacity {
		e.history = e.history[len(e.history)-e.capacity:]
	}
	return append(fired, a)
}

// Recent returns up to limit alerts, newest first. A non-positive limit
// returns the whole retained history.
func (e *Engine) Recent(limit int) []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := len(e.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Alert, n)
	for i := 0; i < n; i++ {
		out[i] = e.history[len(e.history)-1-i]
	}
	return out
}

// Clear drops the history and the cooldown ledger.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.history = nil
	e.lastFired = make(map[string]time.Time)
	e.mu.Unlock()
}
