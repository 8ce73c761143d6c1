// Package settings holds the process-wide pipeline configuration as an
// atomically replaced record. Readers always observe a self-consistent
// snapshot; writers swap the whole record, never individual fields.
package settings

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"pairflow/internal/analytics"
	"pairflow/internal/market"
)

// Settings is one immutable configuration record. Treat every field as
// read-only once the record is stored; Update installs a fresh copy.
type Settings struct {
	SymbolA              string           `json:"symbolA" mapstructure:"symbol_a"`
	SymbolB              string           `json:"symbolB" mapstructure:"symbol_b"`
	DisplaySymbols       []string         `json:"displaySymbols" mapstructure:"display_symbols"`
	Interval             market.Interval  `json:"interval" mapstructure:"interval"`
	WindowSize           int              `json:"windowSize" mapstructure:"window_size"`
	CorrelationWindow    int              `json:"correlationWindow" mapstructure:"correlation_window"`
	RegressionMethod     analytics.Method `json:"regressionMethod" mapstructure:"regression_method"`
	ZScoreThreshold      float64          `json:"zScoreThreshold" mapstructure:"zscore_threshold"`
	CorrelationThreshold float64          `json:"correlationThreshold" mapstructure:"correlation_threshold"`
	VolatilityThreshold  float64          `json:"volatilityThreshold" mapstructure:"volatility_threshold"`
	CooldownSeconds      int              `json:"cooldownSeconds" mapstructure:"cooldown_seconds"`
}

// Default returns the stock configuration.
func Default() Settings {
	return Settings{
		SymbolA:              "BTCUSDT",
		SymbolB:              "ETHUSDT",
		DisplaySymbols:       []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		Interval:             market.Interval1s,
		WindowSize:           20,
		CorrelationWindow:    60,
		RegressionMethod:     analytics.MethodOLS,
		ZScoreThreshold:      2.0,
		CorrelationThreshold: 0.5,
		VolatilityThreshold:  500,
		CooldownSeconds:      60,
	}
}

// Validate rejects records that would break the pipeline. An invalid
// record never replaces the current one.
func (s Settings) Validate() error {
	if s.SymbolA == "" || s.SymbolB == "" {
		return fmt.Errorf("both pair symbols must be set")
	}
	if s.SymbolA == s.SymbolB {
		return fmt.Errorf("pair symbols must differ: %s", s.SymbolA)
	}
	if !s.Interval.IsValid() {
		return fmt.Errorf("invalid interval: %s", s.Interval)
	}
	if s.WindowSize < 2 {
		return fmt.Errorf("window size must be >= 2, got %d", s.WindowSize)
	}
	if s.CorrelationWindow < 2 {
		return fmt.Errorf("correlation window must be >= 2, got %d", s.CorrelationWindow)
	}
	if !s.RegressionMethod.IsValid() {
		return fmt.Errorf("invalid regression method: %s", s.RegressionMethod)
	}
	if s.ZScoreThreshold <= 0 {
		return fmt.Errorf("z-score threshold must be positive, got %v", s.ZScoreThreshold)
	}
	if s.CorrelationThreshold <= 0 || s.CorrelationThreshold > 1 {
		return fmt.Errorf("correlation threshold must be in (0, 1], got %v", s.CorrelationThreshold)
	}
	if s.VolatilityThreshold <= 0 {
		return fmt.Errorf("volatility threshold must be positive, got %v", s.VolatilityThreshold)
	}
	if s.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown must not be negative, got %d", s.CooldownSeconds)
	}
	return nil
}

// ResetsAnalytics reports whether switching from old to new invalidates
// the rolling analytics state.
func ResetsAnalytics(old, new Settings) bool {
	return old.SymbolA != new.SymbolA ||
		old.SymbolB != new.SymbolB ||
		old.Interval != new.Interval ||
		old.WindowSize != new.WindowSize ||
		old.CorrelationWindow != new.CorrelationWindow ||
		old.RegressionMethod != new.RegressionMethod
}

// Watcher is notified after a successful settings replacement.
type Watcher func(old, new Settings)

// Store is the atomically swapped settings holder.
type Store struct {
	cur      atomic.Pointer[Settings]
	mu       sync.Mutex // serializes writers and the watcher list
	watchers []Watcher
}

// NewStore creates a store seeded with the given record. Invalid seeds
// fall back to Default.
func NewStore(initial Settings) *Store {
	if err := initial.Validate(); err != nil {
		initial = Default()
	}
	s := &Store{}
	s.cur.Store(&initial)
	return s
}

// Current returns the live configuration record. The returned value must
// be treated as read-only.
func (s *Store) Current() Settings {
	return *s.cur.Load()
}

// Update validates and atomically installs a new record, then notifies
// watchers. Re-applying a record equal to the current one is a no-op and
// does not notify, so identical updates cannot reset rolling state.
func (s *Store) Update(next Settings) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("rejecting settings update: %w", err)
	}

	s.mu.Lock()
	old := *s.cur.Load()
	if equal(old, next) {
		s.mu.Unlock()
		return nil
	}
	s.cur.Store(&next)
	watchers := make([]Watcher, len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()

	for _, w := range watchers {
		w(old, next)
	}
	return nil
}

// Watch registers a callback invoked after every effective update.
func (s *Store) Watch(w Watcher) {
	s.mu.Lock()
	s.watchers = append(s.watchers, w)
	s.mu.Unlock()
}

func equal(a, b Settings) bool {
	if len(a.DisplaySymbols) != len(b.DisplaySymbols) {
		return false
	}
	for i := range a.DisplaySymbols {
		if a.DisplaySymbols[i] != b.DisplaySymbols[i] {
			return false
		}
	}
	a.DisplaySymbols, b.DisplaySymbols = nil, nil
	return reflect.DeepEqual(a, b)
}
