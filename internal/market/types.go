// Package market defines the core data types flowing through the pipeline.
package market

import "time"

// Tick is a single timestamped price/quantity observation for one symbol.
// Ticks are immutable once created; the feed is the only producer.
type Tick struct {
	Symbol    string    `json:"symbol"`    // Trading symbol (e.g., "BTCUSDT")
	Price     float64   `json:"price"`     // Trade price
	Quantity  float64   `json:"quantity"`  // Trade quantity
	Timestamp time.Time `json:"timestamp"` // Exchange trade time
}

// Valid reports whether the tick carries usable field values.
// Malformed ticks are dropped at the pipeline boundary, never stored.
func (t Tick) Valid() bool {
	return t.Symbol != "" && t.Price > 0 && t.Quantity >= 0 && !t.Timestamp.IsZero()
}

// Bar is an OHLCV aggregation of the ticks inside one time bucket.
// The resampler exclusively owns the live (IsFinal=false) bar; everything
// downstream receives value copies.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Interval  Interval  `json:"interval"`
	OpenTime  time.Time `json:"openTime"`  // Inclusive bucket start
	CloseTime time.Time `json:"closeTime"` // Exclusive bucket end
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	IsFinal   bool      `json:"isFinal"` // Set exactly once when CloseTime is crossed
}

// Apply folds a tick from the bar's own bucket into the bar.
func (b *Bar) Apply(t Tick) {
	if t.Price > b.High {
		b.High = t.Price
	}
	if t.Price < b.Low {
		b.Low = t.Price
	}
	b.Close = t.Price
	b.Volume += t.Quantity
}

// NewBar opens a live bar for the bucket containing the tick.
func NewBar(t Tick, iv Interval) Bar {
	open := iv.Truncate(t.Timestamp)
	return Bar{
		Symbol:    t.Symbol,
		Interval:  iv,
		OpenTime:  open,
		CloseTime: open.Add(iv.Duration()),
		Open:      t.Price,
		High:      t.Price,
		Low:       t.Price,
		Close:     t.Price,
		Volume:    t.Quantity,
		IsFinal:   false,
	}
}
