package pipeline

import (
	"math"

	"pairflow/internal/analytics"
	"pairflow/internal/market"
)

// Broadcast payload shapes. Window-dependent statistics use pointers so an
// undefined value serializes as JSON null instead of failing to encode.

// PricesPayload carries the latest observed price per tracked symbol.
type PricesPayload struct {
	Prices    map[string]float64 `json:"prices"`
	Timestamp int64              `json:"timestamp"`
}

// BarPayload is one finalized or live bar.
type BarPayload struct {
	Symbol    string  `json:"symbol"`
	Interval  string  `json:"interval"`
	OpenTime  int64   `json:"openTime"`
	CloseTime int64   `json:"closeTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	IsFinal   bool    `json:"isFinal"`
}

// SpreadPayload carries the regression outputs for the latest observation.
type SpreadPayload struct {
	Timestamp   int64    `json:"timestamp"`
	SymbolA     string   `json:"symbolA"`
	SymbolB     string   `json:"symbolB"`
	HedgeRatio  *float64 `json:"hedgeRatio"`
	Intercept   *float64 `json:"intercept"`
	Spread      *float64 `json:"spread"`
	RollingMean *float64 `json:"rollingMean"`
	RollingStd  *float64 `json:"rollingStd"`
	ZScore      *float64 `json:"zScore"`
}

// CorrelationPayload carries the rolling Pearson correlation.
type CorrelationPayload struct {
	Timestamp   int64    `json:"timestamp"`
	SymbolA     string   `json:"symbolA"`
	SymbolB     string   `json:"symbolB"`
	Correlation *float64 `json:"correlation"`
}

// SummaryPayload is the periodic full-state digest.
type SummaryPayload struct {
	Timestamp   int64              `json:"timestamp"`
	SymbolA     string             `json:"symbolA"`
	SymbolB     string             `json:"symbolB"`
	Interval    string             `json:"interval"`
	Prices      map[string]float64 `json:"prices"`
	HedgeRatio  *float64           `json:"hedgeRatio"`
	Spread      *float64           `json:"spread"`
	ZScore      *float64           `json:"zScore"`
	Correlation *float64           `json:"correlation"`
	SampleCount int                `json:"sampleCount"`
}

func barPayload(b market.Bar) BarPayload {
	return BarPayload{
		Symbol:    b.Symbol,
		Interval:  string(b.Interval),
		OpenTime:  b.OpenTime.UnixMilli(),
		CloseTime: b.CloseTime.UnixMilli(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
		IsFinal:   b.IsFinal,
	}
}

func spreadPayload(s analytics.Snapshot) SpreadPayload {
	return SpreadPayload{
		Timestamp:   s.Timestamp.UnixMilli(),
		SymbolA:     s.SymbolA,
		SymbolB:     s.SymbolB,
		HedgeRatio:  nanPtr(s.HedgeRatio),
		Intercept:   nanPtr(s.Intercept),
		Spread:      nanPtr(s.Spread),
		RollingMean: nanPtr(s.RollingMean),
		RollingStd:  nanPtr(s.RollingStd),
		ZScore:      nanPtr(s.ZScore),
	}
}

func correlationPayload(s analytics.Snapshot) CorrelationPayload {
	return CorrelationPayload{
		Timestamp:   s.Timestamp.UnixMilli(),
		SymbolA:     s.SymbolA,
		SymbolB:     s.SymbolB,
		Correlation: nanPtr(s.Correlation),
	}
}

func nanPtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
