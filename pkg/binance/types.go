package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"pairflow/internal/market"
)

// StreamEnvelope is the combined-stream wrapper. Every message carries the
// originating stream name and the raw event payload.
type StreamEnvelope struct {
	Stream string          `json:"stream"` // e.g. "btcusdt@trade"
	Data   json.RawMessage `json:"data"`   // Delay decoding until the event type is known
}

// TradeEvent is a single trade from a <symbol>@trade stream.
type TradeEvent struct {
	EventType string `json:"e"` // "trade"
	EventTime int64  `json:"E"` // Event time (milliseconds since epoch)
	Symbol    string `json:"s"` // e.g. "BTCUSDT"
	Price     string `json:"p"` // Decimal string
	Quantity  string `json:"q"` // Decimal string
	TradeTime int64  `json:"T"` // Trade time (milliseconds since epoch)
}

// Tick converts the event into the internal representation. Price and
// quantity arrive as decimal strings and are parsed here.
func (e TradeEvent) Tick() (market.Tick, error) {
	price, err := strconv.ParseFloat(e.Price, 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("parse price %q: %w", e.Price, err)
	}
	qty, err := strconv.ParseFloat(e.Quantity, 64)
	if err != nil {
		return market.Tick{}, fmt.Errorf("parse quantity %q: %w", e.Quantity, err)
	}
	return market.Tick{
		Symbol:    strings.ToUpper(e.Symbol),
		Price:     price,
		Quantity:  qty,
		Timestamp: time.UnixMilli(e.TradeTime).UTC(),
	}, nil
}

// StreamPath builds the combined-stream query path for the given symbols,
// e.g. "btcusdt@trade/ethusdt@trade".
func StreamPath(symbols []string) string {
	parts := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		parts = append(parts, s+"@trade")
	}
	return strings.Join(parts, "/")
}
