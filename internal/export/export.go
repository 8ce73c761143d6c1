// Package export serializes analytics snapshot history as delimited text,
// structured text, or columnar binary. It is a pure read path with no
// pipeline side effects.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"pairflow/internal/analytics"
)

// Format selects the serialization of an export.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON, FormatParquet:
		return Format(s), nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatParquet:
		return "application/octet-stream"
	default:
		return "text/csv"
	}
}

// Extension returns the file extension for the format.
func (f Format) Extension() string {
	return string(f)
}

// Record is the flat export row. Window-dependent fields are pointers so
// a not-yet-defined value serializes as null/empty instead of NaN, which
// neither JSON nor CSV can carry.
type Record struct {
	Timestamp   int64    `json:"timestamp" parquet:"timestamp"`
	SymbolA     string   `json:"symbolA" parquet:"symbol_a"`
	SymbolB     string   `json:"symbolB" parquet:"symbol_b"`
	PriceA      float64  `json:"priceA" parquet:"price_a"`
	PriceB      float64  `json:"priceB" parquet:"price_b"`
	HedgeRatio  *float64 `json:"hedgeRatio" parquet:"hedge_ratio,optional"`
	Intercept   *float64 `json:"intercept" parquet:"intercept,optional"`
	Spread      *float64 `json:"spread" parquet:"spread,optional"`
	RollingMean *float64 `json:"rollingMean" parquet:"rolling_mean,optional"`
	RollingStd  *float64 `json:"rollingStd" parquet:"rolling_std,optional"`
	ZScore      *float64 `json:"zScore" parquet:"z_score,optional"`
	Correlation *float64 `json:"correlation" parquet:"correlation,optional"`
	SampleCount int64    `json:"sampleCount" parquet:"sample_count"`
}

// ToRecord flattens one snapshot into an export row.
func ToRecord(s analytics.Snapshot) Record {
	return Record{
		Timestamp:   s.Timestamp.UnixMilli(),
		SymbolA:     s.SymbolA,
		SymbolB:     s.SymbolB,
		PriceA:      s.PriceA,
		PriceB:      s.PriceB,
		HedgeRatio:  finitePtr(s.HedgeRatio),
		Intercept:   finitePtr(s.Intercept),
		Spread:      finitePtr(s.Spread),
		RollingMean: finitePtr(s.RollingMean),
		RollingStd:  finitePtr(s.RollingStd),
		ZScore:      finitePtr(s.ZScore),
		Correlation: finitePtr(s.Correlation),
		SampleCount: int64(s.SampleCount),
	}
}

// ToRecords flattens a snapshot slice in order.
func ToRecords(snaps []analytics.Snapshot) []Record {
	out := make([]Record, len(snaps))
	for i, s := range snaps {
		out[i] = ToRecord(s)
	}
	return out
}

func finitePtr(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Write serializes the records to w in the requested format.
func Write(w io.Writer, format Format, records []Record) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, records)
	case FormatParquet:
		return writeParquet(w, records)
	default:
		return writeCSV(w, records)
	}
}

var csvHeader = []string{
	"timestamp", "symbol_a", "symbol_b", "price_a", "price_b",
	"hedge_ratio", "intercept", "spread", "rolling_mean", "rolling_std",
	"z_score", "correlation", "sample_count",
}

func writeCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.Timestamp, 10),
			r.SymbolA,
			r.SymbolB,
			floatStr(r.PriceA),
			floatStr(r.PriceB),
			optStr(r.HedgeRatio),
			optStr(r.Intercept),
			optStr(r.Spread),
			optStr(r.RollingMean),
			optStr(r.RollingStd),
			optStr(r.ZScore),
			optStr(r.Correlation),
			strconv.FormatInt(r.SampleCount, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeJSON(w io.Writer, records []Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeParquet(w io.Writer, records []Record) error {
	pw := parquet.NewGenericWriter[Record](w)
	if len(records) > 0 {
		if _, err := pw.Write(records); err != nil {
			return err
		}
	}
	return pw.Close()
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func optStr(f *float64) string {
	if f == nil {
		return ""
	}
	return floatStr(*f)
}
