package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"pairflow/internal/analytics"
)

func sampleSnapshots() []analytics.Snapshot {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []analytics.Snapshot{
		{
			Timestamp: at, SymbolA: "BTCUSDT", SymbolB: "ETHUSDT",
			PriceA: 100, PriceB: 50,
			HedgeRatio: math.NaN(), Intercept: math.NaN(), Spread: math.NaN(),
			RollingMean: math.NaN(), RollingStd: math.NaN(), ZScore: math.NaN(),
			Correlation: math.NaN(), SampleCount: 1,
		},
		{
			Timestamp: at.Add(time.Second), SymbolA: "BTCUSDT", SymbolB: "ETHUSDT",
			PriceA: 101, PriceB: 50.5,
			HedgeRatio: 2, Intercept: 0.5, Spread: 0.25,
			RollingMean: 0.2, RollingStd: 0.1, ZScore: 0.5,
			Correlation: 0.9, SampleCount: 30,
		},
	}
}

func TestToRecordNaNBecomesNil(t *testing.T) {
	recs := ToRecords(sampleSnapshots())
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].ZScore != nil || recs[0].HedgeRatio != nil || recs[0].Correlation != nil {
		t.Fatalf("NaN fields must map to nil pointers: %+v", recs[0])
	}
	if recs[1].ZScore == nil || *recs[1].ZScore != 0.5 {
		t.Fatalf("finite z-score must survive: %+v", recs[1].ZScore)
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"csv", "json", "parquet"} {
		if _, err := ParseFormat(s); err != nil {
			t.Fatalf("ParseFormat(%q): %v", s, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}

func TestWriteJSONOmitsNaN(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, ToRecords(sampleSnapshots())); err != nil {
		t.Fatalf("write json: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[0]["zScore"] != nil {
		t.Fatalf("expected null zScore, got %v", out[0]["zScore"])
	}
	if got := out[1]["hedgeRatio"].(float64); got != 2 {
		t.Fatalf("expected hedgeRatio 2, got %v", got)
	}
}

func TestWriteCSVEmptyForUndefined(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, ToRecords(sampleSnapshots())); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "timestamp" || rows[0][10] != "z_score" {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	if rows[1][10] != "" {
		t.Fatalf("undefined z-score must serialize empty, got %q", rows[1][10])
	}
	if rows[2][10] != "0.5" {
		t.Fatalf("expected z-score 0.5, got %q", rows[2][10])
	}
}

func TestWriteParquetRoundTrip(t *testing.T) {
	recs := ToRecords(sampleSnapshots())
	var buf bytes.Buffer
	if err := Write(&buf, FormatParquet, recs); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	got, err := parquet.Read[Record](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].ZScore != nil {
		t.Fatalf("expected nil z-score in first row")
	}
	if got[1].SampleCount != 30 || got[1].SymbolA != "BTCUSDT" {
		t.Fatalf("row mismatch: %+v", got[1])
	}
}

func TestWriteParquetEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatParquet, nil); err != nil {
		t.Fatalf("write empty parquet: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected a valid empty parquet file, got no bytes")
	}
}
