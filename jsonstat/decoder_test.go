package jsonstat

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func testPayload(t *testing.T, values string) *Payload {
	t.Helper()
	raw := fmt.Sprintf(`{
		"label": "HICP - monthly data (index)",
		"id": ["geo", "coicop", "time"],
		"size": [2, 3, 2],
		"dimension": {
			"geo":    {"category": {"index": {"LU": 0, "DE": 1}}},
			"coicop": {"category": {"index": {"CP00": 0, "CP01": 1, "CP02": 2}}},
			"time":   {"category": {"index": ["2024M01", "2024M02"]}}
		},
		"value": %s
	}`, values)

	p, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return p
}

func TestDecodeMixedRadixOrder(t *testing.T) {
	// Dense [2,3,2] payload. Index 7 = (1, 0, 1): DE, CP00, 2024M02.
	values := `[100.0, 101.0, 102.0, 103.0, 104.0, 105.0, 106.0, 107.0, 108.0, 109.0, 110.0, 111.0]`
	p := testPayload(t, values)

	processedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows, err := NewDecoder(p, "raw/blob.json", processedAt).Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(rows) != 12 {
		t.Fatalf("expected 12 rows, got %d", len(rows))
	}

	row := rows[7]
	if row.Geo != "DE" || row.Coicop != "CP00" {
		t.Errorf("index 7 decoded to (%s, %s), want (DE, CP00)", row.Geo, row.Coicop)
	}
	wantTime := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if !row.Time.Equal(wantTime) {
		t.Errorf("index 7 time = %v, want %v", row.Time, wantTime)
	}
	if row.Value != 107.0 {
		t.Errorf("index 7 value = %v, want 107.0", row.Value)
	}
	if row.RawBlob != "raw/blob.json" {
		t.Errorf("raw blob = %q, want raw/blob.json", row.RawBlob)
	}
	if !row.ProcessedAt.Equal(processedAt) {
		t.Errorf("processed at = %v, want %v", row.ProcessedAt, processedAt)
	}
}

func TestDecodeSparseSkipsMissing(t *testing.T) {
	// Sparse form: only three of twelve cells are present.
	values := `{"0": 100.0, "7": 107.0, "11": 111.0}`
	p := testPayload(t, values)

	rows, err := NewDecoder(p, "raw/blob.json", time.Now()).Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[1].Value != 107.0 || rows[1].Geo != "DE" {
		t.Errorf("second present row = (%s, %v), want (DE, 107)", rows[1].Geo, rows[1].Value)
	}
}

func TestDecodeDenseNullsSkipped(t *testing.T) {
	values := `[100.0, null, 102.0, null, null, 105.0, null, null, null, null, null, null]`
	p := testPayload(t, values)

	rows, err := NewDecoder(p, "raw/blob.json", time.Now()).Decode()
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
}

func TestDecodeStructuralDefects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{
			name: "value array shorter than size product",
			raw: `{
				"id": ["geo", "time"],
				"size": [2, 2],
				"dimension": {
					"geo":  {"category": {"index": {"LU": 0, "DE": 1}}},
					"time": {"category": {"index": ["2024M01", "2024M02"]}}
				},
				"value": [100.0, 101.0, 102.0]
			}`,
		},
		{
			name: "sparse index out of range",
			raw: `{
				"id": ["geo", "time"],
				"size": [2, 2],
				"dimension": {
					"geo":  {"category": {"index": {"LU": 0, "DE": 1}}},
					"time": {"category": {"index": ["2024M01", "2024M02"]}}
				},
				"value": {"4": 100.0}
			}`,
		},
		{
			name: "label count disagrees with size",
			raw: `{
				"id": ["geo", "time"],
				"size": [3, 2],
				"dimension": {
					"geo":  {"category": {"index": {"LU": 0, "DE": 1}}},
					"time": {"category": {"index": ["2024M01", "2024M02"]}}
				},
				"value": [100.0, 101.0, 102.0, 103.0, 104.0, 105.0]
			}`,
		},
		{
			name: "duplicate coordinate labels",
			raw: `{
				"id": ["geo", "time"],
				"size": [2, 2],
				"dimension": {
					"geo":  {"category": {"index": {"LU": 0, "DE": 1}}},
					"time": {"category": {"index": ["2024M01", "2024M01"]}}
				},
				"value": [100.0, 101.0, 102.0, 103.0]
			}`,
		},
		{
			name: "position collision",
			raw: `{
				"id": ["geo", "time"],
				"size": [2, 2],
				"dimension": {
					"geo":  {"category": {"index": {"LU": 0, "DE": 0}}},
					"time": {"category": {"index": ["2024M01", "2024M02"]}}
				},
				"value": [100.0, 101.0, 102.0, 103.0]
			}`,
		},
		{
			name: "negative sparse index",
			raw: `{
				"id": ["geo", "time"],
				"size": [2, 2],
				"dimension": {
					"geo":  {"category": {"index": {"LU": 0, "DE": 1}}},
					"time": {"category": {"index": ["2024M01", "2024M02"]}}
				},
				"value": {"-1": 100.0, "0": 101.0}
			}`,
		},
		{
			name: "dimension missing from map",
			raw: `{
				"id": ["geo", "time"],
				"size": [2, 2],
				"dimension": {
					"geo": {"category": {"index": {"LU": 0, "DE": 1}}}
				},
				"value": [100.0, 101.0, 102.0, 103.0]
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.raw))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}

			rows, err := NewDecoder(p, "raw/blob.json", time.Now()).Decode()
			if err == nil {
				t.Fatal("expected decode error, got none")
			}
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected DecodeError, got %T: %v", err, err)
			}
			if rows != nil {
				t.Errorf("expected no rows on structural defect, got %d", len(rows))
			}
		})
	}
}

func TestEachStopsOnCallbackError(t *testing.T) {
	values := `[100.0, 101.0, 102.0, 103.0, 104.0, 105.0, 106.0, 107.0, 108.0, 109.0, 110.0, 111.0]`
	p := testPayload(t, values)

	sentinel := errors.New("stop")
	seen := 0
	err := NewDecoder(p, "raw/blob.json", time.Now()).Each(func(Observation) error {
		seen++
		if seen == 5 {
			return sentinel
		}
		return nil
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if seen != 5 {
		t.Errorf("callback ran %d times, want 5", seen)
	}
}

func TestParseRejectsMissingDimensionMetadata(t *testing.T) {
	if _, err := Parse([]byte(`{"value": [1.0]}`)); err == nil {
		t.Fatal("expected error for payload without dimensions")
	}
}

func TestParseRejectsMissingValueArray(t *testing.T) {
	// Without the value key a zero snapshot would sail through the
	// gate; absence is a structural error, not an empty dataset.
	raw := `{
		"id": ["geo", "time"],
		"size": [1, 2],
		"dimension": {
			"geo":  {"category": {"index": {"LU": 0}}},
			"time": {"category": {"index": ["2024M01", "2024M02"]}}
		}
	}`
	if _, err := Parse([]byte(raw)); err == nil {
		t.Fatal("expected error for payload without a value array")
	}

	// An explicitly empty value array is still a present one.
	if _, err := Parse([]byte(`{
		"id": ["geo"],
		"size": [1],
		"dimension": {"geo": {"category": {"index": {"LU": 0}}}},
		"value": {}
	}`)); err != nil {
		t.Fatalf("Parse rejected empty sparse value array: %v", err)
	}
}
