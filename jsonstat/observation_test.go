package jsonstat

import (
	"testing"
	"time"
)

func TestParseTimeCode(t *testing.T) {
	tests := []struct {
		code string
		want time.Time
		ok   bool
	}{
		{"2024M01", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024M12", time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-15", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024M13", time.Time{}, false},
		{"2024M00", time.Time{}, false},
		{"2024Q1", time.Time{}, false},
		{"garbage", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, ok := ParseTimeCode(tt.code)
			if ok != tt.ok {
				t.Fatalf("ParseTimeCode(%q) ok = %v, want %v", tt.code, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTimeCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestObservationKey(t *testing.T) {
	obs := Observation{
		Time:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Geo:    "LU",
		Coicop: "CP00",
		Unit:   "I15",
	}
	if got, want := obs.Key(), "2024-02-01|LU|CP00|I15"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}

	obs.Time = time.Time{}
	if got, want := obs.Key(), "null|LU|CP00|I15"; got != want {
		t.Errorf("Key() with zero time = %q, want %q", got, want)
	}
}
