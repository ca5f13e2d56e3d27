package jsonstat

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Snapshot column contract shared by the decoder, the quality gate,
// and the warehouse loader.
var Columns = []string{"time", "geo", "coicop", "unit", "value", "processed_at_utc", "raw_blob"}

// Observation is one decoded fact row. Created by the decoder,
// immutable thereafter.
type Observation struct {
	Time        time.Time `json:"time"`
	Geo         string    `json:"geo"`
	Coicop      string    `json:"coicop"`
	Unit        string    `json:"unit"`
	Value       float64   `json:"value"`
	ProcessedAt time.Time `json:"processed_at_utc"`
	RawBlob     string    `json:"raw_blob"`
}

// Key returns the primary-key tuple (time, geo, coicop, unit)
func (o Observation) Key() string {
	t := "null"
	if !o.Time.IsZero() {
		t = o.Time.Format("2006-01-02")
	}
	return fmt.Sprintf("%s|%s|%s|%s", t, o.Geo, o.Coicop, o.Unit)
}

var eurostatMonthPattern = regexp.MustCompile(`^(\d{4})M(\d{2})$`)

// ParseTimeCode converts an Eurostat period label to a month-start
// timestamp. Accepts "2024M01", "2024-01", "2024-01-15" (normalized
// to month start) and "2024". Returns ok=false for anything else.
func ParseTimeCode(code string) (time.Time, bool) {
	if m := eurostatMonthPattern.FindStringSubmatch(code); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month < 1 || month > 12 {
			return time.Time{}, false
		}
		return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), true
	}

	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, code); err == nil {
			return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}
