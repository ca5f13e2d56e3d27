// Package quality runs the data-quality gate over a decoded
// observation snapshot. Check failures are data-content results, not
// errors: every check always runs and the orchestrator decides
// whether the warehouse load may proceed.
package quality

import (
	"time"

	"github.com/andre-dussing/european-public-data-pipeline/jsonstat"
)

// MaxSampleKeys bounds the offending-row sample retained per check
const MaxSampleKeys = 10

// Check validates one aspect of a decoded snapshot
type Check interface {
	// Name returns the unique identifier for this check
	Name() string

	// Type returns the category of check (completeness, consistency, validity, structural)
	Type() string

	// Run executes the check and returns a result
	Run() CheckResult
}

// CheckResult holds the outcome of a single quality check
type CheckResult struct {
	CheckName  string    `json:"name"`
	CheckType  string    `json:"type"`
	Passed     bool      `json:"passed"`
	Details    string    `json:"details"`
	RowCount   int       `json:"row_count"`
	FailedRows int       `json:"failed_rows"`
	SampleKeys []string  `json:"sample_keys,omitempty"` // at most MaxSampleKeys offending keys
	CreatedAt  time.Time `json:"created_at"`
}

// Summary carries descriptive statistics for the checked snapshot
type Summary struct {
	Rows     int      `json:"rows"`
	Columns  []string `json:"columns"`
	MinTime  string   `json:"min_time,omitempty"`
	MaxTime  string   `json:"max_time,omitempty"`
	ValueMin *float64 `json:"value_min,omitempty"`
	ValueMax *float64 `json:"value_max,omitempty"`
}

// Report is the per-run quality result. Overall status is pass only
// if every check passed. Never mutated after creation.
type Report struct {
	Passed    bool          `json:"passed"`
	Checks    []CheckResult `json:"checks"`
	Summary   Summary       `json:"summary"`
	CheckedAt time.Time     `json:"checked_at_utc"`
}

// RunChecks executes the fixed ordered check list over one snapshot.
// All checks run regardless of earlier failures so the report is
// always complete.
func RunChecks(rows []jsonstat.Observation, columns []string) Report {
	checks := []Check{
		NewRequiredFieldsCheck(rows),
		NewDuplicateKeyCheck(rows),
		NewValueRangeCheck(rows),
		NewMonthlyContinuityCheck(rows),
		NewSchemaConsistencyCheck(columns),
	}

	report := Report{
		Passed:    true,
		Checks:    make([]CheckResult, 0, len(checks)),
		Summary:   summarize(rows, columns),
		CheckedAt: time.Now().UTC(),
	}
	for _, check := range checks {
		result := check.Run()
		report.Checks = append(report.Checks, result)
		report.Passed = report.Passed && result.Passed
	}
	return report
}

func summarize(rows []jsonstat.Observation, columns []string) Summary {
	s := Summary{Rows: len(rows), Columns: columns}
	for _, row := range rows {
		if !row.Time.IsZero() {
			t := row.Time.Format("2006-01-02")
			if s.MinTime == "" || t < s.MinTime {
				s.MinTime = t
			}
			if s.MaxTime == "" || t > s.MaxTime {
				s.MaxTime = t
			}
		}
		v := row.Value
		if s.ValueMin == nil || v < *s.ValueMin {
			min := v
			s.ValueMin = &min
		}
		if s.ValueMax == nil || v > *s.ValueMax {
			max := v
			s.ValueMax = &max
		}
	}
	return s
}
