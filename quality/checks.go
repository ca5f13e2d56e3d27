package quality

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/andre-dussing/european-public-data-pipeline/jsonstat"
)

// RequiredFieldsCheck verifies that every required field (time, geo,
// coicop, unit, value) is populated on every row
type RequiredFieldsCheck struct {
	rows []jsonstat.Observation
}

func NewRequiredFieldsCheck(rows []jsonstat.Observation) *RequiredFieldsCheck {
	return &RequiredFieldsCheck{rows: rows}
}

func (c *RequiredFieldsCheck) Name() string {
	return "non_null_required_columns"
}

func (c *RequiredFieldsCheck) Type() string {
	return "completeness"
}

func (c *RequiredFieldsCheck) Run() CheckResult {
	result := newResult(c, len(c.rows))

	for _, row := range c.rows {
		if row.Time.IsZero() || row.Geo == "" || row.Coicop == "" || row.Unit == "" || math.IsNaN(row.Value) {
			result.FailedRows++
			result.SampleKeys = sampleKey(result.SampleKeys, row.Key())
		}
	}

	if result.FailedRows > 0 {
		result.Passed = false
		result.Details = fmt.Sprintf("Found %d rows with missing required fields", result.FailedRows)
	} else {
		result.Passed = true
		result.Details = fmt.Sprintf("All %d rows have required fields populated", len(c.rows))
	}
	return result
}

// DuplicateKeyCheck verifies that the primary-key tuple
// (time, geo, coicop, unit) is unique across the snapshot
type DuplicateKeyCheck struct {
	rows []jsonstat.Observation
}

func NewDuplicateKeyCheck(rows []jsonstat.Observation) *DuplicateKeyCheck {
	return &DuplicateKeyCheck{rows: rows}
}

func (c *DuplicateKeyCheck) Name() string {
	return "no_duplicate_keys"
}

func (c *DuplicateKeyCheck) Type() string {
	return "consistency"
}

func (c *DuplicateKeyCheck) Run() CheckResult {
	result := newResult(c, len(c.rows))

	seen := make(map[string]bool, len(c.rows))
	for _, row := range c.rows {
		key := row.Key()
		if seen[key] {
			result.FailedRows++
			result.SampleKeys = sampleKey(result.SampleKeys, key)
			continue
		}
		seen[key] = true
	}

	if result.FailedRows > 0 {
		result.Passed = false
		result.Details = fmt.Sprintf("Found %d duplicate key tuples", result.FailedRows)
	} else {
		result.Passed = true
		result.Details = fmt.Sprintf("All %d key tuples are unique", len(c.rows))
	}
	return result
}

// ValueRangeCheck verifies that values are finite and non-negative
// (an HICP index series is never below zero)
type ValueRangeCheck struct {
	rows []jsonstat.Observation
}

func NewValueRangeCheck(rows []jsonstat.Observation) *ValueRangeCheck {
	return &ValueRangeCheck{rows: rows}
}

func (c *ValueRangeCheck) Name() string {
	return "value_valid_range"
}

func (c *ValueRangeCheck) Type() string {
	return "validity"
}

func (c *ValueRangeCheck) Run() CheckResult {
	result := newResult(c, len(c.rows))

	for _, row := range c.rows {
		if math.IsNaN(row.Value) || math.IsInf(row.Value, 0) || row.Value < 0 {
			result.FailedRows++
			result.SampleKeys = sampleKey(result.SampleKeys, row.Key())
		}
	}

	if result.FailedRows > 0 {
		result.Passed = false
		result.Details = fmt.Sprintf("Found %d rows with non-finite or negative values", result.FailedRows)
	} else {
		result.Passed = true
		result.Details = fmt.Sprintf("All %d values are finite and non-negative", len(c.rows))
	}
	return result
}

// MonthlyContinuityCheck verifies that each (geo, coicop, unit) series
// has no gap greater than one month between consecutive periods
type MonthlyContinuityCheck struct {
	rows []jsonstat.Observation
}

func NewMonthlyContinuityCheck(rows []jsonstat.Observation) *MonthlyContinuityCheck {
	return &MonthlyContinuityCheck{rows: rows}
}

func (c *MonthlyContinuityCheck) Name() string {
	return "monthly_frequency_no_gaps"
}

func (c *MonthlyContinuityCheck) Type() string {
	return "consistency"
}

func (c *MonthlyContinuityCheck) Run() CheckResult {
	result := newResult(c, len(c.rows))

	groups := make(map[string][]time.Time)
	for _, row := range c.rows {
		if row.Time.IsZero() {
			continue // unparseable periods are the completeness check's finding
		}
		series := fmt.Sprintf("%s|%s|%s", row.Geo, row.Coicop, row.Unit)
		groups[series] = append(groups[series], row.Time)
	}

	gaps := 0
	for series, times := range groups {
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		for i := 1; i < len(times); i++ {
			if monthsBetween(times[i-1], times[i]) > 1 {
				gaps++
				result.SampleKeys = sampleKey(result.SampleKeys, fmt.Sprintf(
					"%s: %s -> %s",
					series, times[i-1].Format("2006-01"), times[i].Format("2006-01"),
				))
			}
		}
	}
	result.FailedRows = gaps

	if gaps > 0 {
		result.Passed = false
		result.Details = fmt.Sprintf("Found %d monthly gaps across %d series", gaps, len(groups))
	} else {
		result.Passed = true
		result.Details = fmt.Sprintf("All %d series are monthly without gaps", len(groups))
	}
	return result
}

// monthsBetween returns the whole months from a to b (a before b)
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// SchemaConsistencyCheck verifies that the observed column set exactly
// matches the snapshot contract: no missing and no unexpected columns
type SchemaConsistencyCheck struct {
	columns []string
}

func NewSchemaConsistencyCheck(columns []string) *SchemaConsistencyCheck {
	return &SchemaConsistencyCheck{columns: columns}
}

func (c *SchemaConsistencyCheck) Name() string {
	return "schema_required_columns"
}

func (c *SchemaConsistencyCheck) Type() string {
	return "structural"
}

func (c *SchemaConsistencyCheck) Run() CheckResult {
	result := CheckResult{
		CheckName: c.Name(),
		CheckType: c.Type(),
		RowCount:  0,
		CreatedAt: time.Now().UTC(),
	}

	observed := make(map[string]bool, len(c.columns))
	for _, col := range c.columns {
		observed[col] = true
	}

	var missing, unexpected []string
	for _, col := range jsonstat.Columns {
		if !observed[col] {
			missing = append(missing, col)
		}
		delete(observed, col)
	}
	for col := range observed {
		unexpected = append(unexpected, col)
	}
	sort.Strings(unexpected)

	if len(missing) > 0 || len(unexpected) > 0 {
		result.Passed = false
		result.Details = fmt.Sprintf("Column contract violated: missing %v, unexpected %v", missing, unexpected)
		result.FailedRows = len(missing) + len(unexpected)
		result.SampleKeys = append(append(result.SampleKeys, missing...), unexpected...)
	} else {
		result.Passed = true
		result.Details = fmt.Sprintf("All %d contract columns present", len(jsonstat.Columns))
	}
	return result
}

func newResult(c Check, rowCount int) CheckResult {
	return CheckResult{
		CheckName: c.Name(),
		CheckType: c.Type(),
		RowCount:  rowCount,
		CreatedAt: time.Now().UTC(),
	}
}

func sampleKey(keys []string, key string) []string {
	if len(keys) >= MaxSampleKeys {
		return keys
	}
	return append(keys, key)
}
