// Package jsonstat models the Eurostat dissemination API payload
// (JSON-stat 2.0) and decodes it into flat observation rows.
package jsonstat

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Payload is the raw statistical envelope as returned by the API:
// an ordered list of dimensions, a size vector, and a flat value
// array addressed by a mixed-radix linear index. Immutable once
// captured; the decoder consumes it read-only.
type Payload struct {
	Label     string               `json:"label,omitempty"`
	Updated   string               `json:"updated,omitempty"`
	ID        []string             `json:"id"`
	Size      []int                `json:"size"`
	Dimension map[string]Dimension `json:"dimension"`
	Value     ValueArray           `json:"value"`
}

// Dimension holds one dimension's category mapping
type Dimension struct {
	Label    string   `json:"label,omitempty"`
	Category Category `json:"category"`
}

// Category maps coordinate codes to positions along a dimension
type Category struct {
	Index CategoryIndex     `json:"index"`
	Label map[string]string `json:"label,omitempty"`
}

// CategoryIndex is the ordered code list of a dimension. JSON-stat
// encodes it either as an object {code: position} or as a plain array
// of codes.
type CategoryIndex struct {
	codes     []string       // set for the array form
	positions map[string]int // set for the object form
}

// UnmarshalJSON accepts both the object and the array encoding
func (ci *CategoryIndex) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &ci.codes)
	}
	return json.Unmarshal(data, &ci.positions)
}

// MarshalJSON writes back the form the index was parsed from
func (ci CategoryIndex) MarshalJSON() ([]byte, error) {
	if ci.positions != nil {
		return json.Marshal(ci.positions)
	}
	return json.Marshal(ci.codes)
}

// Ordered returns the dimension's codes sorted by position. Position
// collisions and duplicate codes are structural defects.
func (ci CategoryIndex) Ordered() ([]string, error) {
	if ci.positions == nil {
		seen := make(map[string]bool, len(ci.codes))
		for _, code := range ci.codes {
			if seen[code] {
				return nil, fmt.Errorf("duplicate coordinate label %q", code)
			}
			seen[code] = true
		}
		return ci.codes, nil
	}

	type entry struct {
		code string
		pos  int
	}
	entries := make([]entry, 0, len(ci.positions))
	for code, pos := range ci.positions {
		entries = append(entries, entry{code, pos})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })

	codes := make([]string, 0, len(entries))
	for i, e := range entries {
		if i > 0 && entries[i-1].pos == e.pos {
			return nil, fmt.Errorf("labels %q and %q share position %d", entries[i-1].code, e.code, e.pos)
		}
		codes = append(codes, e.code)
	}
	return codes, nil
}

// Len returns the number of distinct coordinate labels
func (ci CategoryIndex) Len() int {
	if ci.positions != nil {
		return len(ci.positions)
	}
	return len(ci.codes)
}

// ValueArray is the flat value array. JSON-stat encodes it either as
// a dense array (with nulls for missing entries) or as a sparse
// object keyed by the stringified linear index.
type ValueArray struct {
	dense  []*float64
	sparse map[int]float64
	packed bool // true when the dense array form was used
}

// UnmarshalJSON accepts both the dense array and the sparse object form
func (v *ValueArray) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		v.packed = true
		return json.Unmarshal(data, &v.dense)
	}

	var raw map[string]*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.sparse = make(map[int]float64, len(raw))
	for key, val := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("non-numeric value index %q", key)
		}
		if val != nil {
			v.sparse[idx] = *val
		}
	}
	return nil
}

// MarshalJSON writes back the form the array was parsed from
func (v ValueArray) MarshalJSON() ([]byte, error) {
	if v.packed {
		return json.Marshal(v.dense)
	}
	raw := make(map[string]float64, len(v.sparse))
	for idx, val := range v.sparse {
		raw[strconv.Itoa(idx)] = val
	}
	return json.Marshal(raw)
}

// At returns the value at linear index i and whether it is present.
// Missing (sparse) entries report ok=false and are not an error.
func (v ValueArray) At(i int) (float64, bool) {
	if v.packed {
		if i < 0 || i >= len(v.dense) || v.dense[i] == nil {
			return 0, false
		}
		return *v.dense[i], true
	}
	val, ok := v.sparse[i]
	return val, ok
}

// DenseLen returns the dense array length, or -1 for the sparse form
func (v ValueArray) DenseLen() int {
	if v.packed {
		return len(v.dense)
	}
	return -1
}

// MaxIndex returns the highest addressed linear index, or -1 when empty
func (v ValueArray) MaxIndex() int {
	if v.packed {
		return len(v.dense) - 1
	}
	max := -1
	for idx := range v.sparse {
		if idx > max {
			max = idx
		}
	}
	return max
}

// MinIndex returns the lowest addressed linear index, or 0 when empty.
// Dense arrays always start at 0.
func (v ValueArray) MinIndex() int {
	if v.packed {
		return 0
	}
	min := 0
	first := true
	for idx := range v.sparse {
		if first || idx < min {
			min = idx
			first = false
		}
	}
	return min
}

// isSet reports whether the value key was present in the payload.
// Both forms mark themselves during unmarshalling, so the zero value
// means the key was absent.
func (v ValueArray) isSet() bool {
	return v.packed || v.sparse != nil
}

// Present returns the count of non-missing entries
func (v ValueArray) Present() int {
	if !v.packed {
		return len(v.sparse)
	}
	n := 0
	for _, val := range v.dense {
		if val != nil {
			n++
		}
	}
	return n
}

// Parse unmarshals a raw JSON-stat payload
func Parse(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON-stat payload: %w", err)
	}
	if len(p.ID) == 0 || p.Dimension == nil {
		return nil, fmt.Errorf("payload is missing dimension metadata (keys: id, dimension)")
	}
	if !p.Value.isSet() {
		return nil, fmt.Errorf("payload is missing the value array (key: value)")
	}
	return &p, nil
}
