package jsonstat

import (
	"fmt"
	"time"
)

// DecodeError reports a structural defect in the payload: size
// mismatches, duplicate labels, or a value array that does not match
// the declared dimension sizes. These are never retried and the
// decoder emits no rows for the whole payload.
type DecodeError struct {
	Dimension string // empty for payload-level defects
	Reason    string
}

func (e *DecodeError) Error() string {
	if e.Dimension != "" {
		return fmt.Sprintf("decode failed: dimension %q: %s", e.Dimension, e.Reason)
	}
	return "decode failed: " + e.Reason
}

// Decoder turns a sparse multi-dimensional payload into flat
// observation rows. Dimensions are row-major with the last dimension
// varying fastest: for linear index i the coordinate along dimension
// k is (i / stride_k) mod size_k where stride_k is the product of the
// trailing dimension sizes.
type Decoder struct {
	payload     *Payload
	rawBlob     string
	processedAt time.Time

	// prepared lazily, nil until the structure has been validated
	codes   [][]string
	strides []int
	total   int
}

// NewDecoder creates a decoder for one captured payload. rawBlob is
// the opaque storage reference kept on every row for lineage.
func NewDecoder(payload *Payload, rawBlob string, processedAt time.Time) *Decoder {
	return &Decoder{
		payload:     payload,
		rawBlob:     rawBlob,
		processedAt: processedAt.UTC(),
	}
}

// prepare validates the payload structure and builds the per-dimension
// code lists and strides. Any defect fails the whole payload.
func (d *Decoder) prepare() error {
	if d.codes != nil {
		return nil
	}

	p := d.payload
	if len(p.ID) != len(p.Size) {
		return &DecodeError{Reason: fmt.Sprintf("%d dimensions declared but %d sizes", len(p.ID), len(p.Size))}
	}

	codes := make([][]string, len(p.ID))
	total := 1
	for k, name := range p.ID {
		dim, ok := p.Dimension[name]
		if !ok {
			return &DecodeError{Dimension: name, Reason: "listed in id but missing from dimension map"}
		}
		ordered, err := dim.Category.Index.Ordered()
		if err != nil {
			return &DecodeError{Dimension: name, Reason: err.Error()}
		}
		if len(ordered) != p.Size[k] {
			return &DecodeError{
				Dimension: name,
				Reason:    fmt.Sprintf("declared size %d but %d distinct labels", p.Size[k], len(ordered)),
			}
		}
		codes[k] = ordered
		total *= p.Size[k]
	}

	if dense := p.Value.DenseLen(); dense >= 0 && dense != total {
		return &DecodeError{Reason: fmt.Sprintf("value array length %d, expected %d from sizes", dense, total)}
	}
	if max := p.Value.MaxIndex(); max >= total {
		return &DecodeError{Reason: fmt.Sprintf("value index %d out of range, expected < %d from sizes", max, total)}
	}
	if min := p.Value.MinIndex(); min < 0 {
		return &DecodeError{Reason: fmt.Sprintf("negative value index %d", min)}
	}

	strides := make([]int, len(p.Size))
	stride := 1
	for k := len(p.Size) - 1; k >= 0; k-- {
		strides[k] = stride
		stride *= p.Size[k]
	}

	d.codes = codes
	d.strides = strides
	d.total = total
	return nil
}

// Each iterates the present (non-missing) entries of the flat value
// array in linear-index order, calling fn with one observation per
// entry. The iteration is restartable; structural defects surface
// before the first row.
func (d *Decoder) Each(fn func(Observation) error) error {
	if err := d.prepare(); err != nil {
		return err
	}

	for i := 0; i < d.total; i++ {
		value, ok := d.payload.Value.At(i)
		if !ok {
			continue // sparse entry, not an error
		}

		obs := Observation{
			Value:       value,
			ProcessedAt: d.processedAt,
			RawBlob:     d.rawBlob,
		}
		for k, name := range d.payload.ID {
			label := d.codes[k][(i/d.strides[k])%d.payload.Size[k]]
			switch name {
			case "time":
				if t, ok := ParseTimeCode(label); ok {
					obs.Time = t
				}
			case "geo":
				obs.Geo = label
			case "coicop":
				obs.Coicop = label
			case "unit":
				obs.Unit = label
			}
			// other dimensions (e.g. freq) carry no column in the contract
		}

		if err := fn(obs); err != nil {
			return err
		}
	}
	return nil
}

// Decode materializes the full ordered row snapshot
func (d *Decoder) Decode() ([]Observation, error) {
	if err := d.prepare(); err != nil {
		return nil, err
	}

	rows := make([]Observation, 0, d.payload.Value.Present())
	err := d.Each(func(obs Observation) error {
		rows = append(rows, obs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
