package reward

import "fmt"

// RangeEntry maps an inclusive numeric band to a coefficient.
type RangeEntry struct {
	From        int64
	To          int64
	Coefficient float64
}

// Contains reports whether value falls inside the band, both ends inclusive.
func (e RangeEntry) Contains(value float64) bool {
	return float64(e.From) <= value && value <= float64(e.To)
}

// Table is an ordered set of non-overlapping bands. Evaluation order is the
// slice order and the first matching band wins.
type Table []RangeEntry

// Coefficient returns the coefficient of the first band containing value, or
// 0 when no band matches. A value outside every band is not an error; 0 is
// the defined out-of-range policy.
func (t Table) Coefficient(value float64) float64 {
	for _, entry := range t {
		if entry.Contains(value) {
			return entry.Coefficient
		}
	}
	return 0
}

// Validate checks administrator-supplied bands: each band must have
// From <= To and no two bands may overlap. Tables are read-only at
// evaluation time, so this runs once when a policy is loaded.
func (t Table) Validate() error {
	for i, entry := range t {
		if entry.From > entry.To {
			return fmt.Errorf("range %d: from %d exceeds to %d", i, entry.From, entry.To)
		}
		for j := i + 1; j < len(t); j++ {
			other := t[j]
			if entry.From <= other.To && other.From <= entry.To {
				return fmt.Errorf("range %d [%d,%d] overlaps range %d [%d,%d]",
					i, entry.From, entry.To, j, other.From, other.To)
			}
		}
	}
	return nil
}
