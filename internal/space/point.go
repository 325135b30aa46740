package space

import (
	"strconv"
	"strings"
)

// Point is one concrete assignment of encoded values to all dimensions, in
// space order. Points are value types; Key makes them usable as map keys for
// already-evaluated deduplication.
type Point []float64

// Key returns a canonical string form of the point.
func (p Point) Key() string {
	var b strings.Builder
	for i, v := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// Equal reports whether two points carry identical values.
func (p Point) Equal(q Point) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Copy returns an independent copy of the point.
func (p Point) Copy() Point {
	out := make(Point, len(p))
	copy(out, p)
	return out
}
