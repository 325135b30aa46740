// Package space models the tunable parameter space of a strategy search.
package space

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// Unbounded is the size reported for search spaces whose combinatorial
// estimate overflows. It doubles as the "effectively infinite" epoch cap.
const Unbounded = float64(math.MaxInt32)

// Dimension describes one tunable parameter: its name, numeric encoding
// bounds, and discrete cardinality used for search-space sizing.
type Dimension interface {
	Name() string

	// Bounds returns the inclusive numeric range of the encoded value.
	Bounds() (low, high float64)

	// Cardinality returns the number of discrete values this dimension
	// contributes to the search-space size estimate.
	Cardinality() int

	// Clip maps an arbitrary proposal onto a valid encoded value.
	Clip(v float64) float64

	// Value decodes an encoded value into the reported parameter value.
	Value(v float64) any
}

// Integer is a dimension over the inclusive integer range [Low, High].
type Integer struct {
	name string
	Low  int
	High int
}

// NewInteger creates an integer dimension.
func NewInteger(name string, low, high int) Integer {
	return Integer{name: name, Low: low, High: high}
}

func (d Integer) Name() string                 { return d.name }
func (d Integer) Bounds() (float64, float64)   { return float64(d.Low), float64(d.High) }
func (d Integer) Cardinality() int             { return maxInt(1, d.High-d.Low) }
func (d Integer) Value(v float64) any          { return int(d.Clip(v)) }

func (d Integer) Clip(v float64) float64 {
	v = math.Round(v)
	return math.Max(float64(d.Low), math.Min(v, float64(d.High)))
}

// Real is a dimension over the continuous range [Low, High].
type Real struct {
	name string
	Low  float64
	High float64
}

// NewReal creates a real-valued dimension.
func NewReal(name string, low, high float64) Real {
	return Real{name: name, Low: low, High: high}
}

func (d Real) Name() string               { return d.name }
func (d Real) Bounds() (float64, float64) { return d.Low, d.High }
func (d Real) Value(v float64) any        { return d.Clip(v) }

func (d Real) Cardinality() int {
	return maxInt(10, int(d.High-d.Low))
}

func (d Real) Clip(v float64) float64 {
	return math.Max(d.Low, math.Min(v, d.High))
}

// Categorical is a dimension over a fixed set of named values, encoded as
// the value index.
type Categorical struct {
	name   string
	Values []string
}

// NewCategorical creates a categorical dimension.
func NewCategorical(name string, values ...string) Categorical {
	return Categorical{name: name, Values: values}
}

func (d Categorical) Name() string               { return d.name }
func (d Categorical) Bounds() (float64, float64) { return 0, float64(len(d.Values) - 1) }
func (d Categorical) Cardinality() int           { return len(d.Values) }

func (d Categorical) Clip(v float64) float64 {
	v = math.Round(v)
	return math.Max(0, math.Min(v, float64(len(d.Values)-1)))
}

func (d Categorical) Value(v float64) any {
	return d.Values[int(d.Clip(v))]
}

// Space is an ordered, immutable sequence of dimensions. The order is fixed
// for the lifetime of a run: candidate points map positionally onto it.
type Space struct {
	dims []Dimension
}

// New validates the dimension sequence and builds a Space.
func New(dims ...Dimension) (*Space, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("space: no dimensions configured")
	}
	seen := make(map[string]struct{}, len(dims))
	for _, d := range dims {
		if d.Name() == "" {
			return nil, fmt.Errorf("space: dimension with empty name")
		}
		if _, dup := seen[d.Name()]; dup {
			return nil, fmt.Errorf("space: duplicate dimension %q", d.Name())
		}
		seen[d.Name()] = struct{}{}
		low, high := d.Bounds()
		if low >= high {
			return nil, fmt.Errorf("space: dimension %q has invalid bounds [%v, %v]", d.Name(), low, high)
		}
	}
	return &Space{dims: dims}, nil
}

// Dimensions returns the ordered dimension sequence.
func (s *Space) Dimensions() []Dimension { return s.dims }

// Len returns the number of dimensions.
func (s *Space) Len() int { return len(s.dims) }

// Clip maps a raw proposal onto a valid point, dimension by dimension.
func (s *Space) Clip(p Point) Point {
	out := make(Point, len(p))
	for i, d := range s.dims {
		out[i] = d.Clip(p[i])
	}
	return out
}

// Params decodes a point into named parameter values, for reporting only.
func (s *Space) Params(p Point) map[string]any {
	params := make(map[string]any, len(s.dims))
	for i, d := range s.dims {
		params[d.Name()] = d.Value(p[i])
	}
	return params
}

// Names returns the dimension names in space order.
func (s *Space) Names() []string {
	names := make([]string, len(s.dims))
	for i, d := range s.dims {
		names[i] = d.Name()
	}
	return names
}

// Size estimates the number of distinct parameter combinations as the
// unordered combination count of the summed dimension cardinalities.
// Estimates beyond Unbounded are reported as Unbounded.
func (s *Space) Size() float64 {
	nParams := 0
	for _, d := range s.dims {
		nParams += d.Cardinality()
	}
	nDims := len(s.dims)
	if nParams < nDims {
		return Unbounded
	}
	// C(nParams, nDims) through log-gamma to survive large spaces.
	lg, _ := math.Lgamma(float64(nParams) + 1)
	lk, _ := math.Lgamma(float64(nDims) + 1)
	lnk, _ := math.Lgamma(float64(nParams-nDims) + 1)
	size := math.Exp(lg - lk - lnk)
	if math.IsInf(size, 1) || size > Unbounded {
		return Unbounded
	}
	return math.Floor(size)
}

// Signature returns a stable digest of the ordered dimension layout. It is
// recorded with persisted state so a reconfigured space cannot silently
// resume against trials recorded under a different positional mapping.
func (s *Space) Signature() string {
	var b strings.Builder
	for _, d := range s.dims {
		low, high := d.Bounds()
		fmt.Fprintf(&b, "%T|%s|%v|%v|%d;", d, d.Name(), low, high, d.Cardinality())
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
