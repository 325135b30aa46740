package opt

import (
	"fmt"
	"math/rand"
)

// LieStrategy selects the fabricated outcome used when one ask emits several
// points before any of them has been scored.
type LieStrategy string

const (
	// LieClMin fabricates the best loss seen so far (constant liar, min).
	LieClMin LieStrategy = "cl_min"
	// LieClMean fabricates the mean observed loss.
	LieClMean LieStrategy = "cl_mean"
	// LieClMax fabricates the worst loss seen so far.
	LieClMax LieStrategy = "cl_max"
	// LieRandom picks one of the constant-liar strategies per ask, used in
	// multi-optimizer mode to diversify the per-worker searches.
	LieRandom LieStrategy = "random"
	// LieDefault is cl_min.
	LieDefault LieStrategy = "default"
)

var lieStrategies = []LieStrategy{LieClMin, LieClMean, LieClMax}

// ParseLieStrategy validates a configured lie strategy name.
func ParseLieStrategy(name string) (LieStrategy, error) {
	switch LieStrategy(name) {
	case LieClMin, LieClMean, LieClMax, LieRandom, LieDefault:
		return LieStrategy(name), nil
	}
	return "", fmt.Errorf("opt: unsupported lie strategy %q", name)
}

// resolve maps the configured strategy to a concrete one for a single ask.
func (s LieStrategy) resolve(rng *rand.Rand) LieStrategy {
	switch s {
	case LieRandom:
		return lieStrategies[rng.Intn(len(lieStrategies))]
	case LieDefault, "":
		return LieClMin
	}
	return s
}
