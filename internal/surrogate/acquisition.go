package surrogate

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// ExpectedImprovement scores candidate points by how much they are expected
// to improve on the best observed loss. Losses are minimized.
type ExpectedImprovement struct {
	bestObserved float64
	xi           float64
}

// NewExpectedImprovement creates an Expected Improvement acquisition with the
// given best observed loss and exploration margin xi.
func NewExpectedImprovement(bestObserved, xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{bestObserved: bestObserved, xi: xi}
}

// Compute returns the expected improvement at a point with posterior mean mu
// and standard deviation sigma. The result is non-negative.
func (ei *ExpectedImprovement) Compute(mu, sigma float64) float64 {
	improvement := ei.bestObserved - mu - ei.xi
	if sigma <= 1e-10 {
		if improvement <= 0 {
			return 0
		}
		return improvement
	}

	// EI = improvement * Φ(z) + sigma * φ(z)
	stdNormal := distuv.UnitNormal
	z := improvement / sigma
	return improvement*stdNormal.CDF(z) + sigma*stdNormal.Prob(z)
}

// UpdateBest records a new best observed loss.
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	if best < ei.bestObserved {
		ei.bestObserved = best
	}
}

// SetBest overwrites the best observed loss, used when rebuilding from a
// fresh observation set.
func (ei *ExpectedImprovement) SetBest(best float64) {
	ei.bestObserved = best
}

// BestObserved returns the best observed loss.
func (ei *ExpectedImprovement) BestObserved() float64 {
	return ei.bestObserved
}
