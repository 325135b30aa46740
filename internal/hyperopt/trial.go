package hyperopt

import (
	"sort"

	"github.com/copyleftdev/BOREAL/internal/backtest"
	"github.com/copyleftdev/BOREAL/internal/space"
)

// Trial is one evaluated epoch: the candidate point, its decoded parameters,
// the scored loss, and the trade metrics backing it.
type Trial struct {
	// Epoch is the 1-based position in the run, assigned at scoring time.
	Epoch int

	// OptimizerID identifies the optimizer that proposed the point, so a
	// resumed run can replay observations into the right instance.
	OptimizerID int64

	Point  space.Point
	Params map[string]any

	Loss    float64
	Metrics backtest.TradeMetrics

	// Void marks an evaluation that produced too few trades to score. A
	// void trial never becomes the best one, even after its loss has been
	// replaced with the optimizer's pinned sentinel.
	Void bool

	// IsInitial marks points proposed during random exploration rather
	// than by the fitted surrogate.
	IsInitial bool

	// IsBest marks a strict improvement over every earlier trial.
	IsBest bool
}

// Trials is an ordered log of evaluated epochs.
type Trials []Trial

// Best returns the lowest-loss non-void trial.
func (ts Trials) Best() (Trial, bool) {
	var best Trial
	found := false
	for _, t := range ts {
		if t.Void {
			continue
		}
		if !found || t.Loss < best.Loss {
			best = t
			found = true
		}
	}
	return best, found
}

// SortedByLoss returns a copy ordered by ascending loss.
func (ts Trials) SortedByLoss() Trials {
	out := make(Trials, len(ts))
	copy(out, ts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Loss < out[j].Loss })
	return out
}

// ByOptimizer groups the observation history per proposing optimizer,
// preserving epoch order within each group.
func (ts Trials) ByOptimizer() map[int64]Trials {
	out := make(map[int64]Trials)
	for _, t := range ts {
		out[t.OptimizerID] = append(out[t.OptimizerID], t)
	}
	return out
}

// Observations flattens the trials into the (points, losses) pair an
// optimizer is told with.
func (ts Trials) Observations() ([]space.Point, []float64) {
	points := make([]space.Point, len(ts))
	losses := make([]float64, len(ts))
	for i, t := range ts {
		points[i] = t.Point
		losses[i] = t.Loss
	}
	return points, losses
}
