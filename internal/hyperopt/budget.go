package hyperopt

import (
	"math"

	"github.com/copyleftdev/BOREAL/internal/space"
)

// Budget tracks how many epochs a run is worth. With a configured epoch
// count it is a plain limit; without one it adapts, extending the ceiling
// every time a new best is found and terminating once improvements dry up.
type Budget struct {
	effort      float64
	totalEpochs int
	jobs        int
	optPoints   int

	// InitialPoints is the random exploration budget per run, derived from
	// the search space size and the parallelism.
	InitialPoints int
	// MinEpochs is the floor below which the run never stops on its own.
	MinEpochs int
	// SpaceSize is the combinatorial estimate of distinct candidates,
	// space.Unbounded when it overflows.
	SpaceSize float64

	maxEpoch        int
	maxEpochReached bool

	bestLoss          float64
	bestEpoch         int
	avgBestOccurrence int
	sinceBest         []int
}

// NewBudget derives the exploration and duration coefficients from the
// search space. totalEpochs <= 0 selects the adaptive ceiling.
func NewBudget(sp *space.Space, jobs, askPoints, totalEpochs int, effort float64) *Budget {
	if jobs < 1 {
		jobs = 1
	}
	if askPoints < 1 {
		askPoints = 1
	}
	effort = math.Max(0.01, effort)
	b := &Budget{
		effort:      effort,
		totalEpochs: totalEpochs,
		jobs:        jobs,
		optPoints:   jobs * askPoints,
		SpaceSize:   sp.Size(),
		bestLoss:    math.Inf(1),
	}

	logOpt := 2
	if b.optPoints > 4 {
		logOpt = int(math.Log2(float64(b.optPoints)))
	}

	var nInit, minEpochs int
	switch {
	case b.SpaceSize < float64(b.optPoints):
		// Tiny space: no point exploring more than a dispatch's worth.
		nInit = b.optPoints / 3
		minEpochs = b.optPoints
	case totalEpochs > 0:
		logEpp := int(math.Log2(float64(totalEpochs))) * logOpt
		nInit = logEpp
		if totalEpochs/3 < nInit {
			nInit = totalEpochs / 3
		}
		minEpochs = totalEpochs
	default:
		logSss := int(math.Log10(b.SpaceSize)) * logOpt
		nInit = logSss
		if third := int(b.SpaceSize / 3); third < nInit {
			nInit = third
		}
		if nInit > b.optPoints {
			minEpochs = nInit + 2*nInit
		} else {
			minEpochs = b.optPoints + 2*nInit
		}
	}
	b.InitialPoints = int(float64(nInit) * effort)
	if b.InitialPoints < 1 {
		b.InitialPoints = 1
	}
	b.MinEpochs = int(float64(minEpochs) * effort)
	return b
}

// Seed recovers the best-epoch state from previously persisted trials and
// initializes the adaptive ceiling.
func (b *Budget) Seed(trials Trials) {
	if b.totalEpochs < 1 {
		b.maxEpoch = b.MinEpochs + len(trials)
	}
	b.avgBestOccurrence = b.MinEpochs / b.jobs

	bestCount := 0
	for _, t := range trials {
		if !t.IsBest {
			continue
		}
		bestCount++
		if t.Loss < b.bestLoss {
			b.bestLoss = t.Loss
			b.bestEpoch = t.Epoch
		}
	}
	if bestCount > 0 {
		b.avgBestOccurrence = len(trials) / bestCount
	}
}

// Limit is the current epoch ceiling: the configured total when set,
// otherwise the adaptive maximum.
func (b *Budget) Limit() int {
	if b.totalEpochs > 0 {
		return b.totalEpochs
	}
	return b.maxEpoch
}

// BatchLen sizes the next dispatch: the rolling best-occurrence average
// padded up to a multiple of the worker count, capped so the limit is not
// overshot.
func (b *Budget) BatchLen(epochsSoFar int) int {
	occurrence := int(float64(b.avgBestOccurrence) * math.Max(1, b.effort))
	batch := occurrence + b.jobs - occurrence%b.jobs
	if epochsSoFar+batch*b.optPoints >= b.Limit() {
		left := b.Limit() - epochsSoFar
		batch = left/b.optPoints + left%b.optPoints
	}
	if batch < 0 {
		return 0
	}
	return batch
}

// IsBest reports whether a loss strictly improves on the best seen.
func (b *Budget) IsBest(loss float64) bool { return loss < b.bestLoss }

// RecordBest registers a new best at the given epoch. Initial random points
// update the best loss but not the adaptive ceiling, since improvements
// before the surrogate kicks in say nothing about convergence.
func (b *Budget) RecordBest(epoch int, loss float64, isInitial bool) {
	b.bestLoss = loss
	if isInitial {
		return
	}
	b.sinceBest = append(b.sinceBest, epoch-b.bestEpoch)
	sum := 0
	for _, d := range b.sinceBest {
		sum += d
	}
	b.avgBestOccurrence = sum / len(b.sinceBest)
	b.bestEpoch = epoch
	b.maxEpoch = int(float64(b.bestEpoch+b.avgBestOccurrence+b.MinEpochs) * math.Max(1, b.effort))
	if float64(b.maxEpoch) > b.SpaceSize {
		b.maxEpoch = int(b.SpaceSize)
	}
}

// FinishBatch marks the ceiling reached once the next epoch would exceed it.
func (b *Budget) FinishBatch(currentEpoch int) {
	if currentEpoch+1 > b.Limit() {
		b.maxEpochReached = true
	}
}

// MaxEpochReached reports whether the run hit its ceiling.
func (b *Budget) MaxEpochReached() bool { return b.maxEpochReached }

// BestLoss returns the best loss seen, +Inf before any best exists.
func (b *Budget) BestLoss() float64 { return b.bestLoss }

// BestEpoch returns the epoch of the last ceiling-moving best.
func (b *Budget) BestEpoch() int { return b.bestEpoch }
