package hyperopt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/BOREAL/internal/space"
)

func budgetSpace(t *testing.T) *space.Space {
	t.Helper()
	sp, err := space.New(
		space.NewInteger("a", 0, 50),
		space.NewReal("b", 0, 100),
		space.NewCategorical("c", "x", "y", "z"),
	)
	require.NoError(t, err)
	return sp
}

func TestBudgetFixedEpochs(t *testing.T) {
	b := NewBudget(budgetSpace(t), 4, 1, 100, 1)
	b.Seed(nil)

	assert.Equal(t, 100, b.Limit())
	assert.Equal(t, 100, b.MinEpochs)
	assert.GreaterOrEqual(t, b.InitialPoints, 1)
	assert.LessOrEqual(t, b.InitialPoints, 100/3)
}

func TestBudgetAdaptiveCeiling(t *testing.T) {
	b := NewBudget(budgetSpace(t), 4, 1, 0, 1)
	b.Seed(nil)

	// Without a fixed total the ceiling starts at the minimum.
	assert.Equal(t, b.MinEpochs, b.Limit())
	assert.Greater(t, b.MinEpochs, 0)

	// A non-initial best pushes the ceiling out.
	before := b.Limit()
	b.RecordBest(before-1, 1.5, false)
	assert.Greater(t, b.Limit(), before-1)
	assert.Equal(t, 1.5, b.BestLoss())

	// Initial-point bests update the loss but not the ceiling.
	limit := b.Limit()
	b.RecordBest(before, 1.0, true)
	assert.Equal(t, limit, b.Limit())
	assert.Equal(t, 1.0, b.BestLoss())
}

func TestBudgetCeilingCappedBySpaceSize(t *testing.T) {
	sp, err := space.New(space.NewInteger("a", 0, 3), space.NewInteger("b", 0, 3))
	require.NoError(t, err)
	b := NewBudget(sp, 2, 1, 0, 10)
	b.Seed(nil)
	b.RecordBest(5, 1.0, false)
	assert.LessOrEqual(t, float64(b.Limit()), b.SpaceSize)
}

func TestBudgetBatchLenPaddedToJobs(t *testing.T) {
	b := NewBudget(budgetSpace(t), 4, 1, 0, 1)
	// Seed with enough history that the adaptive ceiling sits far away and
	// the batch is not clipped by the limit.
	b.Seed(make(Trials, 100))

	batch := b.BatchLen(0)
	assert.Greater(t, batch, 0)
	assert.Zero(t, batch%4, "batch %d not a multiple of jobs", batch)
}

func TestBudgetBatchLenCappedAtLimit(t *testing.T) {
	b := NewBudget(budgetSpace(t), 4, 1, 50, 1)
	b.Seed(nil)

	// Near the limit the batch shrinks to exactly what is left.
	batch := b.BatchLen(47)
	assert.Equal(t, 3, batch)

	assert.Equal(t, 0, b.BatchLen(50))
}

func TestBudgetSeedFromTrials(t *testing.T) {
	trials := Trials{
		{Epoch: 1, Loss: 5, IsBest: true},
		{Epoch: 2, Loss: 7},
		{Epoch: 3, Loss: 2, IsBest: true},
		{Epoch: 4, Loss: 4},
	}
	b := NewBudget(budgetSpace(t), 2, 1, 100, 1)
	b.Seed(trials)

	assert.Equal(t, 2.0, b.BestLoss())
	assert.Equal(t, 3, b.BestEpoch())
	// Average improvement distance is trials per best.
	assert.Equal(t, 2, b.avgBestOccurrence)
}

func TestBudgetFinishBatch(t *testing.T) {
	b := NewBudget(budgetSpace(t), 2, 1, 10, 1)
	b.Seed(nil)

	b.FinishBatch(5)
	assert.False(t, b.MaxEpochReached())
	b.FinishBatch(10)
	assert.True(t, b.MaxEpochReached())
}

func TestBudgetUnseededBestIsInf(t *testing.T) {
	b := NewBudget(budgetSpace(t), 2, 1, 10, 1)
	b.Seed(nil)
	assert.True(t, math.IsInf(b.BestLoss(), 1))
	assert.True(t, b.IsBest(1e12))
}
