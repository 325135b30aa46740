package surrogate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGPFitValidation(t *testing.T) {
	gp := NewGP(NewMatern52(1.0, 1.0), 1e-6, nil)

	tests := []struct {
		name string
		x    *mat.Dense
		y    *mat.VecDense
	}{
		{name: "nil inputs"},
		{
			name: "dimension mismatch",
			x:    mat.NewDense(2, 1, []float64{0, 1}),
			y:    mat.NewVecDense(3, []float64{0, 1, 2}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, gp.Fit(tt.x, tt.y))
		})
	}
	assert.False(t, gp.Fitted())
}

func TestGPInterpolatesTrainingPoints(t *testing.T) {
	gp := NewGP(NewMatern52(1.0, 1.0), 1e-6, nil)

	x := mat.NewDense(4, 1, []float64{0.0, 0.3, 0.6, 1.0})
	y := mat.NewVecDense(4, []float64{1.0, 0.4, 0.7, 2.0})
	require.NoError(t, gp.Fit(x, y))
	require.True(t, gp.Fitted())

	mean, variance, err := gp.Predict(x)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.InDelta(t, y.AtVec(i), mean.AtVec(i), 0.05, "mean at training point %d", i)
		assert.GreaterOrEqual(t, variance.AtVec(i), 0.0)
	}
}

func TestGPVarianceGrowsAwayFromData(t *testing.T) {
	gp := NewGP(NewMatern52(0.2, 1.0), 1e-6, nil)

	x := mat.NewDense(3, 1, []float64{0.4, 0.5, 0.6})
	y := mat.NewVecDense(3, []float64{0.1, 0.0, 0.1})
	require.NoError(t, gp.Fit(x, y))

	near := mat.NewDense(1, 1, []float64{0.5})
	far := mat.NewDense(1, 1, []float64{3.0})

	_, vNear, err := gp.Predict(near)
	require.NoError(t, err)
	_, vFar, err := gp.Predict(far)
	require.NoError(t, err)

	assert.Greater(t, vFar.AtVec(0), vNear.AtVec(0))
}

func TestGPPredictBeforeFit(t *testing.T) {
	gp := NewGP(NewRBF(1.0, 1.0), 1e-6, nil)
	_, _, err := gp.Predict(mat.NewDense(1, 1, []float64{0}))
	assert.Error(t, err)
}

func TestGPDuplicatePointsNeedJitter(t *testing.T) {
	// Identical rows make the kernel matrix singular without jitter.
	gp := NewGP(NewMatern52(1.0, 1.0), 0, nil)

	x := mat.NewDense(3, 1, []float64{0.5, 0.5, 0.5})
	y := mat.NewVecDense(3, []float64{1.0, 1.0, 1.0})
	require.NoError(t, gp.Fit(x, y))

	mean, _, err := gp.Predict(mat.NewDense(1, 1, []float64{0.5}))
	require.NoError(t, err)
	assert.False(t, math.IsNaN(mean.AtVec(0)))
}

func TestExpectedImprovement(t *testing.T) {
	ei := NewExpectedImprovement(1.0, 0.0)

	// A point predicted well below the best with real uncertainty scores
	// higher than one predicted at the best.
	better := ei.Compute(0.2, 0.1)
	atBest := ei.Compute(1.0, 0.1)
	assert.Greater(t, better, atBest)

	// No uncertainty and no improvement scores zero.
	assert.Equal(t, 0.0, ei.Compute(1.5, 0.0))

	// Certain improvement degenerates to the raw improvement.
	assert.InDelta(t, 0.8, ei.Compute(0.2, 0.0), 1e-12)

	ei.UpdateBest(0.5)
	assert.Equal(t, 0.5, ei.BestObserved())
	ei.UpdateBest(0.9) // worse, ignored
	assert.Equal(t, 0.5, ei.BestObserved())
}

func TestKernelProperties(t *testing.T) {
	kernels := map[string]Kernel{
		"matern52": NewMatern52(1.0, 2.0),
		"rbf":      NewRBF(1.0, 2.0),
	}

	for name, k := range kernels {
		t.Run(name, func(t *testing.T) {
			x := []float64{0.1, 0.9}
			// k(x, x) equals the signal variance.
			assert.InDelta(t, 2.0, k.Eval(x, x), 1e-12)
			// Symmetry.
			y := []float64{0.7, 0.2}
			assert.InDelta(t, k.Eval(x, y), k.Eval(y, x), 1e-12)
			// Decay with distance.
			z := []float64{5.0, -4.0}
			assert.Greater(t, k.Eval(x, y), k.Eval(x, z))

			assert.Error(t, k.SetHyperparameters([]float64{1.0}))
			assert.Error(t, k.SetHyperparameters([]float64{-1.0, 1.0}))
			require.NoError(t, k.SetHyperparameters([]float64{0.5, 1.5}))
			assert.Equal(t, []float64{0.5, 1.5}, k.Hyperparameters())
		})
	}
}
