package surrogate

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// GP is a Gaussian Process regression model over encoded candidate points.
// Fit replaces the training set wholesale; the model keeps no incremental
// state, so refitting from persisted observations is always possible.
type GP struct {
	kernel   Kernel
	noiseVar float64

	// Training data, retained for prediction.
	x *mat.Dense
	y *mat.VecDense

	alpha *mat.VecDense
	chol  *mat.Cholesky

	logger *zap.Logger
}

// NewGP creates a Gaussian Process model with the given kernel and noise
// variance.
func NewGP(kernel Kernel, noiseVar float64, logger *zap.Logger) *GP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GP{
		kernel:   kernel,
		noiseVar: noiseVar,
		logger:   logger.Named("gp"),
	}
}

// Fitted reports whether the model has been fit to any observations.
func (gp *GP) Fitted() bool { return gp.alpha != nil }

// Fit fits the model to the training data.
func (gp *GP) Fit(x *mat.Dense, y *mat.VecDense) error {
	const op = "GP.Fit"

	if x == nil || y == nil {
		return fmt.Errorf("%s: input matrices must not be nil", op)
	}
	nSamples, nFeatures := x.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return fmt.Errorf("%s: input matrix must not be empty", op)
	}
	if nSamples != y.Len() {
		return fmt.Errorf("%s: dimension mismatch: X has %d samples but y has length %d",
			op, nSamples, y.Len())
	}

	gp.logger.Debug("fitting model",
		zap.Int("samples", nSamples),
		zap.Int("features", nFeatures),
	)

	gp.x = mat.DenseCopyOf(x)
	gp.y = mat.VecDenseCopyOf(y)

	k := gp.kernelMatrix(gp.x, nSamples)
	for i := 0; i < nSamples; i++ {
		k.SetSym(i, i, k.At(i, i)+gp.noiseVar)
	}

	chol, err := gp.factorize(k, nSamples)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	alpha := mat.NewVecDense(nSamples, nil)
	if err := chol.SolveVecTo(alpha, gp.y); err != nil {
		return fmt.Errorf("%s: solving for alpha: %w", op, err)
	}

	gp.alpha = alpha
	gp.chol = chol
	return nil
}

// kernelMatrix computes the symmetric kernel matrix over the training points.
func (gp *GP) kernelMatrix(x *mat.Dense, nSamples int) *mat.SymDense {
	k := mat.NewSymDense(nSamples, nil)
	for i := 0; i < nSamples; i++ {
		xi := x.RawRowView(i)
		k.SetSym(i, i, gp.kernel.Eval(xi, xi))
		for j := i + 1; j < nSamples; j++ {
			k.SetSym(i, j, gp.kernel.Eval(xi, x.RawRowView(j)))
		}
	}
	return k
}

// factorize attempts a Cholesky decomposition, escalating diagonal jitter
// until the matrix is positive definite.
func (gp *GP) factorize(k *mat.SymDense, n int) (*mat.Cholesky, error) {
	const maxAttempts = 10

	jitter := 0.0
	for attempt := 0; attempt < maxAttempts; attempt++ {
		kj := mat.NewSymDense(n, nil)
		kj.CopySym(k)
		if jitter > 0 {
			for i := 0; i < n; i++ {
				kj.SetSym(i, i, kj.At(i, i)+jitter)
			}
		}

		var chol mat.Cholesky
		if chol.Factorize(kj) {
			return &chol, nil
		}

		if jitter == 0 {
			jitter = 1e-12
		} else {
			jitter *= 10
		}
		gp.logger.Debug("Cholesky factorization failed, increasing jitter",
			zap.Int("attempt", attempt+1),
			zap.Float64("jitter", jitter),
		)
	}
	return nil, errors.New("kernel matrix is not positive definite")
}

// Predict returns the posterior mean and variance at the given test points.
func (gp *GP) Predict(x *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	const op = "GP.Predict"

	if x == nil {
		return nil, nil, fmt.Errorf("%s: input matrix is nil", op)
	}
	if !gp.Fitted() {
		return nil, nil, fmt.Errorf("%s: model not fitted", op)
	}

	nTest, _ := x.Dims()
	nTrain, _ := gp.x.Dims()

	mean := mat.NewVecDense(nTest, nil)
	variance := mat.NewVecDense(nTest, nil)

	kss := make([]float64, nTest)
	kstar := mat.NewDense(nTest, nTrain, nil)
	for i := 0; i < nTest; i++ {
		xs := x.RawRowView(i)
		kss[i] = gp.kernel.Eval(xs, xs) + gp.noiseVar
		for j := 0; j < nTrain; j++ {
			kstar.Set(i, j, gp.kernel.Eval(xs, gp.x.RawRowView(j)))
		}
	}

	mean.MulVec(kstar, gp.alpha)

	// variance = diag(K** - K* K^-1 K*^T), via the Cholesky factor.
	v := mat.NewDense(nTrain, nTest, nil)
	if err := v.Solve(gp.chol, kstar.T()); err != nil {
		return nil, nil, fmt.Errorf("%s: solving for variance: %w", op, err)
	}
	for i := 0; i < nTest; i++ {
		var sum float64
		for j := 0; j < nTrain; j++ {
			val := v.At(j, i)
			sum += val * val
		}
		variance.SetVec(i, math.Max(0, kss[i]-sum))
	}

	return mean, variance, nil
}
