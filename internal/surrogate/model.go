package surrogate

import (
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/copyleftdev/BOREAL/internal/space"
)

// Model wraps the GP and the acquisition function behind the narrow contract
// the optimizer layer consumes: fit observed (point, loss) pairs, then
// suggest the most promising next point. Points are normalized onto the unit
// cube before reaching the GP, so kernel length scales are comparable across
// dimensions of very different ranges.
type Model struct {
	sp  *space.Space
	gp  *GP
	acq *ExpectedImprovement

	sampleCount int
	refine      bool
	logger      *zap.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithKernel replaces the default Matérn 5/2 kernel.
func WithKernel(k Kernel) Option {
	return func(m *Model) { m.gp = NewGP(k, 1e-6, m.logger) }
}

// WithSampleCount sets how many candidates are drawn per suggestion.
func WithSampleCount(n int) Option {
	return func(m *Model) { m.sampleCount = n }
}

// WithRefinement toggles Nelder-Mead refinement of the sampled best
// candidate.
func WithRefinement(enabled bool) Option {
	return func(m *Model) { m.refine = enabled }
}

// WithLogger sets the zap logger used by the model and its GP.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) {
		m.logger = logger
		m.gp = NewGP(m.gp.kernel, m.gp.noiseVar, logger)
	}
}

// NewModel creates a surrogate model over the given search space.
func NewModel(sp *space.Space, opts ...Option) *Model {
	m := &Model{
		sp:          sp,
		logger:      zap.NewNop(),
		sampleCount: 500,
	}
	m.gp = NewGP(NewMatern52(1.0, 1.0), 1e-6, m.logger)
	m.acq = NewExpectedImprovement(math.Inf(1), 0.01)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Fitted reports whether the model has observations fitted.
func (m *Model) Fitted() bool { return m.gp.Fitted() }

// Fit refits the GP on the full observation set. This is the expensive
// operation the optimizer layer amortizes across dispatch batches.
func (m *Model) Fit(points []space.Point, losses []float64) error {
	if len(points) == 0 {
		return fmt.Errorf("surrogate: no observations to fit")
	}
	if len(points) != len(losses) {
		return fmt.Errorf("surrogate: %d points but %d losses", len(points), len(losses))
	}

	nDims := m.sp.Len()
	x := mat.NewDense(len(points), nDims, nil)
	y := mat.NewVecDense(len(points), nil)
	best := math.Inf(1)
	for i, p := range points {
		u := m.normalize(p)
		for j := 0; j < nDims; j++ {
			x.Set(i, j, u[j])
		}
		y.SetVec(i, losses[i])
		if losses[i] < best {
			best = losses[i]
		}
	}
	m.acq.SetBest(best)
	return m.gp.Fit(x, y)
}

// Suggest returns the point maximizing the acquisition over a sampled
// candidate set. The model must be fitted.
func (m *Model) Suggest(rng *rand.Rand) (space.Point, error) {
	if !m.Fitted() {
		return nil, fmt.Errorf("surrogate: suggest called before fit")
	}

	nDims := m.sp.Len()
	cands := mat.NewDense(m.sampleCount, nDims, nil)
	for i := 0; i < m.sampleCount; i++ {
		for j := 0; j < nDims; j++ {
			cands.Set(i, j, rng.Float64())
		}
	}

	mean, variance, err := m.gp.Predict(cands)
	if err != nil {
		return nil, err
	}

	bestIdx, bestEI := 0, math.Inf(-1)
	for i := 0; i < m.sampleCount; i++ {
		ei := m.acq.Compute(mean.AtVec(i), math.Sqrt(variance.AtVec(i)))
		if ei > bestEI {
			bestEI = ei
			bestIdx = i
		}
	}

	u := mat.Row(nil, bestIdx, cands)
	if m.refine {
		u = m.refineCandidate(u)
	}
	return m.denormalize(u), nil
}

// refineCandidate polishes a unit-cube candidate with a derivative-free
// local search on the negated acquisition.
func (m *Model) refineCandidate(start []float64) []float64 {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			for i := range x {
				x[i] = math.Max(0, math.Min(x[i], 1))
			}
			xm := mat.NewDense(1, len(x), x)
			mean, variance, err := m.gp.Predict(xm)
			if err != nil {
				return math.Inf(1)
			}
			return -m.acq.Compute(mean.AtVec(0), math.Sqrt(variance.AtVec(0)))
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: 50,
		},
	}
	method := &optimize.NelderMead{SimplexSize: 0.1}

	result, err := optimize.Minimize(problem, append([]float64(nil), start...), settings, method)
	if err != nil {
		m.logger.Debug("acquisition refinement failed", zap.Error(err))
		return start
	}
	for i := range result.X {
		result.X[i] = math.Max(0, math.Min(result.X[i], 1))
	}
	return result.X
}

// RandomPoint draws a uniform point from the space.
func (m *Model) RandomPoint(rng *rand.Rand) space.Point {
	u := make([]float64, m.sp.Len())
	for i := range u {
		u[i] = rng.Float64()
	}
	return m.denormalize(u)
}

// LatinHypercube draws n stratified points covering the space, used for the
// initial exploration phase before the model has anything to say.
func (m *Model) LatinHypercube(n int, rng *rand.Rand) []space.Point {
	nDims := m.sp.Len()
	unit := make([][]float64, n)
	for j := range unit {
		unit[j] = make([]float64, nDims)
	}
	for i := 0; i < nDims; i++ {
		strata := make([]float64, n)
		for j := 0; j < n; j++ {
			strata[j] = (float64(j) + rng.Float64()) / float64(n)
		}
		rng.Shuffle(n, func(k, l int) {
			strata[k], strata[l] = strata[l], strata[k]
		})
		for j := 0; j < n; j++ {
			unit[j][i] = strata[j]
		}
	}

	points := make([]space.Point, n)
	for j := range unit {
		points[j] = m.denormalize(unit[j])
	}
	return points
}

func (m *Model) normalize(p space.Point) []float64 {
	u := make([]float64, len(p))
	for i, d := range m.sp.Dimensions() {
		low, high := d.Bounds()
		u[i] = (p[i] - low) / (high - low)
	}
	return u
}

func (m *Model) denormalize(u []float64) space.Point {
	p := make(space.Point, len(u))
	for i, d := range m.sp.Dimensions() {
		low, high := d.Bounds()
		p[i] = d.Clip(low + u[i]*(high-low))
	}
	return p
}
