package surrogate

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/BOREAL/internal/space"
)

func testSpace(t *testing.T) *space.Space {
	t.Helper()
	sp, err := space.New(
		space.NewInteger("x", 0, 10),
		space.NewReal("y", -1, 1),
	)
	require.NoError(t, err)
	return sp
}

func TestModelSuggestStaysInBounds(t *testing.T) {
	sp := testSpace(t)
	m := NewModel(sp, WithSampleCount(100))
	rng := rand.New(rand.NewSource(42))

	var points []space.Point
	var losses []float64
	for _, p := range m.LatinHypercube(8, rng) {
		points = append(points, p)
		losses = append(losses, p[0]+p[1])
	}
	require.NoError(t, m.Fit(points, losses))

	for i := 0; i < 10; i++ {
		p, err := m.Suggest(rng)
		require.NoError(t, err)
		require.Len(t, p, sp.Len())
		for j, d := range sp.Dimensions() {
			low, high := d.Bounds()
			assert.GreaterOrEqual(t, p[j], low)
			assert.LessOrEqual(t, p[j], high)
		}
		// Integer dimension values land on the grid.
		assert.Equal(t, p[0], float64(int(p[0])))
	}
}

func TestModelSuggestBeforeFit(t *testing.T) {
	m := NewModel(testSpace(t))
	_, err := m.Suggest(rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestModelFitValidation(t *testing.T) {
	m := NewModel(testSpace(t))
	assert.Error(t, m.Fit(nil, nil))
	assert.Error(t, m.Fit([]space.Point{{1, 0}}, []float64{1, 2}))
}

func TestLatinHypercubeCoverage(t *testing.T) {
	sp := testSpace(t)
	m := NewModel(sp)
	rng := rand.New(rand.NewSource(7))

	const n = 10
	points := m.LatinHypercube(n, rng)
	require.Len(t, points, n)

	for _, p := range points {
		for j, d := range sp.Dimensions() {
			low, high := d.Bounds()
			assert.GreaterOrEqual(t, p[j], low)
			assert.LessOrEqual(t, p[j], high)
		}
	}

	// The real dimension gets one point per stratum.
	occupied := make([]bool, n)
	for _, p := range points {
		bin := int(float64(n) * (p[1] + 1) / 2)
		if bin >= n {
			bin = n - 1
		}
		assert.False(t, occupied[bin], "two points in stratum %d", bin)
		occupied[bin] = true
	}
}

func TestModelSuggestPrefersLowLossRegion(t *testing.T) {
	sp, err := space.New(space.NewReal("x", 0, 10))
	require.NoError(t, err)
	m := NewModel(sp, WithSampleCount(1000))
	rng := rand.New(rand.NewSource(3))

	// Pronounced minimum near x=2.
	points := []space.Point{{0}, {1}, {2}, {3}, {5}, {8}, {10}}
	losses := []float64{4, 1, 0, 1, 9, 36, 64}
	require.NoError(t, m.Fit(points, losses))

	p, err := m.Suggest(rng)
	require.NoError(t, err)
	assert.Less(t, p[0], 6.0, "suggestion should avoid the high-loss region")
}

func TestModelDeterministicGivenSeed(t *testing.T) {
	sp := testSpace(t)
	points := []space.Point{{0, -1}, {5, 0}, {10, 1}, {2, 0.5}}
	losses := []float64{3, 1, 2, 0.5}

	suggest := func() space.Point {
		m := NewModel(sp, WithSampleCount(200))
		require.NoError(t, m.Fit(points, losses))
		p, err := m.Suggest(rand.New(rand.NewSource(99)))
		require.NoError(t, err)
		return p
	}

	assert.True(t, suggest().Equal(suggest()))
}
