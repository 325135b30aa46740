// Package opt wraps the surrogate model behind the ask/tell contract the
// search engine coordinates: queued asks, batched tells with amortized
// refits, already-evaluated deduplication, and cheap copies for per-worker
// replicas.
package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/copyleftdev/BOREAL/internal/space"
	"github.com/copyleftdev/BOREAL/internal/surrogate"
)

// VoidLoss marks an evaluation too degenerate to score normally. Large
// enough to lose against any real objective value.
const VoidLoss = float64(math.MaxInt32)

// Config carries the knobs an Optimizer is built with.
type Config struct {
	// Seed is the random state. It doubles as the optimizer identifier,
	// which keys per-optimizer observation history across restarts.
	Seed int64

	// InitialPoints is how many random exploration points are evaluated
	// before the surrogate drives the search.
	InitialPoints int

	// AskPoints is how many points one ask emits. Values above one use the
	// lying strategy to diversify.
	AskPoints int

	// Lie selects the lying strategy used for multi-point asks.
	Lie LieStrategy

	// ModelOptions are passed through to the surrogate model.
	ModelOptions []surrogate.Option
}

// Optimizer is one stateful, non-reentrant ask/tell instance. It is owned by
// a single goroutine at a time; the engine moves instances between workers
// through a pool rather than sharing them.
type Optimizer struct {
	cfg Config
	sp  *space.Space

	model *surrogate.Model
	rng   *rand.Rand

	xi []space.Point
	yi []float64

	// pending holds asked, not-yet-returned points.
	pending []space.Point
	seen    map[string]struct{}

	// initStash holds the Latin-hypercube sample the initial exploration
	// phase draws from, generated lazily at the first ask.
	initStash []space.Point

	// voidSentinel is VoidLoss until a finite loss pins it to the worst
	// loss observed, after which void results are told at that value.
	voidSentinel float64
	exhausted    bool
}

// New creates an optimizer over the given search space.
func New(sp *space.Space, cfg Config) *Optimizer {
	if cfg.InitialPoints < 1 {
		cfg.InitialPoints = 1
	}
	if cfg.AskPoints < 1 {
		cfg.AskPoints = 1
	}
	if cfg.Lie == "" {
		cfg.Lie = LieDefault
	}
	return &Optimizer{
		cfg:          cfg,
		sp:           sp,
		model:        surrogate.NewModel(sp, cfg.ModelOptions...),
		rng:          rand.New(rand.NewSource(cfg.Seed)),
		seen:         make(map[string]struct{}),
		voidSentinel: VoidLoss,
	}
}

// ID returns the optimizer identifier (its creation seed).
func (o *Optimizer) ID() int64 { return o.cfg.Seed }

// VoidSentinel returns the current void-loss sentinel.
func (o *Optimizer) VoidSentinel() float64 { return o.voidSentinel }

// PinVoidSentinel pins the sentinel to the worst loss observed so far, once.
// Before any observation exists it stays at VoidLoss.
func (o *Optimizer) PinVoidSentinel() {
	if o.voidSentinel != VoidLoss || len(o.yi) == 0 {
		return
	}
	worst := o.yi[0]
	for _, y := range o.yi[1:] {
		if y > worst {
			worst = y
		}
	}
	o.voidSentinel = worst
}

// Exhausted reports whether the optimizer failed to produce a new point.
func (o *Optimizer) Exhausted() bool { return o.exhausted }

// MarkExhausted flags the optimizer so later holders skip it.
func (o *Optimizer) MarkExhausted() { o.exhausted = true }

// Reseed replaces the random state, detaching a replica's draws from its
// origin while keeping the identifier.
func (o *Optimizer) Reseed(seed int64) {
	o.rng = rand.New(rand.NewSource(seed))
}

// ObservationCount returns how many (point, loss) pairs have been told.
func (o *Optimizer) ObservationCount() int { return len(o.yi) }

// Observations returns the told history. The slices are shared; callers
// must not mutate them.
func (o *Optimizer) Observations() ([]space.Point, []float64) { return o.xi, o.yi }

// InitialPointsLeft returns how many random initial points remain before the
// surrogate takes over.
func (o *Optimizer) InitialPointsLeft() int {
	left := o.cfg.InitialPoints - len(o.yi)
	if left < 0 {
		return 0
	}
	return left
}

// PendingLeft returns how many asked points have not yet been handed out.
// The engine refits only when this runs dry, amortizing the fit cost across
// a full dispatch batch.
func (o *Optimizer) PendingLeft() int { return len(o.pending) }

// MarkSeen records points as already evaluated, used when resuming so
// restored trials are never proposed again.
func (o *Optimizer) MarkSeen(points []space.Point) {
	for _, p := range points {
		o.seen[p.Key()] = struct{}{}
	}
}

// Tell records observations. With fit=false the model is left stale so the
// caller can batch several tells before paying for one refit.
func (o *Optimizer) Tell(points []space.Point, losses []float64, fit bool) error {
	if len(points) != len(losses) {
		return fmt.Errorf("opt: %d points but %d losses", len(points), len(losses))
	}
	for i, p := range points {
		o.xi = append(o.xi, p.Copy())
		o.yi = append(o.yi, losses[i])
		o.seen[p.Key()] = struct{}{}
	}
	if fit && len(o.yi) > 0 {
		return o.model.Fit(o.xi, o.yi)
	}
	return nil
}

// Ask proposes n candidate points. Multi-point asks augment the observation
// set with fabricated outcomes per the lying strategy so one model emits
// diverse points before any real result exists.
func (o *Optimizer) Ask(n int, strat LieStrategy) []space.Point {
	if n < 1 {
		n = 1
	}
	points := make([]space.Point, 0, n)

	tellX := append([]space.Point(nil), o.xi...)
	tellY := append([]float64(nil), o.yi...)

	for i := 0; i < n; i++ {
		p := o.propose(tellX, tellY, i > 0)
		points = append(points, p)
		if i+1 < n {
			tellX = append(tellX, p)
			tellY = append(tellY, lieValue(strat.resolve(o.rng), o.yi))
		}
	}
	return points
}

// propose picks one point: random while in the initial phase, otherwise
// acquisition-guided. lied indicates fabricated observations were appended,
// forcing a scratch refit instead of reusing the model fitted at Tell.
func (o *Optimizer) propose(tellX []space.Point, tellY []float64, lied bool) space.Point {
	if len(tellY) < o.cfg.InitialPoints {
		return o.nextInitial()
	}

	model := o.model
	if lied || !model.Fitted() {
		model = surrogate.NewModel(o.sp, o.cfg.ModelOptions...)
		if err := model.Fit(tellX, tellY); err != nil {
			return o.model.RandomPoint(o.rng)
		}
	}
	p, err := model.Suggest(o.rng)
	if err != nil {
		return o.model.RandomPoint(o.rng)
	}
	return p
}

// nextInitial draws from a Latin-hypercube sample sized to the initial
// exploration budget, so the first points stratify the space instead of
// clumping. Once the sample is spent, uniform draws take over.
func (o *Optimizer) nextInitial() space.Point {
	if o.initStash == nil {
		o.initStash = o.model.LatinHypercube(o.cfg.InitialPoints, o.rng)
	}
	if len(o.initStash) > 0 {
		p := o.initStash[0]
		o.initStash = o.initStash[1:]
		return p
	}
	return o.model.RandomPoint(o.rng)
}

// Next yields the next not-yet-evaluated point, drawing from the pending
// queue and asking for a fresh batch when it runs dry. A repeated point
// triggers one retry under a perturbed seed; a second repeat reports
// exhaustion for this cycle instead of looping forever.
func (o *Optimizer) Next(strat LieStrategy) (space.Point, bool) {
	for attempt := 0; attempt < 2; attempt++ {
		if len(o.pending) == 0 {
			o.pending = o.Ask(o.cfg.AskPoints, strat)
		}
		for len(o.pending) > 0 {
			p := o.pending[0]
			o.pending = o.pending[1:]
			if _, dup := o.seen[p.Key()]; dup {
				continue
			}
			o.seen[p.Key()] = struct{}{}
			return p, true
		}
		// Every pending point was already evaluated: perturb the random
		// state and ask once more.
		o.rng = rand.New(rand.NewSource(o.rng.Int63()))
	}
	o.exhausted = true
	return nil, false
}

// Copy clones the observed history into a fresh instance under a new seed,
// without re-running the model fit. The copy shares no mutable state with
// the original.
func (o *Optimizer) Copy(seed int64) *Optimizer {
	cfg := o.cfg
	cfg.Seed = seed
	c := New(o.sp, cfg)
	c.xi = make([]space.Point, len(o.xi))
	for i, p := range o.xi {
		c.xi[i] = p.Copy()
	}
	c.yi = append([]float64(nil), o.yi...)
	for k := range o.seen {
		c.seen[k] = struct{}{}
	}
	c.voidSentinel = o.voidSentinel
	c.exhausted = o.exhausted
	return c
}

// NextSeed draws a seed for derived optimizers from this instance's random
// state, keeping replica creation reproducible.
func (o *Optimizer) NextSeed() int64 {
	return o.rng.Int63n(int64(VoidLoss))
}

// Clear drops the observation history, the pending queue, and the fitted
// model, leaving an instance that is cheap to move between workers or
// persist. The dedup set and void sentinel survive.
func (o *Optimizer) Clear() *Optimizer {
	o.xi = nil
	o.yi = nil
	o.pending = nil
	o.initStash = nil
	o.model = surrogate.NewModel(o.sp, o.cfg.ModelOptions...)
	return o
}

func lieValue(strat LieStrategy, yi []float64) float64 {
	if len(yi) == 0 {
		return 0
	}
	switch strat {
	case LieClMax:
		worst := yi[0]
		for _, y := range yi[1:] {
			if y > worst {
				worst = y
			}
		}
		return worst
	case LieClMean:
		sum := 0.0
		for _, y := range yi {
			sum += y
		}
		return sum / float64(len(yi))
	default: // cl_min
		best := yi[0]
		for _, y := range yi[1:] {
			if y < best {
				best = y
			}
		}
		return best
	}
}
