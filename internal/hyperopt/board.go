package hyperopt

import (
	"sync"

	"github.com/copyleftdev/BOREAL/internal/space"
)

type boardEntry struct {
	loss float64
	refs int
}

type batchObs struct {
	points []space.Point
	losses []float64
}

// Board is the cross-optimizer exchange used in multi and shared modes:
// evaluated points are published with a reference count so every other
// worker can read the result once instead of re-evaluating, and per-batch
// observations are tracked per optimizer for telling at the next checkout.
type Board struct {
	mu      sync.Mutex
	results map[string]boardEntry
	batch   map[int64]*batchObs
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		results: make(map[string]boardEntry),
		batch:   make(map[int64]*batchObs),
	}
}

// Seed preloads results from persisted trials so resumed optimizers skip
// points any of them already evaluated.
func (b *Board) Seed(points []space.Point, losses []float64, refs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range points {
		b.results[p.Key()] = boardEntry{loss: losses[i], refs: refs}
	}
}

// Lookup checks the asked points against published results. Known points
// are returned with their losses; each read decrements the point's
// reference count and the entry is dropped once every worker has seen it.
func (b *Board) Lookup(asked []space.Point) map[string]float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	known := make(map[string]float64)
	for _, p := range asked {
		key := p.Key()
		e, ok := b.results[key]
		if !ok {
			continue
		}
		known[key] = e.loss
		e.refs--
		if e.refs < 1 {
			delete(b.results, key)
		} else {
			b.results[key] = e
		}
	}
	return known
}

// Publish records freshly evaluated trials for the other workers (refs
// reads each) and appends them to the proposing optimizer's batch history.
func (b *Board) Publish(optimizerID int64, trials []Trial, refs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obs := b.batch[optimizerID]
	if obs == nil {
		obs = &batchObs{}
		b.batch[optimizerID] = obs
	}
	for _, t := range trials {
		b.results[t.Point.Key()] = boardEntry{loss: t.Loss, refs: refs}
		obs.points = append(obs.points, t.Point.Copy())
		obs.losses = append(obs.losses, t.Loss)
	}
}

// BatchObservations returns the points an optimizer published within the
// current batch, for re-telling after a checkout.
func (b *Board) BatchObservations(optimizerID int64) ([]space.Point, []float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obs := b.batch[optimizerID]
	if obs == nil {
		return nil, nil
	}
	points := make([]space.Point, len(obs.points))
	for i, p := range obs.points {
		points[i] = p.Copy()
	}
	losses := append([]float64(nil), obs.losses...)
	return points, losses
}

// ResetBatch clears the per-optimizer batch history between batches, once
// the coordinator has folded the results into the durable trail.
func (b *Board) ResetBatch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batch = make(map[int64]*batchObs)
}
