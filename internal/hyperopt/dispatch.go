package hyperopt

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/copyleftdev/BOREAL/internal/opt"
	"github.com/copyleftdev/BOREAL/internal/space"
)

// dispatchSingle runs one batch in single-optimizer mode: the coordinator
// goroutine asks and tells while workers only evaluate. Completed results
// are absorbed between asks, refitting the model only when the pending ask
// queue runs dry so earlier asks of the same batch stay valid.
func (c *Coordinator) dispatchSingle(ctx context.Context, batchLen, epochsSoFar int) []Trial {
	o := c.single
	results := make(chan Trial, batchLen)
	sem := make(chan struct{}, c.cfg.Jobs)
	var wg sync.WaitGroup

	var batch []Trial
	var completed []Trial

	drain := func() {
		for {
			select {
			case t := <-results:
				completed = append(completed, t)
			default:
				return
			}
		}
	}
	absorb := func(fit bool) {
		if len(completed) == 0 {
			return
		}
		kept := c.filterVoid(o, completed)
		completed = nil
		if len(kept) == 0 {
			return
		}
		pts, losses := Trials(kept).Observations()
		if err := o.Tell(pts, losses, fit); err != nil {
			c.log.Warn("model update failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		batch = append(batch, kept...)
	}

	for r := 0; r < batchLen; r++ {
		if ctx.Err() != nil {
			break
		}
		fit := o.PendingLeft() == 0
		drain()
		absorb(fit)

		p, ok := o.Next(c.cfg.Lie)
		if !ok {
			c.log.Warn("optimizer produced no new point", map[string]interface{}{
				"error": ErrExhausted.Error(),
			})
			break
		}
		isInitial := epochsSoFar+r < c.budget.InitialPoints

		wg.Add(1)
		sem <- struct{}{}
		go func(p space.Point, initial bool) {
			defer wg.Done()
			defer func() { <-sem }()
			t, err := c.evaluate(ctx, o.ID(), p, initial)
			if err != nil {
				return
			}
			results <- t
		}(p, isInitial)
		fmt.Fprint(c.cfg.Progress, ".")
	}

	wg.Wait()
	drain()
	absorb(false)
	return batch
}

// dispatchMulti runs one batch with per-worker optimizer checkouts, for the
// multi and shared topologies.
func (c *Coordinator) dispatchMulti(ctx context.Context, batchLen int) []Trial {
	results := make(chan []Trial, batchLen)
	sem := make(chan struct{}, c.cfg.Jobs)
	var wg sync.WaitGroup

	for i := 0; i < batchLen; i++ {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if ts := c.workerObjective(ctx); len(ts) > 0 {
				results <- ts
			}
		}()
		fmt.Fprint(c.cfg.Progress, ".")
	}
	wg.Wait()

	var batch []Trial
	for {
		select {
		case ts := <-results:
			batch = append(batch, ts...)
		default:
			return batch
		}
	}
}

// checkout hands a worker an optimizer. In multi mode the instance leaves
// the pool until the worker is done; in shared mode the pooled instance
// only advances its random state and the worker gets a reseeded replica, so
// concurrent workers explore different points of the same history.
func (c *Coordinator) checkout() *opt.Optimizer {
	o := <-c.pool
	if c.cfg.Mode == ModeShared {
		// Derive the replica while the base is held exclusively; once the
		// base is back in the pool another worker may mark it exhausted.
		seed := o.NextSeed()
		replica := o.Copy(o.ID())
		replica.Reseed(seed)
		c.pool <- o
		return replica
	}
	return o
}

// checkin returns an instance to the pool, stripped of bulk state. Shared
// replicas are discarded; their base stays pooled.
func (c *Coordinator) checkin(o *opt.Optimizer, exhausted bool) {
	if c.cfg.Mode == ModeShared {
		if exhausted {
			base := <-c.pool
			base.MarkExhausted()
			c.pool <- base
		}
		return
	}
	if exhausted {
		o.MarkExhausted()
	}
	c.pool <- o.Clear()
}

// workerObjective is one worker pass in a concurrent topology: check out an
// optimizer, rebuild its model from the known history, ask until enough
// unevaluated points are found (skipping points already on the board),
// evaluate them, and publish the results.
func (c *Coordinator) workerObjective(ctx context.Context) []Trial {
	o := c.checkout()
	if o.Exhausted() {
		c.checkin(o, true)
		return nil
	}

	// The instance left the pool without bulk state; rebuild it from the
	// durable history plus whatever this batch already produced.
	pts := append([]space.Point(nil), c.xi[o.ID()]...)
	losses := append([]float64(nil), c.yi[o.ID()]...)
	bPts, bLosses := c.board.BatchObservations(o.ID())
	pts = append(pts, bPts...)
	losses = append(losses, bLosses...)
	if len(pts) > 0 {
		if err := o.Tell(pts, losses, true); err != nil {
			c.log.Warn("model rebuild failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	var (
		doneX []space.Point
		doneY []float64
		todo  []space.Point
		told  int
		prev  string
	)
	seenDone := make(map[string]struct{})

	for !o.Exhausted() && float64(o.ObservationCount()) < c.budget.SpaceSize {
		asked := o.Ask(c.cfg.AskPoints, c.cfg.Lie)
		keys := pointKeys(asked)
		if keys == prev {
			// The optimizer keeps returning the same points; give up on
			// this checkout.
			break
		}
		prev = keys

		known := c.board.Lookup(asked)
		for _, p := range asked {
			if loss, ok := known[p.Key()]; ok {
				if _, dup := seenDone[p.Key()]; !dup {
					seenDone[p.Key()] = struct{}{}
					doneX = append(doneX, p)
					doneY = append(doneY, loss)
				}
			} else {
				todo = append(todo, p)
			}
		}
		if len(todo) >= c.cfg.AskPoints {
			break
		}
		// Not enough fresh work: fold in what other workers finished, or
		// perturb the random state to escape the evaluated region.
		if len(doneX) > told {
			if err := o.Tell(doneX[told:], doneY[told:], true); err != nil {
				c.log.Warn("model update failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			told = len(doneX)
		} else {
			o.Reseed(o.NextSeed())
		}
	}

	if len(todo) < 1 {
		c.checkin(o, true)
		return nil
	}

	initialLeft := o.InitialPointsLeft()
	trials := make([]Trial, 0, len(todo))
	for n, p := range todo {
		if ctx.Err() != nil {
			break
		}
		t, err := c.evaluate(ctx, o.ID(), p, initialLeft-n > 0)
		if err != nil {
			continue
		}
		trials = append(trials, t)
	}

	kept := c.filterVoid(o, trials)
	id := o.ID()
	c.checkin(o, false)
	if len(kept) > 0 {
		c.board.Publish(id, kept, c.cfg.Jobs-1)
	}
	return kept
}

func pointKeys(points []space.Point) string {
	keys := make([]string, len(points))
	for i, p := range points {
		keys[i] = p.Key()
	}
	return strings.Join(keys, "|")
}
