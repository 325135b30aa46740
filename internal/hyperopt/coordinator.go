// Package hyperopt coordinates the parameter search: it budgets epochs,
// dispatches candidate evaluations across a worker pool in one of three
// optimizer topologies, filters void results, scores and persists trials,
// and resumes a run from its durable state.
package hyperopt

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/copyleftdev/BOREAL/internal/backtest"
	"github.com/copyleftdev/BOREAL/internal/logging"
	"github.com/copyleftdev/BOREAL/internal/metrics"
	"github.com/copyleftdev/BOREAL/internal/opt"
	"github.com/copyleftdev/BOREAL/internal/space"
	"github.com/copyleftdev/BOREAL/internal/surrogate"
)

// Translator maps decoded candidate parameters to the explicit overrides an
// evaluation runs with.
type Translator func(params map[string]any) backtest.StrategyOverrides

// Config carries the run settings for a Coordinator.
type Config struct {
	// Mode selects the optimizer topology.
	Mode Mode

	// Jobs is the evaluation parallelism; in multi mode it is also the
	// optimizer count.
	Jobs int

	// AskPoints is how many points each ask emits.
	AskPoints int

	// TotalEpochs fixes the run length; <= 0 enables the adaptive ceiling.
	TotalEpochs int

	// Effort scales the exploration and duration coefficients.
	Effort float64

	// RandomState seeds the search; 0 draws a random seed.
	RandomState int64

	// MinTrades is the floor below which an evaluation is scored void.
	MinTrades int

	// Lie selects the multi-point ask strategy.
	Lie opt.LieStrategy

	// Refine enables Nelder-Mead polishing of each suggested point.
	Refine bool

	// Evaluate runs one backtest. Required.
	Evaluate backtest.Func

	// Loss scores the trade metrics; defaults to backtest.DefaultLoss.
	Loss backtest.LossFunc

	// Translate builds the strategy overrides from decoded parameters.
	// Defaults to placing every parameter in the buy group.
	Translate Translator

	// Progress receives the dot-per-evaluation stream and the batch
	// windows; io.Discard when nil.
	Progress io.Writer
}

// Coordinator owns a run: the trials log, the budget, and the optimizer
// topology. It is not reentrant; one Run executes at a time, while Status
// and Best may be called concurrently.
type Coordinator struct {
	cfg   Config
	sp    *space.Space
	store Persister
	log   *logging.Logger
	met   *metrics.Set

	budget *Budget
	board  *Board

	// initialPoints is the per-optimizer random exploration budget.
	initialPoints int

	// single mode keeps the one optimizer in the coordinator; concurrent
	// modes move instances through the pool.
	single *opt.Optimizer
	pool   chan *opt.Optimizer
	optIDs []int64

	// xi/yi hold the per-optimizer observation history replayed at each
	// checkout in concurrent modes. Mutated only between batches.
	xi map[int64][]space.Point
	yi map[int64][]float64

	mu         sync.RWMutex
	trials     Trials
	savedCount int
	voidCount  int
}

// New builds a coordinator, loading and validating any persisted state.
func New(sp *space.Space, cfg Config, store Persister, log *logging.Logger, met *metrics.Set) (*Coordinator, error) {
	if cfg.Evaluate == nil {
		return nil, NewError(ErrConfig, "no evaluator configured")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSingle
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, WrapError(ErrConfig, err, "bad mode")
	}
	if cfg.Jobs < 1 {
		cfg.Jobs = 1
	}
	if cfg.AskPoints < 1 {
		cfg.AskPoints = 1
	}
	if cfg.Effort == 0 {
		cfg.Effort = 1
	}
	if cfg.Loss == nil {
		cfg.Loss = backtest.DefaultLoss
	}
	if cfg.Translate == nil {
		cfg.Translate = func(params map[string]any) backtest.StrategyOverrides {
			return backtest.StrategyOverrides{Buy: params}
		}
	}
	if cfg.Progress == nil {
		cfg.Progress = io.Discard
	}
	if cfg.RandomState == 0 {
		cfg.RandomState = rand.New(rand.NewSource(time.Now().UnixNano())).Int63n(1<<16-1) + 1
	}
	if log == nil {
		log = logging.New(logging.InfoLevel, io.Discard)
	}

	if err := store.VerifySpace(sp.Signature()); err != nil {
		return nil, WrapError(ErrIncompatibleData, err, "search space changed")
	}
	trials, err := store.LoadTrials()
	if err != nil {
		return nil, err
	}
	if len(trials) > 0 {
		log.Info("loaded previous evaluations", map[string]interface{}{
			"count": len(trials),
		})
	}

	c := &Coordinator{
		cfg:    cfg,
		sp:     sp,
		store:  store,
		log:    log,
		met:    met,
		board:  NewBoard(),
		trials: trials,
		xi:     make(map[int64][]space.Point),
		yi:     make(map[int64][]float64),
	}
	c.savedCount = len(trials)
	for _, t := range trials {
		if t.Void {
			c.voidCount++
		}
	}

	c.budget = NewBudget(sp, cfg.Jobs, cfg.AskPoints, cfg.TotalEpochs, cfg.Effort)
	c.budget.Seed(trials)
	met.SetSearchSpaceSize(c.budget.SpaceSize)
	if best, ok := trials.Best(); ok {
		met.SetBestLoss(best.Loss)
	}

	// Asks are per worker in concurrent modes, so each optimizer gets a
	// slice of the global exploration budget.
	c.initialPoints = c.budget.InitialPoints
	if cfg.Mode.Concurrent() {
		c.initialPoints = c.budget.InitialPoints / cfg.AskPoints
		if c.initialPoints < 1 {
			c.initialPoints = 1
		}
	}

	if err := c.setupOptimizers(trials); err != nil {
		return nil, err
	}

	log.Info("search configured", map[string]interface{}{
		"mode":              string(cfg.Mode),
		"jobs":              cfg.Jobs,
		"random_state":      cfg.RandomState,
		"search_space_size": c.budget.SpaceSize,
		"min_epochs":        c.budget.MinEpochs,
		"initial_points":    c.budget.InitialPoints,
	})
	return c, nil
}

func (c *Coordinator) optimizerConfig(seed int64) opt.Config {
	return opt.Config{
		Seed:          seed,
		InitialPoints: c.initialPoints,
		AskPoints:     c.cfg.AskPoints,
		Lie:           c.cfg.Lie,
		ModelOptions: []surrogate.Option{
			surrogate.WithLogger(logging.NewZapLogger(c.log)),
			surrogate.WithRefinement(c.cfg.Refine),
		},
	}
}

// setupOptimizers builds the topology, re-hydrating persisted snapshots and
// replaying the trial history into the right instances.
func (c *Coordinator) setupOptimizers(trials Trials) error {
	snaps, err := c.store.LoadSnapshots()
	if err != nil {
		return err
	}
	grouped := trials.ByOptimizer()

	if !c.cfg.Mode.Concurrent() {
		if n := len(snaps); n > 0 {
			c.single = opt.Rehydrate(c.sp, snaps[n-1], c.optimizerConfig(0))
		} else {
			c.single = opt.New(c.sp, c.optimizerConfig(c.cfg.RandomState))
		}
		if own := grouped[c.single.ID()]; len(own) > 0 {
			pts, losses := own.Observations()
			if err := c.single.Tell(pts, losses, false); err != nil {
				return err
			}
		}
		// Never re-propose anything already on the trail, whichever
		// optimizer found it.
		allPts, _ := trials.Observations()
		c.single.MarkSeen(allPts)
		return nil
	}

	maxOpts := c.cfg.Jobs
	if c.cfg.Mode == ModeShared {
		maxOpts = 1
	}
	c.pool = make(chan *opt.Optimizer, maxOpts)

	switch {
	case len(snaps) == 0:
		base := opt.New(c.sp, c.optimizerConfig(c.cfg.RandomState))
		if c.cfg.Mode == ModeShared {
			c.optIDs = []int64{base.ID()}
			c.pool <- base
		} else {
			for i := 0; i < maxOpts; i++ {
				seed := base.NextSeed()
				replica := base.Copy(seed)
				c.optIDs = append(c.optIDs, seed)
				c.pool <- replica
			}
		}
	case len(snaps) == maxOpts:
		for _, s := range snaps {
			o := opt.Rehydrate(c.sp, s, c.optimizerConfig(0))
			c.optIDs = append(c.optIDs, o.ID())
			c.pool <- o
		}
	default:
		return NewErrorf(ErrIncompatibleData,
			"stored state has %d optimizers but the run needs %d; restart with matching parallelism or a fresh directory",
			len(snaps), maxOpts)
	}

	// Rebuild the per-optimizer history; trials from unknown optimizers
	// still seed the board so no point is evaluated twice.
	known := make(map[int64]bool, len(c.optIDs))
	for _, id := range c.optIDs {
		known[id] = true
	}
	for id, own := range grouped {
		if !known[id] {
			continue
		}
		pts, losses := own.Observations()
		c.xi[id] = pts
		c.yi[id] = losses
	}
	allPts, allLosses := trials.Observations()
	c.board.Seed(allPts, allLosses, c.cfg.Jobs)
	return nil
}

// Run executes batches until a stopping condition or cancellation. On
// cancellation the current batch's completed evaluations are scored and
// saved before returning nil.
func (c *Coordinator) Run(ctx context.Context) error {
	epochsSoFar := len(c.trials)
	prevBatch := -1

	for epochsSoFar > prevBatch || epochsSoFar < c.budget.MinEpochs {
		if ctx.Err() != nil {
			break
		}
		prevBatch = epochsSoFar

		batchLen := c.budget.BatchLen(epochsSoFar)
		if batchLen < 1 {
			break
		}
		fmt.Fprintf(c.cfg.Progress, "%d-%d/%d: ",
			epochsSoFar+1, epochsSoFar+batchLen, c.budget.Limit())

		started := time.Now()
		var batch []Trial
		if c.cfg.Mode.Concurrent() {
			batch = c.dispatchMulti(ctx, batchLen)
		} else {
			batch = c.dispatchSingle(ctx, batchLen, epochsSoFar)
		}
		c.met.ObserveBatch(time.Since(started).Seconds())
		fmt.Fprintln(c.cfg.Progress)

		saved, err := c.score(batch, epochsSoFar)
		if err != nil {
			return err
		}
		c.met.AddEpochs(saved)

		if c.cfg.Mode.Concurrent() {
			c.trackPoints(c.trials[epochsSoFar:])
			c.board.ResetBatch()
		}

		if len(batch) < batchLen {
			c.log.Warn("some scheduled evaluations were void", map[string]interface{}{
				"scheduled": batchLen,
				"scored":    len(batch),
			})
		}
		if saved == 0 && len(batch) > 1 {
			break
		}
		if saved == 0 && c.budget.SpaceSize < float64(batchLen+c.budget.Limit()) {
			c.log.Info("search space exhausted", map[string]interface{}{
				"error": ErrExhausted.Error(),
			})
			break
		}
		if saved == 0 && c.exhaustedAll() {
			c.log.Info("optimizers exhausted, terminating", map[string]interface{}{
				"error": ErrExhausted.Error(),
			})
			break
		}
		epochsSoFar += saved
		if c.budget.MaxEpochReached() {
			c.log.Info("max epoch reached, terminating", map[string]interface{}{
				"epochs": epochsSoFar,
			})
			break
		}
	}

	if err := c.persist(); err != nil {
		return err
	}
	c.mu.RLock()
	saved := c.savedCount
	c.mu.RUnlock()
	c.log.Info("run finished", map[string]interface{}{
		"epochs_saved": saved,
		"interrupted":  ctx.Err() != nil,
	})
	return nil
}

// score assigns epochs, flags strict improvements, appends to the trail,
// and persists the batch.
func (c *Coordinator) score(batch []Trial, frameStart int) (int, error) {
	c.mu.Lock()
	for i := range batch {
		t := &batch[i]
		t.Epoch = frameStart + i + 1
		if t.Void {
			c.voidCount++
			c.met.AddVoid(1)
		}
		if !t.Void && c.budget.IsBest(t.Loss) {
			t.IsBest = true
			c.budget.RecordBest(t.Epoch, t.Loss, t.IsInitial)
			c.met.SetBestLoss(t.Loss)
			c.log.Info("new best", map[string]interface{}{
				"epoch":  t.Epoch,
				"loss":   t.Loss,
				"params": t.Params,
			})
		}
		c.trials = append(c.trials, *t)
	}
	c.budget.FinishBatch(frameStart + len(batch))
	c.mu.Unlock()
	return len(batch), c.persist()
}

// persist appends unsaved trials and refreshes the optimizer snapshots.
func (c *Coordinator) persist() error {
	c.mu.Lock()
	pendingFrom := c.savedCount
	pending := append([]Trial(nil), c.trials[pendingFrom:]...)
	c.mu.Unlock()
	if len(pending) == 0 {
		return nil
	}
	if err := c.store.AppendTrials(pending); err != nil {
		return err
	}
	if err := c.store.SaveSnapshots(c.snapshots()); err != nil {
		return err
	}
	c.mu.Lock()
	c.savedCount = pendingFrom + len(pending)
	c.mu.Unlock()
	return nil
}

// snapshots strips the live optimizers for storage.
func (c *Coordinator) snapshots() []opt.Snapshot {
	if !c.cfg.Mode.Concurrent() {
		return []opt.Snapshot{c.single.Snapshot()}
	}
	n := cap(c.pool)
	snaps := make([]opt.Snapshot, 0, n)
	held := make([]*opt.Optimizer, 0, n)
	for i := 0; i < n; i++ {
		o := <-c.pool
		snaps = append(snaps, o.Snapshot())
		held = append(held, o)
	}
	for _, o := range held {
		c.pool <- o
	}
	return snaps
}

// exhaustedAll reports whether every optimizer failed to produce points.
func (c *Coordinator) exhaustedAll() bool {
	if !c.cfg.Mode.Concurrent() {
		return c.single.Exhausted()
	}
	n := cap(c.pool)
	held := make([]*opt.Optimizer, 0, n)
	all := true
	for i := 0; i < n; i++ {
		o := <-c.pool
		if !o.Exhausted() {
			all = false
		}
		held = append(held, o)
	}
	for _, o := range held {
		c.pool <- o
	}
	return all
}

// trackPoints folds freshly scored trials into the per-optimizer history.
func (c *Coordinator) trackPoints(fresh Trials) {
	for _, t := range fresh {
		if _, ok := c.xi[t.OptimizerID]; !ok {
			if !c.knownOptimizer(t.OptimizerID) {
				continue
			}
		}
		c.xi[t.OptimizerID] = append(c.xi[t.OptimizerID], t.Point)
		c.yi[t.OptimizerID] = append(c.yi[t.OptimizerID], t.Loss)
	}
}

func (c *Coordinator) knownOptimizer(id int64) bool {
	for _, known := range c.optIDs {
		if known == id {
			return true
		}
	}
	return false
}

// evaluate runs one backtest and scores it, marking the trial void when it
// produced too few trades to be interesting.
func (c *Coordinator) evaluate(ctx context.Context, optimizerID int64, p space.Point, isInitial bool) (Trial, error) {
	params := c.sp.Params(p)
	res, evalErr := c.cfg.Evaluate(ctx, c.cfg.Translate(params))
	if evalErr != nil {
		if ctx.Err() != nil {
			return Trial{}, evalErr
		}
		c.log.Warn("evaluation failed, scoring void", map[string]interface{}{
			"error": evalErr.Error(),
		})
	}

	loss := opt.VoidLoss
	void := true
	if evalErr == nil && res.Metrics.TradeCount >= c.cfg.MinTrades {
		loss = c.cfg.Loss(res.Metrics)
		void = false
	}
	return Trial{
		OptimizerID: optimizerID,
		Point:       p.Copy(),
		Params:      params,
		Loss:        loss,
		Metrics:     res.Metrics,
		Void:        void,
		IsInitial:   isInitial,
	}, nil
}

// filterVoid applies the void policy for one optimizer's results: before
// any usable loss exists void trials are dropped entirely; afterwards the
// sentinel is pinned to the worst observed loss and void trials are kept at
// that value.
func (c *Coordinator) filterVoid(o *opt.Optimizer, ts []Trial) []Trial {
	if o.VoidSentinel() == opt.VoidLoss && o.ObservationCount() < 1 {
		kept := make([]Trial, 0, len(ts))
		for _, t := range ts {
			if !t.Void {
				kept = append(kept, t)
			}
		}
		if dropped := len(ts) - len(kept); dropped > 0 {
			c.mu.Lock()
			c.voidCount += dropped
			c.mu.Unlock()
			c.met.AddVoid(dropped)
		}
		return kept
	}
	o.PinVoidSentinel()
	for i := range ts {
		if ts[i].Void {
			ts[i].Loss = o.VoidSentinel()
		}
	}
	return ts
}

// Status is a point-in-time view of the run for the monitor endpoints.
type Status struct {
	Mode       Mode    `json:"mode"`
	Jobs       int     `json:"jobs"`
	Epochs     int     `json:"epochs"`
	Limit      int     `json:"epoch_limit"`
	SpaceSize  float64 `json:"search_space_size"`
	VoidTrials int     `json:"void_trials"`
	HasBest    bool    `json:"has_best"`
	BestLoss   float64 `json:"best_loss,omitempty"`
	BestEpoch  int     `json:"best_epoch,omitempty"`
}

// Status reports run progress. Safe to call while Run executes.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := Status{
		Mode:       c.cfg.Mode,
		Jobs:       c.cfg.Jobs,
		Epochs:     len(c.trials),
		Limit:      c.budget.Limit(),
		SpaceSize:  c.budget.SpaceSize,
		VoidTrials: c.voidCount,
	}
	if best, ok := c.trials.Best(); ok {
		s.HasBest = true
		s.BestLoss = best.Loss
		s.BestEpoch = best.Epoch
	}
	return s
}

// Best returns the lowest-loss trial. Safe to call while Run executes.
func (c *Coordinator) Best() (Trial, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trials.Best()
}

// Trials returns a copy of the trail. Safe to call while Run executes.
func (c *Coordinator) Trials() Trials {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(Trials, len(c.trials))
	copy(out, c.trials)
	return out
}
