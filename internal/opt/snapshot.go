package opt

import (
	"math/rand"

	"github.com/copyleftdev/BOREAL/internal/space"
)

// Snapshot is the serializable remainder of an optimizer once the fitted
// model and point history are stripped: enough to resume cheaply, since the
// observations live in the persisted trials and the model refits from them.
type Snapshot struct {
	ID           int64   `msgpack:"id"`
	Seed         int64   `msgpack:"seed"`
	VoidSentinel float64 `msgpack:"void_sentinel"`
}

// Snapshot strips the optimizer for storage. The instance's random state is
// re-rooted on the recorded seed so the live optimizer and a later
// rehydration draw the same next point.
func (o *Optimizer) Snapshot() Snapshot {
	seed := o.rng.Int63()
	o.rng = rand.New(rand.NewSource(seed))
	return Snapshot{
		ID:           o.cfg.Seed,
		Seed:         seed,
		VoidSentinel: o.voidSentinel,
	}
}

// Rehydrate rebuilds an optimizer from a stored snapshot. History is not
// restored here; the engine replays persisted trials through Tell, which
// refits the model lazily.
func Rehydrate(sp *space.Space, snap Snapshot, cfg Config) *Optimizer {
	cfg.Seed = snap.ID
	o := New(sp, cfg)
	o.rng = rand.New(rand.NewSource(snap.Seed))
	o.voidSentinel = snap.VoidSentinel
	return o
}
