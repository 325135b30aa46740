package hyperopt

import "github.com/copyleftdev/BOREAL/internal/opt"

// Persister is the durable backend for a run: the append-only trials log
// and the stripped optimizer snapshots saved alongside it.
//
// Implementations must return an error matching ErrIncompatibleData when
// existing state cannot serve the current run (old trial schema, foreign
// search space).
type Persister interface {
	// LoadTrials returns all persisted trials in epoch order.
	LoadTrials() (Trials, error)

	// AppendTrials durably appends newly scored trials.
	AppendTrials(trials []Trial) error

	// SaveSnapshots replaces the stored optimizer snapshots.
	SaveSnapshots(snaps []opt.Snapshot) error

	// LoadSnapshots returns the stored optimizer snapshots, empty when the
	// run is fresh.
	LoadSnapshots() ([]opt.Snapshot, error)

	// VerifySpace records the search-space signature on first use and
	// fails with ErrIncompatibleData when a stored signature differs.
	VerifySpace(signature string) error
}
