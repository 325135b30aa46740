package hyperopt

import "fmt"

// Mode selects the optimizer topology for a run.
type Mode string

const (
	// ModeSingle runs one optimizer instance owned by the coordinator;
	// workers only evaluate.
	ModeSingle Mode = "single"
	// ModeMulti runs one independent optimizer per worker, exchanging
	// evaluated points through the shared board.
	ModeMulti Mode = "multi"
	// ModeShared runs reseeded copies of a single optimizer across workers,
	// all telling into the same observation history.
	ModeShared Mode = "shared"
)

// ParseMode validates a configured mode name.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case ModeSingle, ModeMulti, ModeShared:
		return Mode(name), nil
	}
	return "", fmt.Errorf("hyperopt: unsupported mode %q", name)
}

// Concurrent reports whether optimizer state moves between workers.
func (m Mode) Concurrent() bool { return m == ModeMulti || m == ModeShared }
