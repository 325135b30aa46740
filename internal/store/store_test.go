package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/BOREAL/internal/backtest"
	"github.com/copyleftdev/BOREAL/internal/hyperopt"
	"github.com/copyleftdev/BOREAL/internal/opt"
	"github.com/copyleftdev/BOREAL/internal/space"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrials() hyperopt.Trials {
	return hyperopt.Trials{
		{
			Epoch:       1,
			OptimizerID: 42,
			Point:       space.Point{3, 1},
			Params:      map[string]any{"x": 3, "y": 1},
			Loss:        4,
			Metrics: backtest.TradeMetrics{
				TradeCount:    12,
				AvgProfit:     0.01,
				TotalProfit:   0.12,
				ProfitPercent: 12,
				AvgDuration:   45 * time.Minute,
			},
			IsInitial: true,
			IsBest:    true,
		},
		{
			Epoch:       2,
			OptimizerID: 42,
			Point:       space.Point{0, 2},
			Params:      map[string]any{"x": 0, "y": 2},
			Loss:        7.5,
			Void:        true,
		},
	}
}

func TestAppendLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	want := sampleTrials()
	require.NoError(t, s.AppendTrials(want))

	got, err := s.LoadTrials()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, want, got)
}

func TestLoadTrialsEmpty(t *testing.T) {
	s := openTestStore(t)
	got, err := s.LoadTrials()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.AppendTrials(sampleTrials()[:1]))
	require.NoError(t, s.Close())

	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.AppendTrials(sampleTrials()[1:]))

	got, err := s.LoadTrials()
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Epoch)
	assert.Equal(t, 2, got[1].Epoch)
}

func TestSnapshotsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	got, err := s.LoadSnapshots()
	require.NoError(t, err)
	assert.Empty(t, got)

	want := []opt.Snapshot{
		{ID: 42, Seed: 99, VoidSentinel: 7.5},
		{ID: 43, Seed: 100, VoidSentinel: opt.VoidLoss},
	}
	require.NoError(t, s.SaveSnapshots(want))

	got, err = s.LoadSnapshots()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Saving again replaces, not appends.
	require.NoError(t, s.SaveSnapshots(want[:1]))
	got, err = s.LoadSnapshots()
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestVerifySpace(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, s.VerifySpace("sig-a"))
	require.NoError(t, s.VerifySpace("sig-a"))
	err = s.VerifySpace("sig-b")
	assert.ErrorIs(t, err, hyperopt.ErrIncompatibleData)
	require.NoError(t, s.Close())

	// The recorded signature survives a reopen.
	s, err = Open(dir)
	require.NoError(t, err)
	defer s.Close()
	assert.ErrorIs(t, s.VerifySpace("sig-b"), hyperopt.ErrIncompatibleData)
}

func TestOldSchemaRefused(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	// Simulate a trials table from before best-tracking existed.
	_, err = s.conn.Exec(`DROP TABLE trials`)
	require.NoError(t, err)
	_, err = s.conn.Exec(`CREATE TABLE trials (
		epoch INTEGER PRIMARY KEY, loss REAL NOT NULL
	)`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(dir)
	assert.ErrorIs(t, err, hyperopt.ErrIncompatibleData)
}

func TestCorruptSnapshotsRefused(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.SaveSnapshots([]opt.Snapshot{{ID: 1}}))

	path := filepath.Join(s.Dir(), snapshotsFile)
	writeGarbage(t, path)

	_, err := s.LoadSnapshots()
	assert.ErrorIs(t, err, hyperopt.ErrIncompatibleData)
}

// writeGarbage overwrites a file with bytes no msgpack decoder accepts.
func writeGarbage(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte{0xc1, 0xff, 0x00}, 0o644))
}
