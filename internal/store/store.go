// Package store persists a search run: the trials log in a WAL-mode SQLite
// database and the stripped optimizer snapshots in a msgpack artifact next
// to it.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/copyleftdev/BOREAL/internal/hyperopt"
	"github.com/copyleftdev/BOREAL/internal/opt"
)

const (
	trialsFile    = "trials.db"
	snapshotsFile = "optimizers.msgpack"

	schemaVersion = "1"
)

// Store is the durable backend for one run directory. It implements
// hyperopt.Persister.
type Store struct {
	dir  string
	conn *sql.DB
}

// Open creates or reopens the run directory. Existing state from an
// incompatible schema fails here rather than mid-run.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create run directory: %w", err)
	}
	dbPath := filepath.Join(dir, trialsFile)
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	// A single writer owns the run; one connection avoids lock churn.
	conn.SetMaxOpenConns(1)

	s := &Store{dir: dir, conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error { return s.conn.Close() }

// Dir returns the run directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) migrate() error {
	ok, err := s.tableUsable()
	if err != nil {
		return err
	}
	if !ok {
		return hyperopt.NewError(hyperopt.ErrIncompatibleData,
			"the stored trials use an older schema and cannot be loaded; move the run directory aside to start fresh")
	}
	_, err = s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS trials (
			epoch           INTEGER PRIMARY KEY,
			optimizer_id    INTEGER NOT NULL,
			point           TEXT    NOT NULL,
			params          TEXT    NOT NULL,
			loss            REAL    NOT NULL,
			void            INTEGER NOT NULL,
			is_initial      INTEGER NOT NULL,
			is_best         INTEGER NOT NULL,
			trade_count     INTEGER NOT NULL,
			avg_profit      REAL    NOT NULL,
			total_profit    REAL    NOT NULL,
			profit_percent  REAL    NOT NULL,
			avg_duration_ns INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}
	return s.verifyVersion()
}

// tableUsable reports whether an existing trials table carries the columns
// this version needs. Trials recorded before best-tracking existed cannot
// be scored on resume.
func (s *Store) tableUsable() (bool, error) {
	var name string
	err := s.conn.QueryRow(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'trials'`,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: inspect schema: %w", err)
	}

	rows, err := s.conn.Query(`PRAGMA table_info(trials)`)
	if err != nil {
		return false, fmt.Errorf("store: inspect trials table: %w", err)
	}
	defer rows.Close()
	hasIsBest := false
	for rows.Next() {
		var (
			cid        int
			col, ctype string
			notNull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &col, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if col == "is_best" {
			hasIsBest = true
		}
	}
	return hasIsBest, rows.Err()
}

func (s *Store) verifyVersion() error {
	stored, ok, err := s.meta("schema_version")
	if err != nil {
		return err
	}
	if !ok {
		return s.setMeta("schema_version", schemaVersion)
	}
	if stored != schemaVersion {
		return hyperopt.NewErrorf(hyperopt.ErrIncompatibleData,
			"stored schema version %s does not match %s", stored, schemaVersion)
	}
	return nil
}

func (s *Store) meta(key string) (string, bool, error) {
	var value string
	err := s.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: read meta %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) setMeta(key, value string) error {
	_, err := s.conn.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("store: write meta %q: %w", key, err)
	}
	return nil
}

// VerifySpace records the search-space signature on first use and refuses
// state recorded under a different space layout.
func (s *Store) VerifySpace(signature string) error {
	stored, ok, err := s.meta("space_signature")
	if err != nil {
		return err
	}
	if !ok {
		return s.setMeta("space_signature", signature)
	}
	if stored != signature {
		return hyperopt.NewError(hyperopt.ErrIncompatibleData,
			"the stored trials were recorded under a different search space")
	}
	return nil
}

// AppendTrials writes newly scored trials in one transaction.
func (s *Store) AppendTrials(trials []hyperopt.Trial) error {
	if len(trials) == 0 {
		return nil
	}
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO trials (
			epoch, optimizer_id, point, params, loss, void, is_initial, is_best,
			trade_count, avg_profit, total_profit, profit_percent, avg_duration_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare append: %w", err)
	}
	defer stmt.Close()

	for _, t := range trials {
		point, err := json.Marshal(t.Point)
		if err != nil {
			return fmt.Errorf("store: encode point: %w", err)
		}
		params, err := json.Marshal(t.Params)
		if err != nil {
			return fmt.Errorf("store: encode params: %w", err)
		}
		_, err = stmt.Exec(
			t.Epoch, t.OptimizerID, string(point), string(params), t.Loss,
			boolInt(t.Void), boolInt(t.IsInitial), boolInt(t.IsBest),
			t.Metrics.TradeCount, t.Metrics.AvgProfit, t.Metrics.TotalProfit,
			t.Metrics.ProfitPercent, int64(t.Metrics.AvgDuration),
		)
		if err != nil {
			return fmt.Errorf("store: append epoch %d: %w", t.Epoch, err)
		}
	}
	return tx.Commit()
}

// LoadTrials returns the persisted trail in epoch order.
func (s *Store) LoadTrials() (hyperopt.Trials, error) {
	rows, err := s.conn.Query(`
		SELECT epoch, optimizer_id, point, params, loss, void, is_initial, is_best,
		       trade_count, avg_profit, total_profit, profit_percent, avg_duration_ns
		FROM trials ORDER BY epoch`)
	if err != nil {
		return nil, fmt.Errorf("store: load trials: %w", err)
	}
	defer rows.Close()

	var trials hyperopt.Trials
	for rows.Next() {
		var (
			t          hyperopt.Trial
			point      string
			params     string
			void       int
			isInitial  int
			isBest     int
			durationNs int64
		)
		err := rows.Scan(
			&t.Epoch, &t.OptimizerID, &point, &params, &t.Loss,
			&void, &isInitial, &isBest,
			&t.Metrics.TradeCount, &t.Metrics.AvgProfit, &t.Metrics.TotalProfit,
			&t.Metrics.ProfitPercent, &durationNs,
		)
		if err != nil {
			return nil, fmt.Errorf("store: scan trial: %w", err)
		}
		if err := json.Unmarshal([]byte(point), &t.Point); err != nil {
			return nil, fmt.Errorf("store: decode point for epoch %d: %w", t.Epoch, err)
		}
		if err := decodeParams(params, &t.Params); err != nil {
			return nil, fmt.Errorf("store: decode params for epoch %d: %w", t.Epoch, err)
		}
		t.Void = void != 0
		t.IsInitial = isInitial != 0
		t.IsBest = isBest != 0
		t.Metrics.AvgDuration = time.Duration(durationNs)
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

// decodeParams restores the params map; JSON turns every number into a
// float64, so integral values are narrowed back to int.
func decodeParams(raw string, out *map[string]any) error {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return err
	}
	for k, v := range *out {
		if f, ok := v.(float64); ok && f == float64(int(f)) {
			(*out)[k] = int(f)
		}
	}
	return nil
}

// SaveSnapshots atomically replaces the optimizer snapshot artifact.
func (s *Store) SaveSnapshots(snaps []opt.Snapshot) error {
	raw, err := msgpack.Marshal(snaps)
	if err != nil {
		return fmt.Errorf("store: encode snapshots: %w", err)
	}
	path := filepath.Join(s.dir, snapshotsFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("store: write snapshots: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: replace snapshots: %w", err)
	}
	return nil
}

// LoadSnapshots reads the optimizer snapshot artifact, empty when none
// exists yet.
func (s *Store) LoadSnapshots() ([]opt.Snapshot, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, snapshotsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read snapshots: %w", err)
	}
	var snaps []opt.Snapshot
	if err := msgpack.Unmarshal(raw, &snaps); err != nil {
		return nil, hyperopt.WrapError(hyperopt.ErrIncompatibleData, err,
			"the stored optimizer state is corrupted and cannot be loaded")
	}
	return snaps, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ hyperopt.Persister = (*Store)(nil)
