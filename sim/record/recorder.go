// Package record persists per-step simulation counters to SQLite for offline
// analysis.
package record

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/structs"
	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"

	"github.com/inference-sim/swizzle-sim/sim"
)

// DefaultBatchSize is the number of buffered step rows that triggers a flush.
const DefaultBatchSize = 10000

// RunRow describes one recorded run.
type RunRow struct {
	RunID         string `db:"run_id"`
	Mode          string `db:"mode"`
	M             int    `db:"m"`
	N             int    `db:"n"`
	K             int    `db:"k"`
	GroupSizeM    int    `db:"group_size_m"`
	NumCTAs       int    `db:"num_ctas"`
	CacheCapacity int    `db:"cache_capacity"`
	Seed          int64  `db:"seed"`
}

// StepRow is one micro-step's outcome.
type StepRow struct {
	RunID      string `db:"run_id"`
	MicroStep  int    `db:"micro_step"`
	BatchIndex int    `db:"batch_index"`
	KIndex     int    `db:"k_index"`
	Hits       int    `db:"hits"`
	Misses     int    `db:"misses"`
	HitsA      int    `db:"hits_a"`
	MissesA    int    `db:"misses_a"`
	HitsB      int    `db:"hits_b"`
	MissesB    int    `db:"misses_b"`
	CacheLen   int    `db:"cache_len"`
}

const (
	runsTable  = "runs"
	stepsTable = "steps"
)

// Recorder buffers step rows and writes them to SQLite in batches. It
// implements sim.Observer; register it with Simulator.AddObserver after
// BeginRun.
type Recorder struct {
	mu        sync.Mutex
	db        *sql.DB
	path      string
	runID     string
	batchSize int
	pending   []StepRow
	err       error
	closed    bool
}

// DefaultPath returns a fresh database file name.
func DefaultPath() string {
	return "swizzle_steps_" + xid.New().String() + ".sqlite3"
}

// New opens (or creates) the database at path and prepares its tables.
// An empty path uses DefaultPath. Buffered rows are flushed at exit.
func New(path string) (*Recorder, error) {
	if path == "" {
		path = DefaultPath()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	r := &Recorder{db: db, path: path, batchSize: DefaultBatchSize}
	if err := r.createTables(); err != nil {
		_ = db.Close()
		return nil, err
	}
	logrus.Infof("Database created for recording: %s", path)

	atexit.Register(func() {
		if err := r.Flush(); err != nil {
			logrus.Warnf("recorder flush at exit: %v", err)
		}
	})
	return r, nil
}

// WithBatchSize sets the number of rows buffered before a flush.
func (r *Recorder) WithBatchSize(n int) *Recorder {
	if n < 1 {
		n = 1
	}
	r.mu.Lock()
	r.batchSize = n
	r.mu.Unlock()
	return r
}

// Path returns the database file path.
func (r *Recorder) Path() string {
	return r.path
}

// RunID returns the id of the current run, "" before BeginRun.
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

func columns(sample any) []string {
	fields := structs.New(sample).Fields()
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		cols = append(cols, f.Tag("db"))
	}
	return cols
}

func values(entry any) []any {
	fields := structs.New(entry).Fields()
	vals := make([]any, 0, len(fields))
	for _, f := range fields {
		vals = append(vals, f.Value())
	}
	return vals
}

func (r *Recorder) createTables() error {
	for _, t := range []struct {
		name   string
		sample any
	}{
		{runsTable, RunRow{}},
		{stepsTable, StepRow{}},
	} {
		q := "CREATE TABLE IF NOT EXISTS " + t.name + " (\n\t" + strings.Join(columns(t.sample), ", \n\t") + "\n);"
		if _, err := r.db.Exec(q); err != nil {
			return fmt.Errorf("creating table %s: %w", t.name, err)
		}
	}
	return nil
}

func insertSQL(table string, sample any) string {
	cols := columns(sample)
	marks := make([]string, len(cols))
	for i := range marks {
		marks[i] = "?"
	}
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
}

// BeginRun flushes anything pending, assigns a new run id and records the
// run's configuration. Subsequent steps are stored under that id.
func (r *Recorder) BeginRun(cfg sim.Config, key sim.SimulationKey) (string, error) {
	if err := r.Flush(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return "", fmt.Errorf("recorder %s is closed", r.path)
	}
	run := RunRow{
		RunID:         xid.New().String(),
		Mode:          string(cfg.Mode),
		M:             cfg.M,
		N:             cfg.N,
		K:             cfg.K,
		GroupSizeM:    cfg.GroupSizeM,
		NumCTAs:       cfg.NumCTAs,
		CacheCapacity: cfg.CacheCapacity,
		Seed:          int64(key),
	}
	if _, err := r.db.Exec(insertSQL(runsTable, run), values(run)...); err != nil {
		return "", fmt.Errorf("recording run: %w", err)
	}
	r.runID = run.RunID
	return run.RunID, nil
}

// ObserveAccess implements sim.Observer. Individual accesses are not stored.
func (r *Recorder) ObserveAccess(sim.AccessEvent) {}

// ObserveStep implements sim.Observer. Steps observed after Close are dropped.
func (r *Recorder) ObserveStep(ev sim.StepEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		logrus.Debugf("recorder: dropping step %d after close", ev.MicroStep)
		return
	}
	r.pending = append(r.pending, StepRow{
		RunID:      r.runID,
		MicroStep:  ev.MicroStep,
		BatchIndex: ev.BatchIndex,
		KIndex:     ev.KIndex,
		Hits:       ev.Step.Hits,
		Misses:     ev.Step.Misses,
		HitsA:      ev.Step.HitsA,
		MissesA:    ev.Step.MissesA,
		HitsB:      ev.Step.HitsB,
		MissesB:    ev.Step.MissesB,
		CacheLen:   ev.CacheLen,
	})
	full := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if full {
		if err := r.Flush(); err != nil {
			logrus.Warnf("recorder flush: %v", err)
		}
	}
}

// Flush writes all buffered rows in one transaction. The first write error is
// sticky and returned by every later Flush and Close.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil || r.closed || len(r.pending) == 0 {
		return r.err
	}
	r.err = r.flushLocked()
	return r.err
}

func (r *Recorder) flushLocked() error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(insertSQL(stepsTable, StepRow{}))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range r.pending {
		if _, err := stmt.Exec(values(row)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert step %d: %w", row.MicroStep, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logrus.Debugf("recorder: flushed %d step rows to %s", len(r.pending), r.path)
	r.pending = r.pending[:0]
	return nil
}

// Close flushes and closes the database. Closing twice is a no-op.
func (r *Recorder) Close() error {
	flushErr := r.Flush()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return flushErr
	}
	r.closed = true
	if err := r.db.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}

// CountSteps returns the number of stored step rows for runID.
func (r *Recorder) CountSteps(runID string) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM "+stepsTable+" WHERE run_id = ?", runID).Scan(&n)
	return n, err
}

// SumCounters returns the per-run totals recomputed from stored step rows.
func (r *Recorder) SumCounters(runID string) (sim.Counters, error) {
	var c sim.Counters
	err := r.db.QueryRow(`SELECT
		COALESCE(SUM(hits), 0), COALESCE(SUM(misses), 0),
		COALESCE(SUM(hits_a), 0), COALESCE(SUM(misses_a), 0),
		COALESCE(SUM(hits_b), 0), COALESCE(SUM(misses_b), 0)
		FROM `+stepsTable+` WHERE run_id = ?`, runID).
		Scan(&c.Hits, &c.Misses, &c.HitsA, &c.MissesA, &c.HitsB, &c.MissesB)
	return c, err
}
