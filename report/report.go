// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ RUN REPORT STORE
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: SQLite Persistence for Replay Snapshots
//
// Description:
//   One row per replay in runs, one row per suspicious line in detections,
//   one row per recommendation in recommendations. Counter snapshots are kept
//   as JSON columns so new counters need no migration. Run ids are derived
//   from the SHA3-256 digest of the trace.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package report

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"coherency/barrier"
	"coherency/detector"
	"coherency/monitor"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sugawarayuuta/sonnet"
	"golang.org/x/crypto/sha3"
)

// ErrNotFound is returned by Load for an unknown run id.
var ErrNotFound = errors.New("report: run not found")

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	protocol    TEXT    NOT NULL,
	trace       TEXT    NOT NULL,
	requests    INTEGER NOT NULL,
	started_at  INTEGER NOT NULL,
	duration_ns INTEGER NOT NULL,
	stats       TEXT    NOT NULL,
	counters    TEXT    NOT NULL,
	barriers    TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS detections (
	run_id         TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	address        INTEGER NOT NULL,
	access_count   INTEGER NOT NULL,
	thread_count   INTEGER NOT NULL,
	last_detection INTEGER NOT NULL,
	severity       REAL    NOT NULL
);
CREATE TABLE IF NOT EXISTS recommendations (
	run_id      TEXT    NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	address     INTEGER NOT NULL,
	kind        INTEGER NOT NULL,
	priority    INTEGER NOT NULL,
	improvement REAL    NOT NULL
);
CREATE INDEX IF NOT EXISTS detections_run ON detections(run_id);
CREATE INDEX IF NOT EXISTS recommendations_run ON recommendations(run_id);
`

// Run is one replay snapshot.
type Run struct {
	ID              string
	Protocol        string
	TraceDigest     string
	Requests        uint64
	StartedAt       time.Time
	Duration        time.Duration
	Stats           monitor.ProtocolStats
	Counters        monitor.Counters
	Barriers        barrier.Stats
	Detections      []detector.SuspiciousLine
	Recommendations []detector.Recommendation
}

// Summary is a runs row without its child tables or JSON columns.
type Summary struct {
	ID        string
	Protocol  string
	Requests  uint64
	StartedAt time.Time
	Duration  time.Duration
}

// Store is a SQLite-backed report store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("report: open %s: %w", path, err)
	}
	// One connection keeps an in-memory database alive and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Digest returns the hex SHA3-256 of a trace.
func Digest(trace []byte) string {
	sum := sha3.Sum256(trace)
	return hex.EncodeToString(sum[:])
}

// RunID derives a run id from the trace digest, the protocol and the start
// time, so replays of one trace under different settings stay distinct.
func RunID(traceDigest, protocol string, started time.Time) string {
	h := sha3.New256()
	h.Write([]byte(traceDigest))
	h.Write([]byte{0})
	h.Write([]byte(protocol))
	h.Write([]byte{0})
	h.Write([]byte(started.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// WRITES
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Save writes run and its child rows in one transaction. An empty ID is
// filled from RunID.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = RunID(run.TraceDigest, run.Protocol, run.StartedAt)
	}

	stats, err := sonnet.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("report: encode stats: %w", err)
	}
	counters, err := sonnet.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("report: encode counters: %w", err)
	}
	barriers, err := sonnet.Marshal(run.Barriers)
	if err != nil {
		return fmt.Errorf("report: encode barriers: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("report: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, protocol, trace, requests, started_at, duration_ns, stats, counters, barriers)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Protocol, run.TraceDigest, int64(run.Requests),
		run.StartedAt.UnixNano(), int64(run.Duration), string(stats), string(counters), string(barriers))
	if err != nil {
		return fmt.Errorf("report: insert run %s: %w", run.ID, err)
	}

	for _, d := range run.Detections {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO detections (run_id, address, access_count, thread_count, last_detection, severity)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, int64(d.Address), int64(d.AccessCount), d.ThreadCount, d.LastDetection.UnixNano(), float64(d.Severity))
		if err != nil {
			return fmt.Errorf("report: insert detection: %w", err)
		}
	}
	for _, r := range run.Recommendations {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO recommendations (run_id, address, kind, priority, improvement) VALUES (?, ?, ?, ?, ?)`,
			run.ID, int64(r.Address), int(r.Type), int(r.Priority), float64(r.ExpectedImprovement))
		if err != nil {
			return fmt.Errorf("report: insert recommendation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("report: commit: %w", err)
	}
	return nil
}

// Delete removes a run and its child rows.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("report: delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// READS
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Load reads one run with its child rows.
func (s *Store) Load(ctx context.Context, id string) (*Run, error) {
	var (
		run                       Run
		requests, started, durNs  int64
		stats, counters, barriers string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, protocol, trace, requests, started_at, duration_ns, stats, counters, barriers
		 FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &run.Protocol, &run.TraceDigest, &requests, &started, &durNs, &stats, &counters, &barriers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("report: load %s: %w", id, err)
	}
	run.Requests = uint64(requests)
	run.StartedAt = time.Unix(0, started)
	run.Duration = time.Duration(durNs)

	if err := sonnet.Unmarshal([]byte(stats), &run.Stats); err != nil {
		return nil, fmt.Errorf("report: decode stats: %w", err)
	}
	if err := sonnet.Unmarshal([]byte(counters), &run.Counters); err != nil {
		return nil, fmt.Errorf("report: decode counters: %w", err)
	}
	if err := sonnet.Unmarshal([]byte(barriers), &run.Barriers); err != nil {
		return nil, fmt.Errorf("report: decode barriers: %w", err)
	}

	if run.Detections, err = s.detections(ctx, id); err != nil {
		return nil, err
	}
	if run.Recommendations, err = s.recommendations(ctx, id); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) detections(ctx context.Context, id string) ([]detector.SuspiciousLine, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, access_count, thread_count, last_detection, severity
		 FROM detections WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("report: query detections: %w", err)
	}
	defer rows.Close()

	var out []detector.SuspiciousLine
	for rows.Next() {
		var addr, count, last int64
		var sev float64
		var d detector.SuspiciousLine
		if err := rows.Scan(&addr, &count, &d.ThreadCount, &last, &sev); err != nil {
			return nil, fmt.Errorf("report: scan detection: %w", err)
		}
		d.Address, d.AccessCount = uint64(addr), uint64(count)
		d.LastDetection = time.Unix(0, last)
		d.Severity = float32(sev)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) recommendations(ctx context.Context, id string) ([]detector.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, kind, priority, improvement FROM recommendations WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("report: query recommendations: %w", err)
	}
	defer rows.Close()

	var out []detector.Recommendation
	for rows.Next() {
		var addr int64
		var kind, prio int
		var imp float64
		if err := rows.Scan(&addr, &kind, &prio, &imp); err != nil {
			return nil, fmt.Errorf("report: scan recommendation: %w", err)
		}
		out = append(out, detector.Recommendation{
			Address:             uint64(addr),
			Type:                detector.RecommendationType(kind),
			Priority:            detector.Priority(prio),
			ExpectedImprovement: float32(imp),
		})
	}
	return out, rows.Err()
}

// List returns run summaries, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, protocol, requests, started_at, duration_ns FROM runs ORDER BY started_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("report: list: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var requests, started, durNs int64
		if err := rows.Scan(&sum.ID, &sum.Protocol, &requests, &started, &durNs); err != nil {
			return nil, fmt.Errorf("report: scan run: %w", err)
		}
		sum.Requests = uint64(requests)
		sum.StartedAt = time.Unix(0, started)
		sum.Duration = time.Duration(durNs)
		out = append(out, sum)
	}
	return out, rows.Err()
}
