// Package checkpoint persists session snapshots to SQLite so an
// interrupted scan can resume without losing captured geometry. Point
// and coverage payloads are gob encoded and gzip compressed; small
// metadata travels as JSON columns for ad hoc inspection.
package checkpoint

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/scalpscan/scancore/internal/monitoring"
	"github.com/scalpscan/scancore/internal/scan"
	"github.com/scalpscan/scancore/internal/scan/coverage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoCheckpoint is returned by Latest when the session has no saved
// checkpoint.
var ErrNoCheckpoint = errors.New("no checkpoint for session")

// Checkpoint is one restorable snapshot of a scanning session.
type Checkpoint struct {
	ID         int64
	SessionID  string
	Phase      scan.Phase
	TakenAt    time.Time
	FrameCount int64

	Points   []scan.Point3D
	Coverage []coverage.CellRecord
	Metrics  scan.QualityMetrics
	Settings scan.QualitySettings
}

// Store writes and reads checkpoints. Safe for concurrent use; SQLite
// serializes writers internally.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the checkpoint database at path and
// applies any pending schema migrations. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	// modernc sqlite handles are not safe for concurrent writes over
	// multiple connections; a single connection also keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Closing m would close the shared DB connection, so it is left to
	// the garbage collector.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Save persists a checkpoint and returns its row id.
func (s *Store) Save(cp *Checkpoint) (int64, error) {
	if cp == nil {
		return 0, errors.New("nil checkpoint")
	}
	if cp.SessionID == "" {
		return 0, errors.New("checkpoint missing session id")
	}

	pointsBlob, err := serializePoints(cp.Points)
	if err != nil {
		return 0, fmt.Errorf("serialize points: %w", err)
	}
	coverageBlob, err := serializeCoverage(cp.Coverage)
	if err != nil {
		return 0, fmt.Errorf("serialize coverage: %w", err)
	}
	metricsJSON, err := json.Marshal(cp.Metrics)
	if err != nil {
		return 0, fmt.Errorf("marshal metrics: %w", err)
	}
	settingsJSON, err := json.Marshal(cp.Settings)
	if err != nil {
		return 0, fmt.Errorf("marshal settings: %w", err)
	}

	taken := cp.TakenAt
	if taken.IsZero() {
		taken = time.Now()
	}

	res, err := s.db.Exec(`INSERT INTO scan_checkpoints
		(session_id, phase, taken_unix_nanos, frame_count, point_count, points_blob, coverage_blob, metrics_json, settings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cp.SessionID, string(cp.Phase), taken.UnixNano(), cp.FrameCount,
		int64(len(cp.Points)), pointsBlob, coverageBlob, string(metricsJSON), string(settingsJSON))
	if err != nil {
		return 0, fmt.Errorf("insert checkpoint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	monitoring.Logf("checkpoint saved: session=%s id=%d points=%d", cp.SessionID, id, len(cp.Points))
	return id, nil
}

// Latest returns the most recent checkpoint for a session, or
// ErrNoCheckpoint when none exists.
func (s *Store) Latest(sessionID string) (*Checkpoint, error) {
	row := s.db.QueryRow(`SELECT checkpoint_id, session_id, phase, taken_unix_nanos, frame_count, points_blob, coverage_blob, metrics_json, settings_json
		FROM scan_checkpoints WHERE session_id = ?
		ORDER BY taken_unix_nanos DESC, checkpoint_id DESC LIMIT 1`, sessionID)
	return scanCheckpoint(row)
}

// Delete removes all checkpoints for a session, normally after the
// session completes cleanly. Returns the number of rows removed.
func (s *Store) Delete(sessionID string) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM scan_checkpoints WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete checkpoints: %w", err)
	}
	return res.RowsAffected()
}

// Sessions lists session ids that have at least one saved checkpoint,
// most recently checkpointed first.
func (s *Store) Sessions() ([]string, error) {
	rows, err := s.db.Query(`SELECT session_id FROM scan_checkpoints
		GROUP BY session_id ORDER BY MAX(taken_unix_nanos) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Prune keeps the newest keep checkpoints for a session and deletes the
// rest, bounding database growth during long scans.
func (s *Store) Prune(sessionID string, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.db.Exec(`DELETE FROM scan_checkpoints
		WHERE session_id = ? AND checkpoint_id NOT IN (
			SELECT checkpoint_id FROM scan_checkpoints WHERE session_id = ?
			ORDER BY taken_unix_nanos DESC, checkpoint_id DESC LIMIT ?
		)`, sessionID, sessionID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner) (*Checkpoint, error) {
	var (
		cp           Checkpoint
		phase        string
		takenNanos   int64
		pointsBlob   []byte
		coverageBlob []byte
		metricsJSON  string
		settingsJSON string
	)
	err := row.Scan(&cp.ID, &cp.SessionID, &phase, &takenNanos, &cp.FrameCount,
		&pointsBlob, &coverageBlob, &metricsJSON, &settingsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint row: %w", err)
	}

	cp.Phase = scan.Phase(phase)
	cp.TakenAt = time.Unix(0, takenNanos)

	if cp.Points, err = deserializePoints(pointsBlob); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	if cp.Coverage, err = deserializeCoverage(coverageBlob); err != nil {
		return nil, fmt.Errorf("decode coverage: %w", err)
	}
	if metricsJSON != "" {
		if err := json.Unmarshal([]byte(metricsJSON), &cp.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
	}
	if settingsJSON != "" {
		if err := json.Unmarshal([]byte(settingsJSON), &cp.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &cp, nil
}
