package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-server/internal/logging"
	"media-server/internal/metrics"
	"media-server/internal/probe"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// Database persists probe results so a restart does not re-run ffprobe for
// every file in the library.
type Database struct {
	db     *sql.DB
	dbPath string
}

// New opens (creating if needed) the SQLite database at dbPath. The parent
// directory must exist and be writable; startup.LoadConfig checks this.
func New(ctx context.Context, dbPath string) (*Database, error) {
	logging.Info("Probe database path: %s", dbPath)

	if err := diagnoseDatabasePermissions(dbPath); err != nil {
		logging.Warn("Database permission diagnostics: %v", err)
	}

	// WAL lets readers proceed while a probe result is written.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(time.Hour)

	d := &Database{db: db, dbPath: dbPath}

	if err := d.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	logging.Info("Probe database initialized at %s", dbPath)
	return d, nil
}

func (d *Database) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS probe_results (
		path TEXT PRIMARY KEY,
		size INTEGER NOT NULL,
		mod_time INTEGER NOT NULL,
		result TEXT NOT NULL,
		probed_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_probe_results_probed_at ON probe_results(probed_at);
	`

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.db.Close()
}

// GetProbe returns the stored result for key. A row for the same path with
// a different size or modification time is treated as a miss.
func (d *Database) GetProbe(ctx context.Context, key probe.Key) (probe.Result, bool, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_probe", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var raw string
	err = d.db.QueryRowContext(ctx,
		`SELECT result FROM probe_results WHERE path = ? AND size = ? AND mod_time = ?`,
		key.Path, key.Size, key.ModTime,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return probe.Result{}, false, nil
	}
	if err != nil {
		return probe.Result{}, false, err
	}

	var res probe.Result
	if err = json.Unmarshal([]byte(raw), &res); err != nil {
		return probe.Result{}, false, fmt.Errorf("decode stored probe for %s: %w", key.Path, err)
	}
	return res, true, nil
}

// PutProbe stores res for key, replacing any older version of the file.
func (d *Database) PutProbe(ctx context.Context, key probe.Key, res probe.Result) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put_probe", start, err) }()

	if res.Unknown {
		return nil
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO probe_results (path, size, mod_time, result, probed_at)
	VALUES (?, ?, ?, ?, strftime('%s', 'now'))
	ON CONFLICT(path) DO UPDATE SET
		size = excluded.size,
		mod_time = excluded.mod_time,
		result = excluded.result,
		probed_at = excluded.probed_at
	`, key.Path, key.Size, key.ModTime, string(raw))
	return err
}

// DeleteProbe removes the stored result for path.
func (d *Database) DeleteProbe(ctx context.Context, path string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_probe", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `DELETE FROM probe_results WHERE path = ?`, path)
	return err
}

// PruneProbes removes results probed before cutoff and returns how many
// rows were deleted.
func (d *Database) PruneProbes(ctx context.Context, cutoff time.Time) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("prune_probes", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `DELETE FROM probe_results WHERE probed_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// CountProbes returns the number of stored results.
func (d *Database) CountProbes(ctx context.Context) (int, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("count_probes", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var n int
	err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM probe_results`).Scan(&n)
	return n, err
}

// Ping reports whether the database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return d.db.PingContext(ctx)
}

// UpdateDBMetrics refreshes connection and row-count gauges.
func (d *Database) UpdateDBMetrics() {
	metrics.DBConnectionsOpen.Set(float64(d.db.Stats().OpenConnections))
	if n, err := d.CountProbes(context.Background()); err == nil {
		metrics.DBProbeRows.Set(float64(n))
	}
}

// recordQuery records database query metrics
func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// diagnoseDatabasePermissions logs the state of the database directory and
// files, and makes read-only WAL/SHM files writable again.
func diagnoseDatabasePermissions(dbPath string) error {
	dir := filepath.Dir(dbPath)

	dirInfo, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot stat database directory: %w", err)
	}
	logging.Debug("Database directory: %s (mode: %v)", dir, dirInfo.Mode())

	testFile := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("database directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		logging.Debug("Database file %s (mode: %v, size: %d bytes)", path, info.Mode(), info.Size())
		if info.Mode().Perm()&0o200 != 0 {
			continue
		}
		logging.Warn("Database file %s is read-only (mode %v)", path, info.Mode())
		if path == dbPath {
			continue
		}
		if chmodErr := os.Chmod(path, 0o600); chmodErr != nil {
			logging.Error("Failed to fix permissions on %s: %v", path, chmodErr)
		} else {
			logging.Info("Fixed permissions on %s", path)
		}
	}

	return nil
}
