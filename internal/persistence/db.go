// Package persistence provides SQLite-based storage for runs, per-step
// layer statistics, and cell snapshots.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/retinasim/internal/cells"
	"github.com/talgya/retinasim/internal/engine"
	"github.com/talgya/retinasim/internal/space"
)

// ErrRunNotFound is returned when a run ID has no record.
var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// Run is one simulation run.
type Run struct {
	ID         string     `db:"id" json:"id"`
	Seed       int64      `db:"seed" json:"seed"`
	MaxSteps   uint64     `db:"max_steps" json:"max_steps"`
	LastTick   uint64     `db:"last_tick" json:"last_tick"`
	TotalCells int        `db:"total_cells" json:"total_cells"`
	ConfigYAML string     `db:"config_yaml" json:"-"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// LayerRow is one persisted layer statistic.
type LayerRow struct {
	Tick        uint64  `db:"tick" json:"tick"`
	TypeTag     int     `db:"type_tag" json:"type_tag"`
	Count       int     `db:"count" json:"count"`
	Moving      int     `db:"moving" json:"moving"`
	Settled     int     `db:"settled" json:"settled"`
	MeanDepth   float64 `db:"mean_depth" json:"mean_depth"`
	DepthStdDev float64 `db:"depth_stddev" json:"depth_stddev"`
}

type cellRow struct {
	Idx      int     `db:"idx"`
	TypeTag  int     `db:"type_tag"`
	Diameter float64 `db:"diameter"`
	X        float64 `db:"x"`
	Y        float64 `db:"y"`
	Z        float64 `db:"z"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		max_steps INTEGER NOT NULL,
		last_tick INTEGER NOT NULL DEFAULT 0,
		total_cells INTEGER NOT NULL,
		config_yaml TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS layer_stats (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		type_tag INTEGER NOT NULL,
		count INTEGER NOT NULL,
		moving INTEGER NOT NULL,
		settled INTEGER NOT NULL,
		mean_depth REAL NOT NULL,
		depth_stddev REAL NOT NULL,
		PRIMARY KEY (run_id, tick, type_tag)
	);

	CREATE TABLE IF NOT EXISTS cells (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		idx INTEGER NOT NULL,
		type_tag INTEGER NOT NULL,
		diameter REAL NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		PRIMARY KEY (run_id, tick, idx)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_layer_stats_type ON layer_stats(run_id, type_tag);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// CreateRun records the start of a run and returns its new ID.
func (db *DB) CreateRun(seed int64, maxSteps uint64, totalCells int, configYAML string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(`INSERT INTO runs
		(id, seed, max_steps, total_cells, config_yaml, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, seed, maxSteps, totalCells, configYAML, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	if err := db.SaveMeta("last_run", id); err != nil {
		return "", fmt.Errorf("save meta: %w", err)
	}
	return id, nil
}

// UpdateRunTick records progress of a run.
func (db *DB) UpdateRunTick(runID string, tick uint64) error {
	_, err := db.conn.Exec("UPDATE runs SET last_tick = ? WHERE id = ?", tick, runID)
	return err
}

// FinishRun marks a run complete at the given tick.
func (db *DB) FinishRun(runID string, tick uint64) error {
	res, err := db.conn.Exec(
		"UPDATE runs SET last_tick = ?, finished_at = ? WHERE id = ?",
		tick, time.Now().UTC(), runID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun loads a run record.
func (db *DB) GetRun(runID string) (Run, error) {
	var r Run
	err := db.conn.Get(&r, "SELECT * FROM runs WHERE id = ?", runID)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// ListRuns returns runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC LIMIT ?", limit)
	return runs, err
}

// SaveLayerStats appends the per-type statistics of one step.
func (db *DB) SaveLayerStats(runID string, st engine.SimStats) error {
	if len(st.Layers) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, l := range st.Layers {
		_, err := tx.Exec(`INSERT OR REPLACE INTO layer_stats
			(run_id, tick, type_tag, count, moving, settled, mean_depth, depth_stddev)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, st.Tick, int(l.Type), l.Count, l.Moving, l.Settled, l.MeanDepth, l.DepthStdDev,
		)
		if err != nil {
			return fmt.Errorf("insert layer %s: %w", l.Name, err)
		}
	}

	return tx.Commit()
}

// LayerHistory returns the stored statistics of one type, oldest first.
func (db *DB) LayerHistory(runID string, t cells.CellType) ([]LayerRow, error) {
	var rows []LayerRow
	err := db.conn.Select(&rows, `SELECT tick, type_tag, count, moving, settled, mean_depth, depth_stddev
		FROM layer_stats WHERE run_id = ? AND type_tag = ? ORDER BY tick`,
		runID, int(t),
	)
	return rows, err
}

// SaveCells writes a full cell snapshot for one tick (replacing any
// earlier snapshot of the same tick).
func (db *DB) SaveCells(runID string, tick uint64, snapshot []cells.Cell) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM cells WHERE run_id = ? AND tick = ?", runID, tick); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO cells
		(run_id, tick, idx, type_tag, diameter, x, y, z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range snapshot {
		_, err := stmt.Exec(runID, tick, i, int(c.Type), c.Diameter,
			c.Position.X(), c.Position.Y(), c.Position.Z())
		if err != nil {
			return fmt.Errorf("insert cell %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// LoadCells restores a snapshot into a population. Each cell is rebuilt
// through cells.NewCell so its migration rule matches its type tag.
func (db *DB) LoadCells(runID string, tick uint64) (*cells.Population, error) {
	var rows []cellRow
	err := db.conn.Select(&rows, `SELECT idx, type_tag, diameter, x, y, z
		FROM cells WHERE run_id = ? AND tick = ? ORDER BY idx`, runID, tick)
	if err != nil {
		return nil, err
	}

	pop := cells.NewPopulation()
	pop.Reserve(len(rows))
	for _, r := range rows {
		c := cells.NewCell(cells.CellType(r.TypeTag), space.Vec3{r.X, r.Y, r.Z})
		c.Diameter = r.Diameter
		pop.Append(c)
	}
	return pop, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// SaveRunState saves the final snapshot and closes out the run.
func (db *DB) SaveRunState(runID string, sim *engine.Simulation) error {
	tick := sim.CurrentTick()
	snapshot := sim.Snapshot()
	slog.Info("saving run state", "run", runID, "tick", tick, "cells", len(snapshot))

	if err := db.SaveCells(runID, tick, snapshot); err != nil {
		return fmt.Errorf("save cells: %w", err)
	}
	if err := db.SaveLayerStats(runID, sim.CurrentStats()); err != nil {
		return fmt.Errorf("save layer stats: %w", err)
	}
	if err := db.FinishRun(runID, tick); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	slog.Info("run state saved", "run", runID)
	return nil
}
