// Package persistence stores finished map runs in SQLite.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/hexatlas/internal/atlas"
)

// ErrNotFound is returned when a run or hex does not exist.
var ErrNotFound = errors.New("persistence: not found")

// DB wraps a SQLite connection holding map runs.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		conn.SetMaxOpenConns(1)
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
		created_at INTEGER NOT NULL,
		source TEXT NOT NULL,
		center_lat REAL NOT NULL,
		center_lon REAL NOT NULL,
		edge_meters REAL NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		regions INTEGER NOT NULL,
		mode TEXT NOT NULL,
		hex_count INTEGER NOT NULL,
		failure_count INTEGER NOT NULL,
		tolerance_met INTEGER NOT NULL,
		segment_error TEXT NOT NULL,
		failures_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hexes (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		q INTEGER NOT NULL,
		r INTEGER NOT NULL,
		s INTEGER NOT NULL,
		lat REAL NOT NULL,
		lon REAL NOT NULL,
		elevation REAL,
		precipitation REAL,
		humidity REAL,
		slope REAL,
		vegetation REAL,
		terrain TEXT NOT NULL,
		confidence REAL NOT NULL,
		region INTEGER,
		PRIMARY KEY (run_id, q, r)
	);

	CREATE TABLE IF NOT EXISTS regions (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		id INTEGER NOT NULL,
		size INTEGER NOT NULL,
		centroid_lat REAL NOT NULL,
		centroid_lon REAL NOT NULL,
		dominant_terrain TEXT NOT NULL,
		mean_elevation REAL,
		elevation_stddev REAL,
		terrain_json TEXT NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_hexes_region ON hexes(run_id, region);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunInfo is the header row of a stored run.
type RunInfo struct {
	ID           string    `db:"id" json:"id"`
	CreatedAt    time.Time `db:"-" json:"created_at"`
	Source       string    `db:"source" json:"source"`
	CenterLat    float64   `db:"center_lat" json:"center_lat"`
	CenterLon    float64   `db:"center_lon" json:"center_lon"`
	EdgeMeters   float64   `db:"edge_meters" json:"edge_meters"`
	Width        int       `db:"width" json:"width"`
	Height       int       `db:"height" json:"height"`
	Regions      int       `db:"regions" json:"regions"`
	Mode         string    `db:"mode" json:"mode"`
	HexCount     int       `db:"hex_count" json:"hex_count"`
	FailureCount int       `db:"failure_count" json:"failure_count"`
	ToleranceMet bool      `db:"tolerance_met" json:"tolerance_met"`
	SegmentError string    `db:"segment_error" json:"segment_error,omitempty"`

	CreatedUnix int64 `db:"created_at" json:"-"`
}

// Run is a stored run with all of its records.
type Run struct {
	RunInfo
	Hexes    []atlas.HexRecord     `json:"hexes"`
	Regions  []atlas.RegionSummary `json:"regions"`
	Failures []atlas.FailureRecord `json:"failures"`
}

type hexRow struct {
	RunID string `db:"run_id"`
	atlas.HexRecord
}

type regionRow struct {
	RunID string `db:"run_id"`
	atlas.RegionSummary
	TerrainJSON string `db:"terrain_json"`
}

// SaveRun writes a finished run and returns its header. source describes
// where the attributes came from, e.g. "noise:42".
func (db *DB) SaveRun(res *atlas.Result, mode, source string) (RunInfo, error) {
	failures := make([]atlas.FailureRecord, len(res.Failures))
	for i, f := range res.Failures {
		failures[i] = f.Record()
	}
	failJSON, err := json.Marshal(failures)
	if err != nil {
		return RunInfo{}, fmt.Errorf("encode failures: %w", err)
	}

	records := res.Records()
	summaries := res.Summaries()
	now := time.Now().UTC().Truncate(time.Millisecond)
	info := RunInfo{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		CreatedUnix:  now.UnixMilli(),
		Source:       source,
		CenterLat:    res.Request.Center.Lat,
		CenterLon:    res.Request.Center.Lon,
		EdgeMeters:   res.Request.EdgeMeters,
		Width:        res.Request.Width,
		Height:       res.Request.Height,
		Regions:      res.Request.Regions,
		Mode:         mode,
		HexCount:     len(records),
		FailureCount: len(failures),
		ToleranceMet: res.Partition != nil && res.Partition.ToleranceMet,
	}
	if res.SegmentErr != nil {
		info.SegmentError = res.SegmentErr.Error()
	}

	slog.Info("saving run", "id", info.ID, "hexes", len(records), "regions", len(summaries))

	tx, err := db.conn.Beginx()
	if err != nil {
		return RunInfo{}, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO runs
		(id, created_at, source, center_lat, center_lon, edge_meters, width, height,
		 regions, mode, hex_count, failure_count, tolerance_met, segment_error, failures_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, info.CreatedUnix, info.Source, info.CenterLat, info.CenterLon, info.EdgeMeters,
		info.Width, info.Height, info.Regions, info.Mode, info.HexCount, info.FailureCount,
		info.ToleranceMet, info.SegmentError, string(failJSON),
	)
	if err != nil {
		return RunInfo{}, fmt.Errorf("insert run: %w", err)
	}

	hexStmt, err := tx.PrepareNamed(`INSERT INTO hexes
		(run_id, q, r, s, lat, lon, elevation, precipitation, humidity, slope, vegetation,
		 terrain, confidence, region)
		VALUES (:run_id, :q, :r, :s, :lat, :lon, :elevation, :precipitation, :humidity, :slope,
		 :vegetation, :terrain, :confidence, :region)`)
	if err != nil {
		return RunInfo{}, err
	}
	defer hexStmt.Close()

	for _, rec := range records {
		if _, err := hexStmt.Exec(hexRow{RunID: info.ID, HexRecord: rec}); err != nil {
			return RunInfo{}, fmt.Errorf("insert hex (%d,%d): %w", rec.Q, rec.R, err)
		}
	}

	regStmt, err := tx.PrepareNamed(`INSERT INTO regions
		(run_id, id, size, centroid_lat, centroid_lon, dominant_terrain, mean_elevation,
		 elevation_stddev, terrain_json)
		VALUES (:run_id, :id, :size, :centroid_lat, :centroid_lon, :dominant_terrain,
		 :mean_elevation, :elevation_stddev, :terrain_json)`)
	if err != nil {
		return RunInfo{}, err
	}
	defer regStmt.Close()

	for _, sum := range summaries {
		terrainJSON, _ := json.Marshal(sum.Terrain)
		row := regionRow{RunID: info.ID, RegionSummary: sum, TerrainJSON: string(terrainJSON)}
		if _, err := regStmt.Exec(row); err != nil {
			return RunInfo{}, fmt.Errorf("insert region %d: %w", sum.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return RunInfo{}, err
	}
	return info, nil
}

const runColumns = `id, created_at, source, center_lat, center_lon, edge_meters, width, height,
	regions, mode, hex_count, failure_count, tolerance_met, segment_error`

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]RunInfo, error) {
	var runs []RunInfo
	err := db.conn.Select(&runs,
		"SELECT "+runColumns+" FROM runs ORDER BY rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	for i := range runs {
		runs[i].CreatedAt = time.UnixMilli(runs[i].CreatedUnix).UTC()
	}
	return runs, nil
}

// GetRun returns the header of one run.
func (db *DB) GetRun(id string) (RunInfo, error) {
	var info RunInfo
	err := db.conn.Get(&info, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return RunInfo{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RunInfo{}, err
	}
	info.CreatedAt = time.UnixMilli(info.CreatedUnix).UTC()
	return info, nil
}

// LoadRun returns a run with its hexes (grid order), regions and failures.
func (db *DB) LoadRun(id string) (*Run, error) {
	info, err := db.GetRun(id)
	if err != nil {
		return nil, err
	}
	run := &Run{RunInfo: info}

	var failJSON string
	if err := db.conn.Get(&failJSON, "SELECT failures_json FROM runs WHERE id = ?", id); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(failJSON), &run.Failures); err != nil {
		return nil, fmt.Errorf("decode failures: %w", err)
	}

	var hexes []hexRow
	err = db.conn.Select(&hexes,
		"SELECT * FROM hexes WHERE run_id = ? ORDER BY rowid", id)
	if err != nil {
		return nil, fmt.Errorf("load hexes: %w", err)
	}
	run.Hexes = make([]atlas.HexRecord, len(hexes))
	for i, h := range hexes {
		run.Hexes[i] = h.HexRecord
	}

	var regions []regionRow
	err = db.conn.Select(&regions,
		"SELECT * FROM regions WHERE run_id = ? ORDER BY id", id)
	if err != nil {
		return nil, fmt.Errorf("load regions: %w", err)
	}
	run.Regions = make([]atlas.RegionSummary, len(regions))
	for i, r := range regions {
		sum := r.RegionSummary
		if err := json.Unmarshal([]byte(r.TerrainJSON), &sum.Terrain); err != nil {
			return nil, fmt.Errorf("decode region %d terrain: %w", r.ID, err)
		}
		run.Regions[i] = sum
	}
	return run, nil
}

// Hex returns one stored hex of a run.
func (db *DB) Hex(runID string, q, r int) (atlas.HexRecord, error) {
	var row hexRow
	err := db.conn.Get(&row, "SELECT * FROM hexes WHERE run_id = ? AND q = ? AND r = ?", runID, q, r)
	if errors.Is(err, sql.ErrNoRows) {
		return atlas.HexRecord{}, fmt.Errorf("hex (%d,%d) in run %s: %w", q, r, runID, ErrNotFound)
	}
	return row.HexRecord, err
}

// DeleteRun removes a run and its records.
func (db *DB) DeleteRun(id string) error {
	res, err := db.conn.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}
