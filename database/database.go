package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tamperdetect/logging"
	"tamperdetect/types"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNoReference is returned when no reference image has been registered
var ErrNoReference = errors.New("no reference image registered")

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS comparisons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		comparison_id TEXT NOT NULL UNIQUE,
		candidate_name TEXT,
		reference_sha256 TEXT,
		score REAL NOT NULL,
		threshold REAL,
		region_count INTEGER NOT NULL DEFAULT 0,
		regions TEXT,
		width INTEGER,
		height INTEGER,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_comparisons_created ON comparisons(created_at);
	CREATE INDEX IF NOT EXISTS idx_comparisons_reference ON comparisons(reference_sha256);

	CREATE TABLE IF NOT EXISTS reference_images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL,
		sha256 TEXT NOT NULL,
		average_hash TEXT,
		width INTEGER,
		height INTEGER,
		size INTEGER,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reference_sha ON reference_images(sha256);`

// InitDatabase initializes and returns a database connection
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err = db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	// outputs was added after the first release
	if err := ensureColumn(db, "comparisons", "outputs", "TEXT"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenDatabase opens an existing database connection
func OpenDatabase(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath)
}

// ensureColumn adds a column to an existing table when it is missing
func ensureColumn(db *sql.DB, table, column, colType string) error {
	var hasColumn bool
	err := db.QueryRow(
		fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name = ?", table), column,
	).Scan(&hasColumn)
	if err != nil {
		return fmt.Errorf("error checking for %s column: %w", column, err)
	}
	if hasColumn {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", table, column, colType)); err != nil {
		return fmt.Errorf("error adding %s column: %w", column, err)
	}
	logging.DebugLog("Added '%s' column to %s", column, table)
	return nil
}

// StoreComparison records a comparison and returns its row ID
func StoreComparison(db *sql.DB, rec types.ComparisonRecord) (int64, error) {
	regions, err := json.Marshal(rec.Regions)
	if err != nil {
		return 0, fmt.Errorf("cannot encode regions for %s: %w", rec.ComparisonID, err)
	}
	outputs, err := json.Marshal(rec.Outputs)
	if err != nil {
		return 0, fmt.Errorf("cannot encode outputs for %s: %w", rec.ComparisonID, err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	stmt, err := db.Prepare(`
		INSERT INTO comparisons (
			comparison_id, candidate_name, reference_sha256, score, threshold,
			region_count, regions, width, height, outputs, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("cannot prepare statement for %s: %w", rec.ComparisonID, err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(
		rec.ComparisonID,
		rec.CandidateName,
		rec.ReferenceSHA,
		rec.Score,
		rec.Threshold,
		len(rec.Regions),
		string(regions),
		rec.Width,
		rec.Height,
		string(outputs),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("cannot insert comparison %s: %w", rec.ComparisonID, err)
	}

	return res.LastInsertId()
}

// RecentComparisons returns up to limit comparisons, newest first
func RecentComparisons(db *sql.DB, limit int) ([]types.ComparisonRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := db.Query(`
		SELECT id, comparison_id, candidate_name, reference_sha256, score, threshold,
			regions, width, height, outputs, created_at
		FROM comparisons ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparisons: %w", err)
	}
	defer rows.Close()

	var records []types.ComparisonRecord
	for rows.Next() {
		var (
			rec                         types.ComparisonRecord
			candidate, refSHA           sql.NullString
			regions, outputs, createdAt sql.NullString
			width, height               sql.NullInt64
			threshold                   sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.ComparisonID, &candidate, &refSHA, &rec.Score, &threshold,
			&regions, &width, &height, &outputs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan comparison: %w", err)
		}

		rec.CandidateName = candidate.String
		rec.ReferenceSHA = refSHA.String
		rec.Threshold = threshold.Float64
		rec.Width = int(width.Int64)
		rec.Height = int(height.Int64)
		rec.CreatedAt = parseTime(createdAt.String)

		if regions.Valid && regions.String != "" {
			if err := json.Unmarshal([]byte(regions.String), &rec.Regions); err != nil {
				logging.LogWarning("Corrupt regions for comparison %s: %v", rec.ComparisonID, err)
			}
		}
		if outputs.Valid && outputs.String != "" {
			if err := json.Unmarshal([]byte(outputs.String), &rec.Outputs); err != nil {
				logging.LogWarning("Corrupt outputs for comparison %s: %v", rec.ComparisonID, err)
			}
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

// StoreReference registers a new current reference image
func StoreReference(db *sql.DB, info types.ReferenceInfo) error {
	createdAt := info.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := db.Exec(`
		INSERT INTO reference_images (path, sha256, average_hash, width, height, size, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		info.Path, info.SHA256, info.AverageHash, info.Width, info.Height, info.Size,
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("cannot insert reference %s: %w", info.Path, err)
	}
	return nil
}

// CurrentReference returns the most recently registered reference
func CurrentReference(db *sql.DB) (*types.ReferenceInfo, error) {
	var (
		info          types.ReferenceInfo
		avgHash       sql.NullString
		width, height sql.NullInt64
		size          sql.NullInt64
		createdAt     string
	)

	err := db.QueryRow(`
		SELECT id, path, sha256, average_hash, width, height, size, created_at
		FROM reference_images ORDER BY id DESC LIMIT 1`,
	).Scan(&info.ID, &info.Path, &info.SHA256, &avgHash, &width, &height, &size, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoReference
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reference: %w", err)
	}

	info.AverageHash = avgHash.String
	info.Width = int(width.Int64)
	info.Height = int(height.Int64)
	info.Size = size.Int64
	info.CreatedAt = parseTime(createdAt)
	return &info, nil
}

// ComparisonStats summarizes the comparison history
type ComparisonStats struct {
	TotalComparisons int
	TamperedCount    int
	AverageScore     float64
	LowestScore      float64
}

// GetComparisonStats retrieves statistics about recorded comparisons,
// optionally restricted to one reference
func GetComparisonStats(db *sql.DB, referenceSHA string) (*ComparisonStats, error) {
	var stats ComparisonStats

	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN region_count > 0 THEN 1 ELSE 0 END), 0),
		COALESCE(AVG(score), 0), COALESCE(MIN(score), 0) FROM comparisons`
	var args []interface{}
	if referenceSHA != "" {
		query += " WHERE reference_sha256 = ?"
		args = append(args, referenceSHA)
	}

	err := db.QueryRow(query, args...).Scan(
		&stats.TotalComparisons, &stats.TamperedCount, &stats.AverageScore, &stats.LowestScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get comparison stats: %w", err)
	}

	return &stats, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
