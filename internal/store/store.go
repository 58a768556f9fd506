package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a cache entry or run does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows one writer; serialise through a single connection
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	-- llm_cache stores validated LLM refinements keyed by prompt version, model and line
	CREATE TABLE IF NOT EXISTS llm_cache (
		key TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		prompt_version TEXT NOT NULL,
		line_text TEXT NOT NULL,
		payload TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- scan_runs records one row per scan request for the history command
	CREATE TABLE IF NOT EXISTS scan_runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		line_count INTEGER NOT NULL,
		result_count INTEGER NOT NULL,
		meter_overrides INTEGER DEFAULT 0,
		dominant_meter TEXT,
		dominant_ratio REAL,
		llm_used BOOLEAN DEFAULT FALSE,
		error TEXT,
		duration_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cache_model ON llm_cache(model, prompt_version);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON scan_runs(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CacheEntry is a row from the llm_cache table. Payload is the JSON encoded
// refinement.
type CacheEntry struct {
	Key           string
	Model         string
	PromptVersion string
	LineText      string
	Payload       []byte
	UsageCount    int
	CreatedAt     time.Time
	LastUsed      time.Time
}

// CacheStats summarises the persistent LLM cache.
type CacheStats struct {
	TotalEntries int
	TotalUsage   int
	Models       int
}

// GetCached returns the payload stored under key and bumps its usage.
func (s *Store) GetCached(ctx context.Context, key string) ([]byte, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM llm_cache WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE llm_cache SET usage_count = usage_count + 1, last_used = ? WHERE key = ?`,
		time.Now(), key)
	return []byte(payload), err
}

// PutCached inserts or replaces a cache entry.
func (s *Store) PutCached(ctx context.Context, e CacheEntry) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO llm_cache (key, model, prompt_version, line_text, payload, usage_count, created_at, last_used) VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
		e.Key, e.Model, e.PromptVersion, normalizeText(e.LineText), string(e.Payload), now, now)
	return err
}

// DeleteCached permanently removes a cache entry by key.
func (s *Store) DeleteCached(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM llm_cache WHERE key = ?`, key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearCache removes all cache entries.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM llm_cache`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListCache returns cache entries ordered by most recently used. A model
// filter of "" matches every model.
func (s *Store) ListCache(ctx context.Context, model string) ([]CacheEntry, error) {
	query := `SELECT key, model, prompt_version, line_text, payload, usage_count, created_at, last_used FROM llm_cache`
	var args []any
	if model != "" {
		query += ` WHERE model = ?`
		args = append(args, model)
	}
	query += ` ORDER BY last_used DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CacheEntry
	for rows.Next() {
		var e CacheEntry
		var payload string
		if err := rows.Scan(&e.Key, &e.Model, &e.PromptVersion, &e.LineText, &payload, &e.UsageCount, &e.CreatedAt, &e.LastUsed); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		results = append(results, e)
	}

	return results, rows.Err()
}

// Stats returns summary statistics for the LLM cache.
func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(usage_count), 0),
			COUNT(DISTINCT model)
		FROM llm_cache`).Scan(
		&stats.TotalEntries,
		&stats.TotalUsage,
		&stats.Models,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ScanRun is a row from the scan_runs table.
type ScanRun struct {
	ID             string
	Source         string
	LineCount      int
	ResultCount    int
	MeterOverrides int
	DominantMeter  string
	DominantRatio  float64
	LLMUsed        bool
	Error          string
	Duration       time.Duration
	CreatedAt      time.Time
}

// SaveScanRun records a scan and returns its generated ID.
func (s *Store) SaveScanRun(ctx context.Context, run ScanRun) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_runs (id, source, line_count, result_count, meter_overrides, dominant_meter, dominant_ratio, llm_used, error, duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.Source, run.LineCount, run.ResultCount, run.MeterOverrides, run.DominantMeter, run.DominantRatio,
		run.LLMUsed, run.Error, run.Duration.Milliseconds(), time.Now())
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetScanRun retrieves a run by ID.
func (s *Store) GetScanRun(ctx context.Context, id string) (*ScanRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, line_count, result_count, meter_overrides, COALESCE(dominant_meter, ''), COALESCE(dominant_ratio, 0), llm_used, COALESCE(error, ''), COALESCE(duration_ms, 0), created_at FROM scan_runs WHERE id = ?`,
		id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListScanRuns returns the most recent runs first. limit ≤ 0 means no limit.
func (s *Store) ListScanRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	query := `SELECT id, source, line_count, result_count, meter_overrides, COALESCE(dominant_meter, ''), COALESCE(dominant_ratio, 0), llm_used, COALESCE(error, ''), COALESCE(duration_ms, 0), created_at FROM scan_runs ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ScanRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*ScanRun, error) {
	var run ScanRun
	var durationMs int64
	if err := row.Scan(&run.ID, &run.Source, &run.LineCount, &run.ResultCount, &run.MeterOverrides,
		&run.DominantMeter, &run.DominantRatio, &run.LLMUsed, &run.Error, &durationMs, &run.CreatedAt); err != nil {
		return nil, err
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return &run, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
