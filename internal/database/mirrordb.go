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

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitemirror/internal/model"
)

// DBFileName is the database file created in the database directory.
const DBFileName = "sitemirror.db"

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("crawl run not found")

// MirrorDB stores crawl runs and their page records.
type MirrorDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures MirrorDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the database in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*MirrorDB, error) {
	dbPath := filepath.Join(dbDir, DBFileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (run a crawl first)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw&_pragma=foreign_keys(1)"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	mdb := &MirrorDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := mdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return mdb, nil
}

// Path returns the database file path.
func (mdb *MirrorDB) Path() string {
	return mdb.dbPath
}

// Close closes the database connection.
func (mdb *MirrorDB) Close() error {
	return mdb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (mdb *MirrorDB) createTables() error {
	schema := `
	-- One row per crawl run
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root_url TEXT NOT NULL,
		prefix TEXT NOT NULL,
		output_dir TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		admitted INTEGER NOT NULL DEFAULT 0,
		written INTEGER NOT NULL DEFAULT 0,
		failures INTEGER NOT NULL DEFAULT 0,
		bytes_written INTEGER NOT NULL DEFAULT 0,
		cancelled INTEGER NOT NULL DEFAULT 0,
		stats_json TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_runs_root ON crawl_runs(root_url);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON crawl_runs(started_at);

	-- One row per admitted URL of a run
	CREATE TABLE IF NOT EXISTS crawl_pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		path TEXT,
		content_type TEXT,
		kind TEXT,
		status_code INTEGER,
		size INTEGER NOT NULL DEFAULT 0,
		hash TEXT,
		title TEXT,
		links_found INTEGER NOT NULL DEFAULT 0,
		links_enqueued INTEGER NOT NULL DEFAULT 0,
		failure TEXT,
		error TEXT,
		fetched_at TEXT,
		duration_ns INTEGER NOT NULL DEFAULT 0,
		UNIQUE(run_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_pages_run ON crawl_pages(run_id);
	CREATE INDEX IF NOT EXISTS idx_pages_url ON crawl_pages(url);
	`

	_, err := mdb.db.ExecContext(context.Background(), schema)
	return err
}

// RunInfo describes a stored run without its page records.
type RunInfo struct {
	// ID is the unique identifier of the run in the database.
	ID int64 `json:"id"`

	// RootURL is the seed URL of the run.
	RootURL string `json:"root_url"`

	// Prefix is the same-site filter of the run.
	Prefix string `json:"prefix"`

	// OutputDir is where the run wrote its files.
	OutputDir string `json:"output_dir"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the run finished.
	FinishedAt time.Time `json:"finished_at"`

	// Cancelled is true when the run was interrupted.
	Cancelled bool `json:"cancelled"`

	// Stats holds the run counters.
	Stats model.CrawlStats `json:"stats"`
}

// SaveRun stores summary and all of its page records in one transaction
// and returns the new run ID.
func (mdb *MirrorDB) SaveRun(ctx context.Context, summary *model.CrawlSummary) (id int64, err error) {
	statsJSON, err := json.Marshal(summary.Stats)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize stats: %w", err)
	}

	tx, err := mdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (root_url, prefix, output_dir, started_at, finished_at,
		admitted, written, failures, bytes_written, cancelled, stats_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		summary.RootURL,
		summary.Prefix,
		summary.OutputDir,
		formatTimestamp(summary.StartedAt),
		formatTimestamp(summary.FinishedAt),
		summary.Stats.Admitted,
		summary.Stats.Written,
		summary.Stats.FailureCount(),
		summary.Stats.BytesWritten,
		summary.Cancelled,
		string(statsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save crawl run: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO crawl_pages (run_id, url, path, content_type, kind, status_code, size, hash,
		title, links_found, links_enqueued, failure, error, fetched_at, duration_ns)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id, url) DO UPDATE SET
		path = excluded.path,
		content_type = excluded.content_type,
		kind = excluded.kind,
		status_code = excluded.status_code,
		size = excluded.size,
		hash = excluded.hash,
		title = excluded.title,
		links_found = excluded.links_found,
		links_enqueued = excluded.links_enqueued,
		failure = excluded.failure,
		error = excluded.error,
		fetched_at = excluded.fetched_at,
		duration_ns = excluded.duration_ns
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range summary.Pages {
		if _, err = stmt.ExecContext(ctx,
			id,
			p.URL,
			p.Path,
			p.ContentType,
			string(p.Kind),
			p.StatusCode,
			p.Size,
			p.Hash,
			p.Title,
			p.LinksFound,
			p.LinksEnqueued,
			string(p.Failure),
			p.Error,
			formatTimestamp(p.FetchedAt),
			int64(p.Duration),
		); err != nil {
			return 0, fmt.Errorf("failed to save page %s: %w", p.URL, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl run: %w", err)
	}
	return id, nil
}

const runColumns = `id, root_url, prefix, output_dir, started_at, finished_at, cancelled, stats_json`

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunInfo(row rowScanner) (RunInfo, error) {
	var (
		info                RunInfo
		startedAt, finished string
		statsJSON           string
	)
	if err := row.Scan(&info.ID, &info.RootURL, &info.Prefix, &info.OutputDir,
		&startedAt, &finished, &info.Cancelled, &statsJSON); err != nil {
		return RunInfo{}, err
	}
	info.StartedAt = parseTimestamp(startedAt)
	info.FinishedAt = parseTimestamp(finished)
	if err := json.Unmarshal([]byte(statsJSON), &info.Stats); err != nil {
		return RunInfo{}, fmt.Errorf("failed to parse stats of run %d: %w", info.ID, err)
	}
	return info, nil
}

// GetRunInfo returns the run with the given ID without its pages.
func (mdb *MirrorDB) GetRunInfo(ctx context.Context, id int64) (*RunInfo, error) {
	row := mdb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM crawl_runs WHERE id = ?`, id)
	info, err := scanRunInfo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl run: %w", err)
	}
	return &info, nil
}

// GetRun returns the run with the given ID as a summary including its pages.
func (mdb *MirrorDB) GetRun(ctx context.Context, id int64) (*model.CrawlSummary, error) {
	info, err := mdb.GetRunInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	pages, err := mdb.GetRunPages(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.CrawlSummary{
		RootURL:    info.RootURL,
		Prefix:     info.Prefix,
		OutputDir:  info.OutputDir,
		StartedAt:  info.StartedAt,
		FinishedAt: info.FinishedAt,
		Cancelled:  info.Cancelled,
		Stats:      info.Stats,
		Pages:      pages,
	}, nil
}

// GetRunPages returns the page records of a run ordered by URL.
func (mdb *MirrorDB) GetRunPages(ctx context.Context, runID int64) ([]model.PageRecord, error) {
	rows, err := mdb.db.QueryContext(ctx, `
	SELECT url, path, content_type, kind, status_code, size, hash, title,
		links_found, links_enqueued, failure, error, fetched_at, duration_ns
	FROM crawl_pages
	WHERE run_id = ?
	ORDER BY url
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run pages: %w", err)
	}
	defer rows.Close()

	pages := make([]model.PageRecord, 0)
	for rows.Next() {
		var (
			p                                    model.PageRecord
			path, contentType, kind, hash, title sql.NullString
			failure, errMsg, fetchedAt           sql.NullString
			statusCode                           sql.NullInt64
			durationNS                           int64
		)
		if err := rows.Scan(&p.URL, &path, &contentType, &kind, &statusCode, &p.Size, &hash, &title,
			&p.LinksFound, &p.LinksEnqueued, &failure, &errMsg, &fetchedAt, &durationNS); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Path = path.String
		p.ContentType = contentType.String
		p.Kind = model.ContentKind(kind.String)
		p.StatusCode = int(statusCode.Int64)
		p.Hash = hash.String
		p.Title = title.String
		p.Failure = model.FailureKind(failure.String)
		p.Error = errMsg.String
		p.FetchedAt = parseTimestamp(fetchedAt.String)
		p.Duration = time.Duration(durationNS)
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// ListRuns returns the runs of rootURL, newest first.
func (mdb *MirrorDB) ListRuns(ctx context.Context, rootURL string) ([]RunInfo, error) {
	return mdb.queryRuns(ctx, `SELECT `+runColumns+` FROM crawl_runs
	WHERE root_url = ?
	ORDER BY started_at DESC, id DESC`, rootURL)
}

// LatestRuns returns up to limit runs of rootURL, newest first.
func (mdb *MirrorDB) LatestRuns(ctx context.Context, rootURL string, limit int) ([]RunInfo, error) {
	return mdb.queryRuns(ctx, `SELECT `+runColumns+` FROM crawl_runs
	WHERE root_url = ?
	ORDER BY started_at DESC, id DESC
	LIMIT ?`, rootURL, limit)
}

func (mdb *MirrorDB) queryRuns(ctx context.Context, query string, args ...any) ([]RunInfo, error) {
	rows, err := mdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list crawl runs: %w", err)
	}
	defer rows.Close()

	runs := make([]RunInfo, 0)
	for rows.Next() {
		info, err := scanRunInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl run: %w", err)
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// ListSites returns every root URL with at least one stored run.
func (mdb *MirrorDB) ListSites(ctx context.Context) ([]string, error) {
	rows, err := mdb.db.QueryContext(ctx, `
	SELECT DISTINCT root_url FROM crawl_runs
	ORDER BY root_url
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	sites := make([]string, 0)
	for rows.Next() {
		var site string
		if err := rows.Scan(&site); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}

// DiffLatest compares the two newest runs of rootURL.
// It returns ErrRunNotFound when fewer than two runs are stored.
func (mdb *MirrorDB) DiffLatest(ctx context.Context, rootURL string) (*model.RunDiff, error) {
	runs, err := mdb.LatestRuns(ctx, rootURL, 2)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, fmt.Errorf("%w: need two runs of %s to compare, found %d", ErrRunNotFound, rootURL, len(runs))
	}
	return mdb.DiffRuns(ctx, runs[1].ID, runs[0].ID)
}

// DiffRuns compares the files written by two runs.
func (mdb *MirrorDB) DiffRuns(ctx context.Context, oldID, newID int64) (*model.RunDiff, error) {
	oldPages, err := mdb.runPagesChecked(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newPages, err := mdb.runPagesChecked(ctx, newID)
	if err != nil {
		return nil, err
	}
	diff := model.DiffPages(oldPages, newPages)
	diff.OldRunID = oldID
	diff.NewRunID = newID
	return diff, nil
}

func (mdb *MirrorDB) runPagesChecked(ctx context.Context, id int64) ([]model.PageRecord, error) {
	if _, err := mdb.GetRunInfo(ctx, id); err != nil {
		return nil, err
	}
	return mdb.GetRunPages(ctx, id)
}

// timestampLayout is RFC 3339 with a fixed-width fraction, so stored
// timestamps sort correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTimestamp renders t for storage. The zero time is stored as "".
func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timestampLayout)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
