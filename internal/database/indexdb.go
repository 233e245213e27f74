package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// FileName is the name of the database file inside the data directory.
const FileName = "peercrawl.db"

// IndexDB provides SQLite-based storage for index data and node state.
// It is safe for concurrent use.
type IndexDB struct {
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// Options configures IndexDB behavior.
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

// Open opens or creates an IndexDB in dbDir.
func Open(dbDir string, opts Options) (*IndexDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseMissing, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	idb := &IndexDB{
		db:     db,
		dbPath: dbPath,
		now:    time.Now,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := idb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return idb, nil
}

// Path returns the database file path.
func (idb *IndexDB) Path() string {
	return idb.dbPath
}

// Close closes the database connection.
func (idb *IndexDB) Close() error {
	return idb.db.Close()
}

func (idb *IndexDB) createTables() error {
	schema := `
	-- Metadata entries form the local index segment, keyed by URL position
	CREATE TABLE IF NOT EXISTS metadata (
		hash TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT,
		referrer TEXT,
		mod_date TEXT,
		load_date TEXT,
		size INTEGER DEFAULT 0,
		word_count INTEGER DEFAULT 0,
		language TEXT,
		stored_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Crawl errors, local and reported by delegates
	CREATE TABLE IF NOT EXISTS crawl_errors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		url_hash TEXT,
		depth INTEGER DEFAULT 0,
		profile TEXT,
		category TEXT,
		reason TEXT,
		status INTEGER,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_errors_url_hash ON crawl_errors(url_hash);
	CREATE INDEX IF NOT EXISTS idx_errors_timestamp ON crawl_errors(timestamp);

	-- Reverse word index
	CREATE TABLE IF NOT EXISTS postings (
		word_hash TEXT NOT NULL,
		url_hash TEXT NOT NULL,
		hit_count INTEGER DEFAULT 0,
		first_position INTEGER DEFAULT 0,
		language TEXT,
		mod_days INTEGER DEFAULT 0,
		PRIMARY KEY(word_hash, url_hash)
	);

	-- Peer directory snapshot, one CBOR record per peer
	CREATE TABLE IF NOT EXISTS peers (
		hash TEXT PRIMARY KEY,
		record BLOB NOT NULL,
		last_seen DATETIME
	);

	-- Payloads received through the transfer endpoint
	CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		from_peer TEXT NOT NULL,
		purpose TEXT,
		filename TEXT,
		payload BLOB,
		received DATETIME
	);
	`

	_, err := idb.db.ExecContext(context.Background(), schema)
	return err
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999",
}

// parseTimestamp tries each known layout and returns zero time when none
// matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
