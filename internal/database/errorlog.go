package database

import (
	"context"
	"fmt"

	"github.com/nao1215/peercrawl/internal/model"
)

// Push appends an entry to the crawl error log.
func (idb *IndexDB) Push(ctx context.Context, entry model.ErrorEntry) error {
	ts := entry.Time
	if ts.IsZero() {
		ts = idb.now()
	}

	query := `
	INSERT INTO crawl_errors (url, url_hash, depth, profile, category, reason, status, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := idb.db.ExecContext(ctx, query,
		entry.URL,
		entry.URLHash,
		entry.Depth,
		entry.Profile,
		entry.Category,
		entry.Reason,
		entry.Status,
		formatTimestamp(ts),
	)
	if err != nil {
		return fmt.Errorf("failed to push crawl error: %w", err)
	}
	return nil
}

// RecentErrors returns up to limit error log entries, newest first.
// category filters by category when not empty.
func (idb *IndexDB) RecentErrors(ctx context.Context, category string, limit int) ([]model.ErrorEntry, error) {
	query := `
	SELECT url, url_hash, depth, profile, category, reason, status, timestamp
	FROM crawl_errors
	WHERE 1=1
	`
	args := make([]any, 0, 2)

	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := idb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl errors: %w", err)
	}
	defer rows.Close()

	var results []model.ErrorEntry
	for rows.Next() {
		var e model.ErrorEntry
		var timestamp string
		if err := rows.Scan(&e.URL, &e.URLHash, &e.Depth, &e.Profile, &e.Category, &e.Reason, &e.Status, &timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan crawl error: %w", err)
		}
		e.Time = parseTimestamp(timestamp)
		results = append(results, e)
	}
	return results, rows.Err()
}
