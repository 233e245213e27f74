package database

import (
	"context"
	"fmt"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
)

// Store inserts or replaces a metadata entry.
func (idb *IndexDB) Store(ctx context.Context, entry model.MetadataEntry) error {
	query := `
	INSERT INTO metadata (hash, url, title, referrer, mod_date, load_date, size, word_count, language)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(hash) DO UPDATE SET
		url = excluded.url,
		title = excluded.title,
		referrer = excluded.referrer,
		mod_date = excluded.mod_date,
		load_date = excluded.load_date,
		size = excluded.size,
		word_count = excluded.word_count,
		language = excluded.language,
		stored_at = CURRENT_TIMESTAMP
	`

	_, err := idb.db.ExecContext(ctx, query,
		entry.Hash.String(),
		entry.URL,
		entry.Title,
		entry.Referrer.String(),
		formatTimestamp(entry.ModDate),
		formatTimestamp(entry.LoadDate),
		entry.Size,
		entry.WordCount,
		entry.Language,
	)
	if err != nil {
		return fmt.Errorf("failed to store metadata for %s: %w", entry.Hash, err)
	}
	return nil
}

// Lookup returns the entry stored under hash, or ErrNotFound.
func (idb *IndexDB) Lookup(ctx context.Context, hash position.Position) (model.MetadataEntry, error) {
	query := `
	SELECT hash, url, title, referrer, mod_date, load_date, size, word_count, language
	FROM metadata
	WHERE hash = ?
	`

	var (
		entry                    model.MetadataEntry
		h, referrer, mod, loaded string
	)
	err := idb.db.QueryRowContext(ctx, query, hash.String()).Scan(
		&h,
		&entry.URL,
		&entry.Title,
		&referrer,
		&mod,
		&loaded,
		&entry.Size,
		&entry.WordCount,
		&entry.Language,
	)
	if noRows(err) {
		return model.MetadataEntry{}, fmt.Errorf("%w: metadata %s", ErrNotFound, hash)
	}
	if err != nil {
		return model.MetadataEntry{}, fmt.Errorf("failed to get metadata: %w", err)
	}

	entry.Hash = position.Position(h)
	entry.Referrer = position.Position(referrer)
	entry.ModDate = parseTimestamp(mod)
	entry.LoadDate = parseTimestamp(loaded)
	return entry, nil
}

// Exists reports whether an entry is stored under hash.
func (idb *IndexDB) Exists(ctx context.Context, hash position.Position) (bool, error) {
	var count int
	err := idb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metadata WHERE hash = ?`, hash.String()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check metadata: %w", err)
	}
	return count > 0, nil
}

// Size returns the number of stored entries.
func (idb *IndexDB) Size(ctx context.Context) (int, error) {
	var count int
	if err := idb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM metadata`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count metadata: %w", err)
	}
	return count, nil
}

// Remove deletes the entry stored under hash and reports whether it existed.
func (idb *IndexDB) Remove(ctx context.Context, hash position.Position) (bool, error) {
	result, err := idb.db.ExecContext(ctx, `DELETE FROM metadata WHERE hash = ?`, hash.String())
	if err != nil {
		return false, fmt.Errorf("failed to remove metadata: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
