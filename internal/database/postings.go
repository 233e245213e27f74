package database

import (
	"context"
	"fmt"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
)

// StorePostings writes postings in one transaction. A posting for an
// existing word and URL pair replaces the stored one.
func (idb *IndexDB) StorePostings(ctx context.Context, postings []model.Posting) error {
	if len(postings) == 0 {
		return nil
	}

	tx, err := idb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO postings (word_hash, url_hash, hit_count, first_position, language, mod_days)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(word_hash, url_hash) DO UPDATE SET
		hit_count = excluded.hit_count,
		first_position = excluded.first_position,
		language = excluded.language,
		mod_days = excluded.mod_days
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare postings insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range postings {
		if _, err := stmt.ExecContext(ctx,
			p.WordHash.String(),
			p.URLHash.String(),
			p.HitCount,
			p.FirstPosition,
			p.Language,
			p.ModDays,
		); err != nil {
			return fmt.Errorf("failed to store posting %s/%s: %w", p.WordHash, p.URLHash, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit postings: %w", err)
	}
	return nil
}

// Postings returns the postings of a word, ordered by URL position.
func (idb *IndexDB) Postings(ctx context.Context, word position.Position) ([]model.Posting, error) {
	query := `
	SELECT word_hash, url_hash, hit_count, first_position, language, mod_days
	FROM postings
	WHERE word_hash = ?
	ORDER BY url_hash
	`

	rows, err := idb.db.QueryContext(ctx, query, word.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query postings: %w", err)
	}
	defer rows.Close()

	var results []model.Posting
	for rows.Next() {
		var p model.Posting
		var w, u string
		if err := rows.Scan(&w, &u, &p.HitCount, &p.FirstPosition, &p.Language, &p.ModDays); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		p.WordHash = position.Position(w)
		p.URLHash = position.Position(u)
		results = append(results, p)
	}
	return results, rows.Err()
}

// PostingCount returns the number of stored postings.
func (idb *IndexDB) PostingCount(ctx context.Context) (int, error) {
	var count int
	if err := idb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM postings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count postings: %w", err)
	}
	return count, nil
}
