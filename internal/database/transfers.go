package database

import (
	"context"
	"fmt"

	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/protocol"
)

// StoreTransfer implements protocol.TransferSink.
func (idb *IndexDB) StoreTransfer(ctx context.Context, t protocol.Transfer) error {
	received := t.Received
	if received.IsZero() {
		received = idb.now()
	}

	query := `
	INSERT INTO transfers (from_peer, purpose, filename, payload, received)
	VALUES (?, ?, ?, ?, ?)
	`

	_, err := idb.db.ExecContext(ctx, query,
		t.From.String(),
		t.Purpose,
		t.Filename,
		t.Payload,
		formatTimestamp(received),
	)
	if err != nil {
		return fmt.Errorf("failed to store transfer from %s: %w", t.From, err)
	}
	return nil
}

// Transfers returns stored transfers of a peer, newest first. An empty
// from returns transfers of every peer.
func (idb *IndexDB) Transfers(ctx context.Context, from position.Position) ([]protocol.Transfer, error) {
	query := `
	SELECT from_peer, purpose, filename, payload, received
	FROM transfers
	WHERE 1=1
	`
	args := make([]any, 0, 1)

	if from != "" {
		query += " AND from_peer = ?"
		args = append(args, from.String())
	}
	query += " ORDER BY id DESC"

	rows, err := idb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var results []protocol.Transfer
	for rows.Next() {
		var t protocol.Transfer
		var peer, received string
		if err := rows.Scan(&peer, &t.Purpose, &t.Filename, &t.Payload, &received); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		t.From = position.Position(peer)
		t.Received = parseTimestamp(received)
		results = append(results, t)
	}
	return results, rows.Err()
}
