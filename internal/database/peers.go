package database

import (
	"context"
	"fmt"
	"time"

	cbor "github.com/fxamacker/cbor/v2"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
)

// peerRecord is the persisted form of a model.Peer.
type peerRecord struct {
	Position      string  `cbor:"p"`
	Name          string  `cbor:"n,omitempty"`
	Host          string  `cbor:"h"`
	Port          int     `cbor:"o"`
	Class         int     `cbor:"c"`
	DeclaredClass int     `cbor:"d"`
	Capacity      int     `cbor:"q"`
	Version       float64 `cbor:"v"`
	LastSeen      int64   `cbor:"s"` // unix nanoseconds
	CrawlAccept   bool    `cbor:"ca,omitempty"`
	IndexAccept   bool    `cbor:"ia,omitempty"`
}

func toRecord(p model.Peer) peerRecord {
	r := peerRecord{
		Position:      p.Position.String(),
		Name:          p.Name,
		Host:          p.Host,
		Port:          p.Port,
		Class:         int(p.Class),
		DeclaredClass: int(p.DeclaredClass),
		Capacity:      p.Capacity,
		Version:       p.Version,
		CrawlAccept:   p.AcceptRemoteCrawl,
		IndexAccept:   p.AcceptRemoteIndex,
	}
	if !p.LastSeen.IsZero() {
		r.LastSeen = p.LastSeen.UnixNano()
	}
	return r
}

func (r peerRecord) peer() model.Peer {
	p := model.Peer{
		Position:          position.Position(r.Position),
		Name:              r.Name,
		Host:              r.Host,
		Port:              r.Port,
		Class:             model.PeerClass(r.Class),
		DeclaredClass:     model.PeerClass(r.DeclaredClass),
		Capacity:          r.Capacity,
		Version:           r.Version,
		AcceptRemoteCrawl: r.CrawlAccept,
		AcceptRemoteIndex: r.IndexAccept,
	}
	if r.LastSeen != 0 {
		p.LastSeen = time.Unix(0, r.LastSeen).UTC()
	}
	return p
}

// SavePeers replaces the stored directory with peers.
func (idb *IndexDB) SavePeers(ctx context.Context, peers []model.Peer) error {
	tx, err := idb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM peers`); err != nil {
		return fmt.Errorf("failed to clear peers: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO peers (hash, record, last_seen) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare peer insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range peers {
		blob, err := cbor.Marshal(toRecord(p))
		if err != nil {
			return fmt.Errorf("failed to encode peer %s: %w", p.Position, err)
		}
		if _, err := stmt.ExecContext(ctx, p.Position.String(), blob, formatTimestamp(p.LastSeen)); err != nil {
			return fmt.Errorf("failed to store peer %s: %w", p.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit peers: %w", err)
	}
	return nil
}

// LoadPeers returns the stored directory, most recently seen first.
// Records that cannot be decoded are skipped and counted.
func (idb *IndexDB) LoadPeers(ctx context.Context) (peers []model.Peer, skipped int, err error) {
	rows, err := idb.db.QueryContext(ctx, `SELECT record FROM peers ORDER BY last_seen DESC`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query peers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, skipped, fmt.Errorf("failed to scan peer: %w", err)
		}
		var r peerRecord
		if err := cbor.Unmarshal(blob, &r); err != nil {
			skipped++
			continue
		}
		peers = append(peers, r.peer())
	}
	return peers, skipped, rows.Err()
}
