package model

import (
	"cmp"
	"slices"
	"time"
)

// NodeStatus is a snapshot of the local node for reporting: its own
// descriptor, the known peers and the size of the local index.
type NodeStatus struct {
	// Generated is when the snapshot was taken.
	Generated time.Time `json:"generated"`

	// Self is the local peer. It is nil before the node was first started.
	Self *Peer `json:"self,omitempty"`

	// Peers lists the known peers, most recently seen first.
	Peers []Peer `json:"peers"`

	// Classes counts the known peers per assigned class.
	Classes ClassCounts `json:"classes"`

	// MetadataEntries is the number of URL metadata entries stored.
	MetadataEntries int `json:"metadata_entries"`

	// Postings is the number of word postings stored.
	Postings int `json:"postings"`

	// RecentErrors lists the latest crawl failures, newest first.
	RecentErrors []ErrorEntry `json:"recent_errors,omitempty"`
}

// ClassCounts counts peers per class.
type ClassCounts struct {
	Junior    int `json:"junior"`
	Senior    int `json:"senior"`
	Principal int `json:"principal"`
}

// Total returns the number of counted peers.
func (c ClassCounts) Total() int {
	return c.Junior + c.Senior + c.Principal
}

// Reachable returns the number of peers verified as reachable.
func (c ClassCounts) Reachable() int {
	return c.Senior + c.Principal
}

// NewNodeStatus builds a status from peers. The peer list is copied and
// sorted by last-seen time, newest first.
func NewNodeStatus(generated time.Time, self *Peer, peers []Peer) *NodeStatus {
	s := &NodeStatus{
		Generated: generated.UTC(),
		Self:      self,
		Peers:     slices.Clone(peers),
	}
	if s.Peers == nil {
		s.Peers = []Peer{}
	}
	slices.SortStableFunc(s.Peers, func(a, b Peer) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	for _, p := range s.Peers {
		switch p.Class {
		case ClassPrincipal:
			s.Classes.Principal++
		case ClassSenior:
			s.Classes.Senior++
		default:
			s.Classes.Junior++
		}
	}
	return s
}

// PeersByClass returns the peers assigned class c, in status order.
func (s *NodeStatus) PeersByClass(c PeerClass) []Peer {
	var out []Peer
	for _, p := range s.Peers {
		if p.Class == c {
			out = append(out, p)
		}
	}
	return out
}
