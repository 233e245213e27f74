package peers

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
)

// testPeer creates a peer whose position is derived from host.
func testPeer(t *testing.T, host string) model.Peer {
	t.Helper()
	pos, err := position.HostPosition("http", host, 8090)
	if err != nil {
		t.Fatalf("failed to compute position: %v", err)
	}
	return model.Peer{Position: pos, Name: host, Host: host, Port: 8090, Capacity: 60}
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestDirectoryUpsert(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("new peers start junior", func(t *testing.T) {
		t.Parallel()

		d := NewDirectory(WithClock(fixedClock(now)))
		p := testPeer(t, "a.example.org")
		p.Class = model.ClassPrincipal

		stored, err := d.Upsert(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stored.Class != model.ClassJunior {
			t.Errorf("expected junior, got %v", stored.Class)
		}
		if !stored.LastSeen.Equal(now) {
			t.Errorf("expected last-seen %v, got %v", now, stored.LastSeen)
		}
	})

	t.Run("self-report never raises class", func(t *testing.T) {
		t.Parallel()

		d := NewDirectory(WithClock(fixedClock(now)))
		p := testPeer(t, "b.example.org")
		if _, err := d.UpsertVerified(p, model.ClassSenior); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		p.Class = model.ClassPrincipal
		p.DeclaredClass = model.ClassPrincipal
		stored, err := d.Upsert(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if stored.Class != model.ClassSenior {
			t.Errorf("expected class to stay senior, got %v", stored.Class)
		}
		if stored.DeclaredClass != model.ClassPrincipal {
			t.Errorf("expected declared class to be recorded, got %v", stored.DeclaredClass)
		}
	})

	t.Run("last-seen never moves backwards", func(t *testing.T) {
		t.Parallel()

		d := NewDirectory()
		p := testPeer(t, "c.example.org")
		p.LastSeen = now
		if _, err := d.Upsert(p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		p.LastSeen = now.Add(-time.Hour)
		stored, err := d.Upsert(p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !stored.LastSeen.Equal(now) {
			t.Errorf("expected %v, got %v", now, stored.LastSeen)
		}
	})

	t.Run("rejects invalid position", func(t *testing.T) {
		t.Parallel()

		d := NewDirectory()
		if _, err := d.Upsert(model.Peer{Position: "bad"}); !errors.Is(err, ErrInvalidPeer) {
			t.Errorf("expected ErrInvalidPeer, got %v", err)
		}
		if _, err := d.UpsertVerified(model.Peer{}, model.ClassSenior); !errors.Is(err, ErrInvalidPeer) {
			t.Errorf("expected ErrInvalidPeer, got %v", err)
		}
	})
}

func TestDirectoryLookupTouchRemove(t *testing.T) {
	t.Parallel()

	current := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	d := NewDirectory(WithClock(clock), WithShardCount(3))
	p := testPeer(t, "d.example.org")

	if _, err := d.Lookup(p.Position); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if d.Touch(p.Position) || d.Remove(p.Position) || d.Demote(p.Position) {
		t.Fatal("expected operations on unknown peer to report false")
	}

	if _, err := d.UpsertVerified(p, model.ClassSenior); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	current = current.Add(time.Minute)
	mu.Unlock()

	if !d.Touch(p.Position) {
		t.Fatal("expected touch to find the peer")
	}
	got, err := d.Lookup(p.Position)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.LastSeen.Equal(clock()) {
		t.Errorf("expected touched last-seen, got %v", got.LastSeen)
	}

	if !d.Demote(p.Position) {
		t.Fatal("expected demote to find the peer")
	}
	got, _ = d.Lookup(p.Position)
	if got.Class != model.ClassJunior {
		t.Errorf("expected junior after demote, got %v", got.Class)
	}

	if !d.Remove(p.Position) || d.Size() != 0 {
		t.Errorf("expected removal, size is %d", d.Size())
	}
}

func TestDirectoryRecent(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDirectory()

	var peers []model.Peer
	for i := 0; i < 5; i++ {
		p := testPeer(t, fmt.Sprintf("p%d.example.org", i))
		p.LastSeen = base.Add(time.Duration(i) * time.Minute)
		if _, err := d.Upsert(p); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		peers = append(peers, p)
	}

	got := d.Recent(3, peers[4].Position)
	if len(got) != 3 {
		t.Fatalf("expected 3 peers, got %d", len(got))
	}
	for i, want := range []int{3, 2, 1} {
		if got[i].Position != peers[want].Position {
			t.Errorf("position %d: expected p%d, got %s", i, want, got[i].Name)
		}
	}

	if len(d.Recent(0)) != 0 {
		t.Error("expected no peers for n=0")
	}
	if len(d.Recent(50)) != 5 {
		t.Error("expected all peers when n exceeds size")
	}
}

func TestDirectoryConcurrentUpserts(t *testing.T) {
	t.Parallel()

	d := NewDirectory()
	p := testPeer(t, "busy.example.org")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := p
			q.LastSeen = base.Add(time.Duration(i) * time.Second)
			if i%10 == 0 {
				_, _ = d.UpsertVerified(q, model.ClassSenior)
				return
			}
			_, _ = d.Upsert(q)
		}(i)
	}
	wg.Wait()

	got, err := d.Lookup(p.Position)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.LastSeen.Equal(base.Add(49 * time.Second)) {
		t.Errorf("expected the latest last-seen, got %v", got.LastSeen)
	}
	if got.Class != model.ClassSenior {
		t.Errorf("expected verified class to survive, got %v", got.Class)
	}
}

func TestDirectorySnapshotRestore(t *testing.T) {
	t.Parallel()

	d := NewDirectory()
	a := testPeer(t, "a.example.net")
	b := testPeer(t, "b.example.net")
	if _, err := d.UpsertVerified(a, model.ClassPrincipal); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := d.Upsert(b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := d.Snapshot()
	restored := NewDirectory()
	skipped := restored.Restore(append(snap, model.Peer{Position: "broken"}))
	if skipped != 1 {
		t.Errorf("expected 1 skipped record, got %d", skipped)
	}
	if restored.Size() != 2 {
		t.Fatalf("expected 2 peers, got %d", restored.Size())
	}
	got, _ := restored.Lookup(a.Position)
	if got.Class != model.ClassPrincipal {
		t.Errorf("expected restored class principal, got %v", got.Class)
	}

	self := testPeer(t, "self.example.net")
	restored.SetSelf(self)
	if restored.Self().Position != self.Position {
		t.Error("expected self record to be stored")
	}
}
