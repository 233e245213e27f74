package protocol

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

func postingLine(t *testing.T, word, rawURL string) (string, position.Position) {
	t.Helper()
	wh, err := position.WordHash(word)
	if err != nil {
		t.Fatal(err)
	}
	u := mustURL(t, rawURL)
	return model.Posting{WordHash: wh, URLHash: u.Position(), HitCount: 2, FirstPosition: 1}.Line(), u.Position()
}

func TestTransferRWIAdmission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       func(*Config)
		prepare   func(t *testing.T, f *fixture, req *RWIRequest)
		want      RWIResult
		wantPause int
	}{
		{
			name: "wrong target",
			prepare: func(t *testing.T, f *fixture, req *RWIRequest) {
				req.Youare = f.caller.Position
			},
			want:      RWIWrongTarget,
			wantPause: PauseDenied,
		},
		{
			name: "unknown sender",
			prepare: func(t *testing.T, f *fixture, req *RWIRequest) {
				f.dir.Remove(f.caller.Position)
			},
			want:      RWINotGranted,
			wantPause: PauseDenied,
		},
		{
			name:      "inbound transfer disabled",
			cfg:       func(c *Config) { c.AcceptRemoteIndex = false },
			want:      RWINotGranted,
			wantPause: PauseDenied,
		},
		{
			name:      "isolated network",
			cfg:       func(c *Config) { c.Isolated = true },
			want:      RWINotGranted,
			wantPause: PauseDenied,
		},
		{
			name: "buffer over ceiling",
			prepare: func(t *testing.T, f *fixture, req *RWIRequest) {
				f.postings.occupancy = 5000
			},
			want:      RWIBusy,
			wantPause: 100000,
		},
		{
			name: "known bad version",
			prepare: func(t *testing.T, f *fixture, req *RWIRequest) {
				p, _ := f.dir.Lookup(f.caller.Position)
				p.Version = 0.52
				if _, err := f.dir.Upsert(p); err != nil {
					t.Fatal(err)
				}
			},
			want:      RWINotGranted,
			wantPause: PauseSoftBan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			f := newFixture(t, cfg)
			line, _ := postingLine(t, "peer", "http://www.example.com/")
			req := RWIRequest{Header: f.header(""), WordCount: 1, EntryCount: 1, Lines: []string{line}}
			if tt.prepare != nil {
				tt.prepare(t, f, &req)
			}

			resp := f.svc.TransferRWI(context.Background(), req)
			if resp.Result != tt.want || resp.Pause != tt.wantPause {
				t.Errorf("expected %v/%d, got %v/%d", tt.want, tt.wantPause, resp.Result, resp.Pause)
			}
			if f.postings.mergedCount() != 0 {
				t.Error("expected no entries to be merged")
			}
		})
	}
}

func TestTransferRWIDisabledWire(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.AcceptRemoteIndex = false
	f := newFixture(t, cfg)
	line, _ := postingLine(t, "peer", "http://www.example.com/")

	out := f.svc.TransferRWI(context.Background(), RWIRequest{Header: f.header(""), Lines: []string{line}}).Table()
	if out.Get("result") != "not_granted" || out.Get("pause") != "60000" {
		t.Errorf("unexpected wire response %q", out.String())
	}
}

func TestTransferRWIBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	knownLine, knownHash := postingLine(t, "alpha", "http://known.example.com/")
	if err := f.segment.Store(ctx, model.NewMetadataEntry(mustURL(t, "http://known.example.com/"), "", time.Now())); err != nil {
		t.Fatal(err)
	}
	blockedLine, _ := postingLine(t, "beta", "http://blocked.example.com/x")
	if err := f.segment.Store(ctx, model.NewMetadataEntry(mustURL(t, "http://blocked.example.com/x"), "", time.Now())); err != nil {
		t.Fatal(err)
	}
	newLine, newHash := postingLine(t, "gamma", "http://new.example.com/")
	againLine, _ := postingLine(t, "delta", "http://new.example.com/")

	req := RWIRequest{
		Header: f.header(""),
		Lines:  []string{knownLine, "garbage line", blockedLine, newLine, againLine},
	}
	resp := f.svc.TransferRWI(ctx, ParseRWIRequest(req.Table()))

	if resp.Result != RWIOK {
		t.Fatalf("expected ok, got %v", resp.Result)
	}
	if resp.Blocked != 2 {
		t.Errorf("expected 2 blocked entries, got %d", resp.Blocked)
	}
	if f.postings.mergedCount() != 3 {
		t.Errorf("expected 3 merged postings, got %d", f.postings.mergedCount())
	}
	if len(resp.UnknownURL) != 1 || resp.UnknownURL[0] != newHash {
		t.Errorf("expected unknown url %s once, got %v", newHash, resp.UnknownURL)
	}
	for _, h := range resp.UnknownURL {
		if h == knownHash {
			t.Error("known url reported as unknown")
		}
	}
}

func TestTransferRWIResilience(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	var lines []string
	for _, u := range []string{"http://a.example.com/", "http://b.example.com/", "http://c.example.com/"} {
		line, _ := postingLine(t, "word", u)
		lines = append(lines, line)
	}
	lines = append(lines[:1], append([]string{"AAAAAAAAAAAA{h=broken}"}, lines[1:]...)...)

	resp := f.svc.TransferRWI(context.Background(), RWIRequest{Header: f.header(""), Lines: lines})
	if resp.Result != RWIOK || resp.Blocked != 1 || f.postings.mergedCount() != 3 {
		t.Errorf("expected 3 merged and 1 blocked, got %v blocked=%d merged=%d",
			resp.Result, resp.Blocked, f.postings.mergedCount())
	}
}

func TestTransferRWIPauseMonotonic(t *testing.T) {
	t.Parallel()

	prev := -1
	for _, occupancy := range []int{0, 100, 250, 500, 999, 1000} {
		f := newFixture(t, DefaultConfig())
		f.postings.occupancy = occupancy
		line, _ := postingLine(t, "peer", "http://www.example.com/")
		resp := f.svc.TransferRWI(context.Background(), RWIRequest{Header: f.header(""), Lines: []string{line}})
		if resp.Pause < prev {
			t.Errorf("pause decreased from %d to %d at occupancy %d", prev, resp.Pause, occupancy)
		}
		if want := occupancy * DefaultRWIPauseScale / 1000; resp.Pause != want {
			t.Errorf("occupancy %d: expected pause %d, got %d", occupancy, want, resp.Pause)
		}
		prev = resp.Pause
	}
}

func TestTransferRWIMergeFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	f.postings.mergeErr = errFakeIO
	line, _ := postingLine(t, "peer", "http://www.example.com/")

	resp := f.svc.TransferRWI(context.Background(), RWIRequest{Header: f.header(""), Lines: []string{line}})
	if resp.Result != RWIBusy || resp.Pause < PauseDenied {
		t.Errorf("expected busy with a long pause, got %v/%d", resp.Result, resp.Pause)
	}
}

func TestTransferURL(t *testing.T) {
	t.Parallel()

	t.Run("stores and counts doubles", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, DefaultConfig())
		ctx := context.Background()
		existing := receiptEntry(t, "http://old.example.com/")
		if err := f.segment.Store(ctx, existing); err != nil {
			t.Fatal(err)
		}

		key := wire.NewKey()
		req := URLRequest{Header: f.header(key)}
		for _, e := range []model.MetadataEntry{
			receiptEntry(t, "http://new.example.com/"),
			existing,
			receiptEntry(t, "http://blocked.example.com/"),
		} {
			req.Entries = append(req.Entries, encode(t, e.Encode(), key))
		}
		req.Entries = append(req.Entries, "b|not-an-entry")

		resp := f.svc.TransferURL(ctx, ParseURLRequest(req.Table()))
		if resp.Result != URLOK {
			t.Fatalf("expected ok, got %v", resp.Result)
		}
		if resp.Received != 2 || resp.Double != 1 {
			t.Errorf("expected received=2 double=1, got %+v", resp)
		}
		if _, err := f.segment.Lookup(ctx, mustURL(t, "http://blocked.example.com/").Position()); err == nil {
			t.Error("blacklisted entry must not be stored")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()

		cfg := DefaultConfig()
		cfg.AcceptRemoteIndex = false
		f := newFixture(t, cfg)
		resp := f.svc.TransferURL(context.Background(), URLRequest{
			Header:  f.header(""),
			Entries: []string{encode(t, receiptEntry(t, "http://a.example.com/").Encode(), "")},
		})
		if resp.Result != URLNotGranted || f.segment.storeCount() != 0 {
			t.Errorf("expected error_not_granted without stores, got %v", resp.Result)
		}
		if got := resp.Table().Get("result"); got != "error_not_granted" {
			t.Errorf("unexpected wire result %q", got)
		}
	})

	t.Run("wrong target", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, DefaultConfig())
		h := f.header("")
		h.Youare = "AAAAAAAAAAAA"
		resp := f.svc.TransferURL(context.Background(), URLRequest{
			Header:  h,
			Entries: []string{encode(t, receiptEntry(t, "http://a.example.com/").Encode(), "")},
		})
		if resp.Result != URLWrongTarget || f.segment.storeCount() != 0 {
			t.Errorf("expected wrong_target without stores, got %v", resp.Result)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, DefaultConfig())
		f.segment.storeErr = errFakeIO
		resp := f.svc.TransferURL(context.Background(), URLRequest{
			Header:  f.header(""),
			Entries: []string{encode(t, receiptEntry(t, "http://a.example.com/").Encode(), "")},
		})
		if resp.Result != URLBusy {
			t.Errorf("expected busy, got %v", resp.Result)
		}
	})
}

func TestTransferPermits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	grant := f.svc.Transfer(ctx, TransferRequest{
		Header:   f.header(""),
		Process:  ProcessPermission,
		Purpose:  "crcon",
		Filename: "news.txt",
	})
	if grant.Response != TransferOK || grant.Code == "" {
		t.Fatalf("expected a permit, got %+v", grant)
	}

	store := TransferRequest{
		Header:  f.header(""),
		Process: ProcessStore,
		Code:    grant.Code,
		Payload: encode(t, "hello", ""),
	}

	var ok, denied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch f.svc.Transfer(ctx, store).Response {
			case TransferOK:
				ok.Add(1)
			case TransferDenied:
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || denied.Load() != 7 {
		t.Errorf("expected exactly one successful use, got ok=%d denied=%d", ok.Load(), denied.Load())
	}
	if len(f.sink.transfers) != 1 {
		t.Fatalf("expected one stored transfer, got %d", len(f.sink.transfers))
	}
	got := f.sink.transfers[0]
	if string(got.Payload) != "hello" || got.Filename != "news.txt" || got.Purpose != "crcon" || got.From != f.caller.Position {
		t.Errorf("unexpected transfer %+v", got)
	}
}

func TestPermitsConsume(t *testing.T) {
	t.Parallel()

	p := NewPermits(time.Minute)
	t.Cleanup(func() { _ = p.Close() })

	owner := position.Position("AAAAAA")
	code, err := p.Issue(owner, "crcon", "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if p.Outstanding() != 1 {
		t.Errorf("expected one outstanding code, got %d", p.Outstanding())
	}
	if _, _, err := p.Consume(code, "BBBBBB"); !errors.Is(err, ErrPermitMismatch) {
		t.Errorf("expected ErrPermitMismatch, got %v", err)
	}
	if _, _, err := p.Consume(code, owner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := p.Consume(code, owner); !errors.Is(err, ErrPermitNotFound) {
		t.Errorf("expected reuse to fail closed, got %v", err)
	}
	if _, _, err := p.Consume("unknown", owner); !errors.Is(err, ErrPermitNotFound) {
		t.Errorf("expected ErrPermitNotFound, got %v", err)
	}
}

func TestTransferDenials(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	ctx := context.Background()

	h := f.header("")
	h.Iam = testPeer(t, "stranger.example.net", 1).Position
	if r := f.svc.Transfer(ctx, TransferRequest{Header: h, Process: ProcessPermission}); r.Reason != ReasonUnknownClient {
		t.Errorf("expected unknown-client, got %+v", r)
	}
	if r := f.svc.Transfer(ctx, TransferRequest{Header: f.header(""), Process: "delete"}); r.Reason != ReasonUnknownOrder {
		t.Errorf("expected unknown-order, got %+v", r)
	}
	r := f.svc.Transfer(ctx, TransferRequest{Header: f.header(""), Process: ProcessStore, Code: "forged", Payload: "p|x"})
	if r.Response != TransferDenied || r.Reason != ReasonPermitInvalid {
		t.Errorf("expected permit-invalid, got %+v", r)
	}
}
