package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

func receiptEntry(t *testing.T, raw string) model.MetadataEntry {
	t.Helper()
	return model.NewMetadataEntry(mustURL(t, raw), "title", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
}

func TestCrawlReceiptFill(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	entry := receiptEntry(t, "http://www.example.com/page")
	f.pending.Add(entry.Hash, f.caller.Position)

	key := wire.NewKey()
	resp := f.svc.CrawlReceipt(context.Background(), CrawlReceiptRequest{
		Header: f.header(key),
		Result: ReceiptFill,
		Reason: "ok",
		Entry:  encode(t, entry.Encode(), key),
	})

	if resp.Response != ReceiptOK || resp.Delay != DelayReceiptFill {
		t.Fatalf("expected ok with delay %d, got %v/%s/%d", DelayReceiptFill, resp.Response, resp.Reason, resp.Delay)
	}
	if _, err := f.segment.Lookup(context.Background(), entry.Hash); err != nil {
		t.Errorf("expected entry to be stored: %v", err)
	}
	if f.pending.Contains(entry.Hash) {
		t.Error("expected pending delegation to be removed")
	}
	if len(f.observer.seen) != 1 || f.observer.seen[0] != entry.Hash {
		t.Errorf("expected observer notification, got %v", f.observer.seen)
	}
	if out := resp.Table(); out.Get("delay") != "10" {
		t.Errorf("unexpected wire delay %q", out.Get("delay"))
	}
}

func TestCrawlReceiptFailureKinds(t *testing.T) {
	t.Parallel()

	for _, kind := range []ReceiptKind{ReceiptUnavailable, ReceiptRobot, ReceiptStale, ReceiptUnknown} {
		t.Run(kind.String(), func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, DefaultConfig())
			entry := receiptEntry(t, "http://www.example.com/missing")
			f.pending.Add(entry.Hash, f.caller.Position)

			resp := f.svc.CrawlReceipt(context.Background(), CrawlReceiptRequest{
				Header: f.header(""),
				Result: kind,
				Reason: "load failed",
				Entry:  encode(t, entry.Encode(), ""),
			})

			if resp.Response != ReceiptOK || resp.Delay != DelayLong {
				t.Errorf("unexpected response %v/%d", resp.Response, resp.Delay)
			}
			if f.pending.Contains(entry.Hash) {
				t.Error("expected pending delegation to be removed")
			}
			if f.segment.storeCount() != 0 {
				t.Error("expected nothing to be stored")
			}
			if len(f.errlog.entries) != 1 {
				t.Fatalf("expected one error log entry, got %d", len(f.errlog.entries))
			}
			got := f.errlog.entries[0]
			if got.URL != entry.URL || got.Reason != kind.String()+": load failed" || got.Status != -1 || got.Profile != RemoteProfile {
				t.Errorf("unexpected error log entry %+v", got)
			}
		})
	}
}

func TestCrawlReceiptRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        func(t *testing.T, f *fixture) CrawlReceiptRequest
		wantResp   ReceiptResponse
		wantReason string
		wantDelay  int
	}{
		{
			name: "wrong target",
			req: func(t *testing.T, f *fixture) CrawlReceiptRequest {
				h := f.header("")
				h.Youare = f.caller.Position
				return CrawlReceiptRequest{Header: h, Result: ReceiptFill, Entry: encode(t, receiptEntry(t, "http://a.example.com/").Encode(), "")}
			},
			wantResp:   ReceiptDenied,
			wantReason: ReasonAuthentify,
			wantDelay:  DelayLong,
		},
		{
			name: "undecodable payload",
			req: func(t *testing.T, f *fixture) CrawlReceiptRequest {
				return CrawlReceiptRequest{Header: f.header("secret"), Result: ReceiptFill, Entry: "c|garbage"}
			},
			wantResp:   ReceiptRejected,
			wantReason: ReasonTransient,
			wantDelay:  DelayTransient,
		},
		{
			name: "missing url",
			req: func(t *testing.T, f *fixture) CrawlReceiptRequest {
				return CrawlReceiptRequest{Header: f.header(""), Result: ReceiptFill, Entry: encode(t, "{descr=b|dGl0bGU}", "")}
			},
			wantResp:   ReceiptRejected,
			wantReason: ReasonMissingURL,
			wantDelay:  DelayLong,
		},
		{
			name: "out of scope",
			req: func(t *testing.T, f *fixture) CrawlReceiptRequest {
				entry := receiptEntry(t, "http://www.invalid-scope.org/")
				return CrawlReceiptRequest{Header: f.header(""), Result: ReceiptFill, Entry: encode(t, entry.Encode(), "")}
			},
			wantResp:   ReceiptRejected,
			wantReason: "host not in crawl scope",
			wantDelay:  DelayLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, DefaultConfig())
			resp := f.svc.CrawlReceipt(context.Background(), tt.req(t, f))
			if resp.Response != tt.wantResp || resp.Reason != tt.wantReason || resp.Delay != tt.wantDelay {
				t.Errorf("expected %v/%s/%d, got %v/%s/%d",
					tt.wantResp, tt.wantReason, tt.wantDelay, resp.Response, resp.Reason, resp.Delay)
			}
			if f.segment.storeCount() != 0 || len(f.errlog.entries) != 0 {
				t.Error("expected no collaborator mutation")
			}
		})
	}
}

func TestCrawlReceiptStoreFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	f.segment.storeErr = errFakeIO
	entry := receiptEntry(t, "http://www.example.com/")
	f.pending.Add(entry.Hash, f.caller.Position)

	resp := f.svc.CrawlReceipt(context.Background(), CrawlReceiptRequest{
		Header: f.header(""),
		Result: ReceiptFill,
		Entry:  encode(t, entry.Encode(), ""),
	})
	if resp.Response != ReceiptRejected || resp.Reason != ReasonBusy {
		t.Errorf("expected rejected/busy, got %v/%s", resp.Response, resp.Reason)
	}
	if !f.pending.Contains(entry.Hash) {
		t.Error("expected the delegation to stay pending")
	}
}

func TestCrawlReceiptFromOtherPeer(t *testing.T) {
	t.Parallel()

	other, err := position.HostPosition("http", "other.example.org", 8090)
	if err != nil {
		t.Fatalf("failed to compute position: %v", err)
	}

	tests := []struct {
		name        string
		delegate    position.Position
		pending     bool
		wantResp    ReceiptResponse
		wantStored  bool
		wantPending bool
	}{
		{name: "delegated to another peer", delegate: other, pending: true, wantResp: ReceiptDenied, wantPending: true},
		{name: "delegated to the sender", pending: true, wantResp: ReceiptOK, wantStored: true},
		{name: "no pending delegation", wantResp: ReceiptOK, wantStored: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, DefaultConfig())
			entry := receiptEntry(t, "http://www.example.com/delegated")
			if tt.pending {
				delegate := tt.delegate
				if delegate == "" {
					delegate = f.caller.Position
				}
				f.pending.Add(entry.Hash, delegate)
			}

			resp := f.svc.CrawlReceipt(context.Background(), CrawlReceiptRequest{
				Header: f.header(""),
				Result: ReceiptFill,
				Entry:  encode(t, entry.Encode(), ""),
			})
			if resp.Response != tt.wantResp {
				t.Fatalf("expected %v, got %v/%s", tt.wantResp, resp.Response, resp.Reason)
			}
			if tt.wantResp == ReceiptDenied && (resp.Reason != ReasonAuthentify || resp.Delay != DelayLong) {
				t.Errorf("expected authentify problem with long delay, got %s/%d", resp.Reason, resp.Delay)
			}
			if got := f.segment.storeCount() > 0; got != tt.wantStored {
				t.Errorf("expected stored=%v, got %v", tt.wantStored, got)
			}
			if got := f.pending.Contains(entry.Hash); got != tt.wantPending {
				t.Errorf("expected pending=%v, got %v", tt.wantPending, got)
			}
		})
	}
}
