package protocol

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/wire"
)

func TestCrawlOrderAdmission(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       func(*Config)
		prepare   func(t *testing.T, f *fixture, req *CrawlOrderRequest)
		wantResp  CrawlResponse
		wantMsg   string
		wantDelay int
	}{
		{
			name: "wrong target",
			prepare: func(t *testing.T, f *fixture, req *CrawlOrderRequest) {
				req.Youare = f.caller.Position
			},
			wantResp:  CrawlDenied,
			wantMsg:   ReasonAuthentify,
			wantDelay: DelayLong,
		},
		{
			name: "depth not zero",
			prepare: func(t *testing.T, f *fixture, req *CrawlOrderRequest) {
				req.Depth = 1
			},
			wantResp:  CrawlDenied,
			wantMsg:   ReasonDepthNotZero,
			wantDelay: DelayLong,
		},
		{
			name:      "remote crawl disabled",
			cfg:       func(c *Config) { c.AcceptRemoteCrawl = false },
			wantResp:  CrawlDenied,
			wantMsg:   ReasonNotGranted,
			wantDelay: DelayLong,
		},
		{
			name: "unknown client",
			prepare: func(t *testing.T, f *fixture, req *CrawlOrderRequest) {
				req.Iam = testPeer(t, "stranger.example.net", 10).Position
			},
			wantResp:  CrawlDenied,
			wantMsg:   ReasonUnknownClient,
			wantDelay: DelayMedium,
		},
		{
			name: "junior client",
			prepare: func(t *testing.T, f *fixture, req *CrawlOrderRequest) {
				f.dir.Demote(f.caller.Position)
			},
			wantResp:  CrawlDenied,
			wantMsg:   ReasonNotQualified,
			wantDelay: DelayMedium,
		},
		{
			name: "queue over ceiling",
			prepare: func(t *testing.T, f *fixture, req *CrawlOrderRequest) {
				f.queue.size = 150
			},
			wantResp:  CrawlRejected,
			wantMsg:   ReasonBusy,
			wantDelay: 150,
		},
		{
			name: "unknown process",
			prepare: func(t *testing.T, f *fixture, req *CrawlOrderRequest) {
				req.Process = "index"
			},
			wantResp:  CrawlDenied,
			wantMsg:   ReasonUnknownOrder,
			wantDelay: DelayUnknownOrder,
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
			req := CrawlOrderRequest{
				Header:  f.header(""),
				Process: ProcessCrawl,
				Items:   []CrawlItem{{URL: encode(t, "http://www.example.com/", "")}},
			}
			if tt.prepare != nil {
				tt.prepare(t, f, &req)
			}

			resp := f.svc.CrawlOrder(context.Background(), req)
			if resp.Response != tt.wantResp || resp.Reason != tt.wantMsg || resp.Delay != tt.wantDelay {
				t.Errorf("expected %v/%s/%d, got %v/%s/%d",
					tt.wantResp, tt.wantMsg, tt.wantDelay, resp.Response, resp.Reason, resp.Delay)
			}
			if f.queue.calls() != 0 {
				t.Error("expected the crawl queue to be left alone")
			}
		})
	}
}

func TestCrawlOrderWrongTargetWire(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	req := CrawlOrderRequest{
		Header:  Header{Iam: f.caller.Position, Youare: f.caller.Position},
		Process: ProcessCrawl,
		Items:   []CrawlItem{{URL: encode(t, "http://www.example.com/", "")}},
	}

	out := f.svc.CrawlOrder(context.Background(), req).Table()
	if out.Get("response") != "denied" || out.Get("reason") != "authentify-problem" || out.Get("delay") != "3600" {
		t.Errorf("unexpected wire response %q", out.String())
	}
}

func TestCrawlOrderStacked(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	key := wire.NewKey()
	req := CrawlOrderRequest{
		Header:  f.header(key),
		Process: ProcessCrawl,
		Items: []CrawlItem{{
			URL:      encode(t, "http://www.example.com/news", key),
			Referrer: encode(t, "http://www.example.com/", key),
		}},
	}

	resp := f.svc.CrawlOrder(context.Background(), req)
	if resp.Response != CrawlStacked || resp.Reason != ReasonOK {
		t.Fatalf("expected stacked/ok, got %v/%s", resp.Response, resp.Reason)
	}
	if want := DelayStackedBase + 1; resp.Delay != want {
		t.Errorf("expected delay %d, got %d", want, resp.Delay)
	}
	if len(f.queue.stacked) != 1 {
		t.Fatalf("expected one stacked url, got %d", len(f.queue.stacked))
	}
	got := f.queue.stacked[0]
	if got.URL.String() != "http://www.example.com/news" || got.Referrer != "http://www.example.com/" {
		t.Errorf("unexpected enqueue request %+v", got)
	}
	if got.Initiator != f.caller.Position || got.Profile != RemoteProfile {
		t.Errorf("unexpected initiator or profile %+v", got)
	}
}

func TestCrawlOrderDouble(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	u := mustURL(t, "http://www.example.com/")
	entry := model.NewMetadataEntry(u, "Example", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if err := f.segment.Store(context.Background(), entry); err != nil {
		t.Fatal(err)
	}
	f.queue.indexed[u.Position()] = true

	req := CrawlOrderRequest{
		Header:  f.header(""),
		Process: ProcessCrawl,
		Items:   []CrawlItem{{URL: encode(t, u.String(), "")}},
	}

	first := f.svc.CrawlOrder(context.Background(), req)
	second := f.svc.CrawlOrder(context.Background(), req)
	for _, resp := range []CrawlOrderResponse{first, second} {
		if resp.Response != CrawlDouble {
			t.Fatalf("expected double, got %v/%s", resp.Response, resp.Reason)
		}
		raw, err := wire.DecodeString(resp.LURL, "")
		if err != nil {
			t.Fatalf("failed to decode lurl: %v", err)
		}
		got, err := model.ParseMetadataEntry(raw)
		if err != nil {
			t.Fatalf("failed to parse lurl: %v", err)
		}
		if got.Hash != entry.Hash || got.Title != "Example" {
			t.Errorf("unexpected snapshot %+v", got)
		}
	}
	if first.LURL != second.LURL {
		t.Error("expected identical snapshots")
	}
	if f.queue.calls() != 0 {
		t.Errorf("expected no stacking, got %d", f.queue.calls())
	}

	out := first.Table()
	if out.Get("response") != "double" || out.Get("lurl") == "" {
		t.Errorf("unexpected wire response %q", out.String())
	}
}

func TestCrawlOrderDoubleWithoutSnapshot(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	u := mustURL(t, "http://www.example.com/gone")
	f.queue.indexed[u.Position()] = true

	resp := f.svc.CrawlOrder(context.Background(), CrawlOrderRequest{
		Header:  f.header(""),
		Process: ProcessCrawl,
		Items:   []CrawlItem{{URL: encode(t, u.String(), "")}},
	})
	if resp.Response != CrawlRejected {
		t.Errorf("expected rejected when the snapshot is missing, got %v", resp.Response)
	}
}

func TestCrawlOrderRejections(t *testing.T) {
	t.Parallel()

	t.Run("queue veto passes reason through", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, DefaultConfig())
		f.queue.veto = "url in blacklist"
		resp := f.svc.CrawlOrder(context.Background(), CrawlOrderRequest{
			Header:  f.header(""),
			Process: ProcessCrawl,
			Items:   []CrawlItem{{URL: encode(t, "http://www.example.com/", "")}},
		})
		if resp.Response != CrawlRejected || resp.Reason != "url in blacklist" {
			t.Errorf("unexpected response %v/%s", resp.Response, resp.Reason)
		}
	})

	t.Run("undecodable url", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, DefaultConfig())
		resp := f.svc.CrawlOrder(context.Background(), CrawlOrderRequest{
			Header:  f.header(""),
			Process: ProcessCrawl,
			Items:   []CrawlItem{{URL: "b|!!!"}},
		})
		if resp.Response != CrawlRejected || resp.Reason != ReasonMalformedURL {
			t.Errorf("unexpected response %v/%s", resp.Response, resp.Reason)
		}
	})

	t.Run("queue failure reports busy", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, DefaultConfig())
		f.queue.failWith = errFakeIO
		resp := f.svc.CrawlOrder(context.Background(), CrawlOrderRequest{
			Header:  f.header(""),
			Process: ProcessCrawl,
			Items:   []CrawlItem{{URL: encode(t, "http://www.example.com/", "")}},
		})
		if resp.Response != CrawlRejected || resp.Reason != ReasonBusy || resp.Delay != DelayTransient {
			t.Errorf("unexpected response %v/%s/%d", resp.Response, resp.Reason, resp.Delay)
		}
	})
}

func TestCrawlOrderMulti(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	known := mustURL(t, "http://known.example.com/")
	if err := f.segment.Store(context.Background(), model.NewMetadataEntry(known, "", time.Now())); err != nil {
		t.Fatal(err)
	}
	f.queue.indexed[known.Position()] = true

	req := CrawlOrderRequest{
		Header:  f.header(""),
		Process: ProcessCrawl,
		Multi:   true,
	}
	for _, raw := range []string{"http://a.example.com/", "http://b.example.com/", known.String(), "not a url"} {
		req.Items = append(req.Items, CrawlItem{URL: encode(t, raw, "")})
	}

	// Round-trip through the wire form as a remote caller would.
	parsed := ParseCrawlOrderRequest(req.Table())
	resp := f.svc.CrawlOrder(context.Background(), parsed)

	if resp.Response != CrawlEnqueued || resp.Reason != ReasonOK {
		t.Fatalf("expected enqueued/ok, got %v/%s", resp.Response, resp.Reason)
	}
	want := []CrawlResponse{CrawlStacked, CrawlStacked, CrawlDouble, CrawlRejected}
	if len(resp.Items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(resp.Items))
	}
	for i, w := range want {
		if resp.Items[i].Response != w {
			t.Errorf("item %d: expected %v, got %v", i, w, resp.Items[i].Response)
		}
	}
	if resp.Delay != 2 {
		t.Errorf("expected delay of two stacked urls, got %d", resp.Delay)
	}

	out := resp.Table()
	for i, w := range want {
		if got := out.Get("response" + strconv.Itoa(i)); got != w.String() {
			t.Errorf("response%d: expected %s, got %s", i, w, got)
		}
	}
	back, err := ParseCrawlOrderResponse(out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(back.Items) != len(want) || back.Items[2].LURL == "" {
		t.Errorf("unexpected parsed response %+v", back)
	}
}

func TestCrawlOrderTouchesRequester(t *testing.T) {
	t.Parallel()

	f := newFixture(t, DefaultConfig())
	before, _ := f.dir.Lookup(f.caller.Position)

	time.Sleep(2 * time.Millisecond)
	f.svc.CrawlOrder(context.Background(), CrawlOrderRequest{
		Header:  f.header(""),
		Process: ProcessCrawl,
		Items:   []CrawlItem{{URL: encode(t, "http://www.example.com/", "")}},
	})

	after, _ := f.dir.Lookup(f.caller.Position)
	if !after.LastSeen.After(before.LastSeen) {
		t.Errorf("expected last-seen to advance, got %v then %v", before.LastSeen, after.LastSeen)
	}
}
