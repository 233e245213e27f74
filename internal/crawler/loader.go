package crawler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/protocol"
)

// Loader defaults.
const (
	DefaultUserAgent   = "peercrawl"
	DefaultMaxBodySize = 10 * 1024 * 1024
	DefaultDelay       = time.Second
	DefaultIdleWait    = 5 * time.Second
)

// Store persists loaded entries.
type Store interface {
	Store(ctx context.Context, entry model.MetadataEntry) error
}

// Reporter sends a crawl receipt to the peer that delegated a URL.
type Reporter interface {
	ReportReceipt(ctx context.Context, to position.Position, kind protocol.ReceiptKind, reason string, entry model.MetadataEntry) error
}

// Loader fetches stacked URLs one at a time.
type Loader struct {
	client      *http.Client
	queue       *Stacker
	store       Store
	reporter    Reporter
	errlog      protocol.ErrorLog
	userAgent   string
	maxBodySize int64
	delay       time.Duration
	idleWait    time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithReporter sends receipts for URLs stacked on behalf of other peers.
func WithReporter(r Reporter) LoaderOption {
	return func(l *Loader) {
		l.reporter = r
	}
}

// WithErrorLog records URLs that could not be loaded.
func WithErrorLog(e protocol.ErrorLog) LoaderOption {
	return func(l *Loader) {
		l.errlog = e
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) LoaderOption {
	return func(l *Loader) {
		l.userAgent = ua
	}
}

// WithMaxBodySize limits how much of a response body is read.
func WithMaxBodySize(size int64) LoaderOption {
	return func(l *Loader) {
		l.maxBodySize = size
	}
}

// WithDelay sets the pause between two loads.
func WithDelay(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.delay = d
	}
}

// WithIdleWait sets how long Run sleeps when the queue is empty.
func WithIdleWait(d time.Duration) LoaderOption {
	return func(l *Loader) {
		l.idleWait = d
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a loader draining queue into store.
func NewLoader(client *http.Client, queue *Stacker, store Store, opts ...LoaderOption) *Loader {
	l := &Loader{
		client:      client,
		queue:       queue,
		store:       store,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
		delay:       DefaultDelay,
		idleWait:    DefaultIdleWait,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run loads queued URLs until ctx is canceled. It always returns ctx.Err().
func (l *Loader) Run(ctx context.Context) error {
	for {
		wait := l.idleWait
		if e, ok := l.queue.Pop(); ok {
			if err := l.Load(ctx, e); err != nil {
				l.logger.Debug("load failed", "url", e.URL.String(), "error", err)
			}
			wait = l.delay
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Load fetches e, stores its metadata and sends a receipt to the initiator.
// A failed fetch is recorded in the error log and reported as unavailable.
func (l *Loader) Load(ctx context.Context, e Entry) error {
	entry, err := l.fetch(ctx, e)
	if err != nil {
		l.recordFailure(ctx, e, err)
		l.report(ctx, e, protocol.ReceiptUnavailable, err.Error(), model.NewMetadataEntry(e.URL, "", l.now()))
		return err
	}
	if err := l.store.Store(ctx, entry); err != nil {
		return fmt.Errorf("failed to store %s: %w", e.URL, err)
	}
	l.report(ctx, e, protocol.ReceiptFill, "ok", entry)
	return nil
}

func (l *Loader) fetch(ctx context.Context, e Entry) (model.MetadataEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL.String(), nil)
	if err != nil {
		return model.MetadataEntry{}, err
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if e.Referrer != "" {
		req.Header.Set("Referer", e.Referrer)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return model.MetadataEntry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return model.MetadataEntry{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBodySize))
	if err != nil {
		return model.MetadataEntry{}, err
	}

	var title string
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		if t, err := extractTitle(bytes.NewReader(body)); err == nil {
			title = t
		}
	}

	entry := model.NewMetadataEntry(e.URL, title, l.now())
	entry.Size = int64(len(body))
	if mod, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		entry.ModDate = mod.UTC()
	}
	if ref, err := position.URLPosition(e.Referrer); err == nil {
		entry.Referrer = ref
	}
	return entry, nil
}

func (l *Loader) recordFailure(ctx context.Context, e Entry, cause error) {
	if l.errlog == nil {
		return
	}
	err := l.errlog.Push(ctx, model.ErrorEntry{
		URL:      e.URL.String(),
		URLHash:  e.URL.Position().String(),
		Profile:  e.Profile,
		Category: protocol.CategoryCrawler,
		Reason:   cause.Error(),
		Status:   -1,
		Time:     l.now().UTC(),
	})
	if err != nil {
		l.logger.Warn("failed to record crawl error", "url", e.URL.String(), "error", err)
	}
}

func (l *Loader) report(ctx context.Context, e Entry, kind protocol.ReceiptKind, reason string, entry model.MetadataEntry) {
	if l.reporter == nil || e.Profile != protocol.RemoteProfile || !e.Initiator.Valid() {
		return
	}
	if err := l.reporter.ReportReceipt(ctx, e.Initiator, kind, reason, entry); err != nil {
		l.logger.Warn("failed to send crawl receipt", "url", e.URL.String(), "to", e.Initiator.String(), "error", err)
	}
}
