package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
)

// Buffer defaults.
const (
	DefaultCeiling       = 100000
	DefaultFlushInterval = 10 * time.Second
)

// Flusher persists a batch of postings.
type Flusher interface {
	StorePostings(ctx context.Context, postings []model.Posting) error
}

type postingKey struct {
	word position.Position
	url  position.Position
}

// Buffer holds received postings until they are flushed. A posting for a
// word and URL pair that is already buffered replaces the buffered one.
// It is safe for concurrent use.
type Buffer struct {
	flusher       Flusher
	ceiling       int
	limit         int
	flushInterval time.Duration
	logger        *slog.Logger

	mu       sync.Mutex
	postings map[postingKey]model.Posting
	flushed  int64
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithCeiling sets the occupancy above which senders are told the node is
// busy. The hard limit is four times the ceiling unless set explicitly.
func WithCeiling(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.ceiling = n
		}
	}
}

// WithLimit sets the hard limit of the buffer.
func WithLimit(n int) Option {
	return func(b *Buffer) {
		if n > 0 {
			b.limit = n
		}
	}
}

// WithFlushInterval sets how often Run flushes.
func WithFlushInterval(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.flushInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Buffer) {
		b.logger = logger
	}
}

// NewBuffer creates an empty buffer that flushes into flusher.
func NewBuffer(flusher Flusher, opts ...Option) *Buffer {
	b := &Buffer{
		flusher:       flusher,
		ceiling:       DefaultCeiling,
		flushInterval: DefaultFlushInterval,
		logger:        slog.Default(),
		postings:      make(map[postingKey]model.Posting),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.limit < b.ceiling {
		b.limit = 4 * b.ceiling
	}
	return b
}

// Merge adds postings to the buffer. The batch is accepted as a whole or
// not at all.
func (b *Buffer) Merge(_ context.Context, postings []model.Posting) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fresh := 0
	for _, p := range postings {
		if _, ok := b.postings[keyOf(p)]; !ok {
			fresh++
		}
	}
	if len(b.postings)+fresh > b.limit {
		return fmt.Errorf("%w: %d buffered, %d incoming, limit %d", ErrBufferFull, len(b.postings), fresh, b.limit)
	}
	for _, p := range postings {
		b.postings[keyOf(p)] = p
	}
	return nil
}

func keyOf(p model.Posting) postingKey {
	return postingKey{word: p.WordHash, url: p.URLHash}
}

// Occupancy returns the number of buffered postings.
func (b *Buffer) Occupancy() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.postings)
}

// Ceiling returns the configured ceiling.
func (b *Buffer) Ceiling() int {
	return b.ceiling
}

// Flushed returns the number of postings written so far.
func (b *Buffer) Flushed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed
}

// Flush writes every buffered posting. On failure the batch is put back,
// except for postings that were replaced while the flush was running.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.postings) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.postings
	b.postings = make(map[postingKey]model.Posting, len(batch))
	b.mu.Unlock()

	out := make([]model.Posting, 0, len(batch))
	for _, p := range batch {
		out = append(out, p)
	}

	if err := b.flusher.StorePostings(ctx, out); err != nil {
		b.mu.Lock()
		for k, p := range batch {
			if _, replaced := b.postings[k]; !replaced {
				b.postings[k] = p
			}
		}
		b.mu.Unlock()
		return fmt.Errorf("failed to flush %d postings: %w", len(out), err)
	}

	b.mu.Lock()
	b.flushed += int64(len(out))
	b.mu.Unlock()
	b.logger.Debug("postings flushed", "count", len(out))
	return nil
}

// Run flushes periodically until ctx is canceled, then flushes once more.
func (b *Buffer) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := b.Flush(context.WithoutCancel(ctx)); err != nil {
				b.logger.Warn("final postings flush failed", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := b.Flush(ctx); err != nil {
				b.logger.Warn("postings flush failed", "error", err)
			}
		}
	}
}
