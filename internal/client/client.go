package client

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/peers"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/protocol"
	"github.com/nao1215/peercrawl/internal/wire"
)

// DefaultSeedCount is the number of descriptors requested in a greeting.
const DefaultSeedCount = 20

// Delegations records URLs handed to other peers for crawling.
type Delegations interface {
	Add(hash position.Position, delegate position.Position)
}

// Client issues protocol requests on behalf of the local node.
type Client struct {
	http      *http.Client
	dir       *peers.Directory
	pending   Delegations
	logger    *slog.Logger
	seedCount int
	keyed     bool
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithDelegations sets where successful crawl delegations are recorded.
func WithDelegations(d Delegations) Option {
	return func(c *Client) {
		c.pending = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSeedCount sets the number of descriptors requested per greeting.
func WithSeedCount(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.seedCount = n
		}
	}
}

// WithPlainTransmission disables the per-request transmission key. Encoded
// fields then use base64 only.
func WithPlainTransmission() Option {
	return func(c *Client) {
		c.keyed = false
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Client sending requests through httpClient. The own
// descriptor and known peers are taken from dir.
func New(httpClient *http.Client, dir *peers.Directory, opts ...Option) *Client {
	c := &Client{
		http:      httpClient,
		dir:       dir,
		logger:    slog.Default(),
		seedCount: DefaultSeedCount,
		keyed:     true,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	return c
}

// header builds the common request fields addressed to target.
func (c *Client) header(target position.Position) (protocol.Header, error) {
	self := c.dir.Self()
	if !self.Position.IsHost() {
		return protocol.Header{}, ErrNoSelf
	}
	h := protocol.Header{Iam: self.Position, Youare: target}
	if c.keyed {
		h.Key = wire.NewKey()
	}
	return h, nil
}

// call posts t to the command endpoint of target and returns the parsed
// answer.
func (c *Client) call(ctx context.Context, target model.Peer, command string, t *wire.Table) (*wire.Table, error) {
	endpoint := target.BaseURL() + protocol.CommandPath(command)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(t.Values().Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", command, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := c.now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", command, target.Address(), err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	answer, err := wire.ReadResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", command, target.Address(), err)
	}
	c.logger.Debug("peer call",
		slog.String("command", command),
		slog.String("peer", target.Position.String()),
		slog.Duration("elapsed", c.now().Sub(start)),
	)
	return answer, nil
}

// peer resolves pos through the directory.
func (c *Client) peer(pos position.Position) (model.Peer, error) {
	p, err := c.dir.Lookup(pos)
	if err != nil {
		return model.Peer{}, fmt.Errorf("%w: %s", ErrUnknownPeer, pos)
	}
	return p, nil
}
