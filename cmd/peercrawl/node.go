package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/peercrawl/internal/client"
	"github.com/nao1215/peercrawl/internal/config"
	"github.com/nao1215/peercrawl/internal/crawler"
	"github.com/nao1215/peercrawl/internal/database"
	"github.com/nao1215/peercrawl/internal/index"
	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/peers"
	"github.com/nao1215/peercrawl/internal/pipeline"
	"github.com/nao1215/peercrawl/internal/policy"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/protocol"
	"github.com/nao1215/peercrawl/internal/transport"
)

// node wires the components of a running peer.
type node struct {
	cfg    *config.Config
	logger *slog.Logger

	db         *database.IndexDB
	dir        *peers.Directory
	pending    *crawler.Pending
	stacker    *crawler.Stacker
	loader     *crawler.Loader
	buffer     *index.Buffer
	handshaker *peers.Handshaker
	client     *client.Client
	service    *protocol.Service
	server     *protocol.Server
	rounds     *pipeline.Pipeline
	tor        *transport.EmbeddedTor
}

// newNode opens the database, restores the peer directory and builds every
// component. The caller must Close the node.
func newNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (n *node, err error) {
	self, err := cfg.SelfPeer()
	if err != nil {
		return nil, err
	}
	seeds, err := cfg.SeedPeers()
	if err != nil {
		return nil, err
	}
	scope, err := cfg.CrawlScope()
	if err != nil {
		return nil, err
	}

	n = &node{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = n.Close()
		}
	}()

	n.db, err = database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	n.dir = peers.NewDirectory()
	n.dir.SetSelf(self)
	known, skipped, err := n.db.LoadPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load peers: %w", err)
	}
	skipped += n.dir.Restore(known)
	if skipped > 0 {
		logger.Warn("skipped unreadable peer records", "count", skipped)
	}

	topts, err := n.transportOptions(ctx)
	if err != nil {
		return nil, err
	}
	httpClient, err := newHTTPClient(topts, transport.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, err
	}
	// Connect-back verification runs inside an inbound hello and gets a
	// client with short bounds.
	probeClient, err := newHTTPClient(topts,
		transport.WithTimeout(cfg.VerifyTimeout),
		transport.WithDialTimeout(config.VerifyDialTimeout),
	)
	if err != nil {
		return nil, err
	}

	blacklist := policy.NewBlacklist()
	if cfg.BlacklistFile != "" {
		if blacklist, err = policy.LoadBlacklist(cfg.BlacklistFile); err != nil {
			return nil, err
		}
	}
	domains := policy.NewDomains(scope)

	n.pending = crawler.NewPending(crawler.DefaultPendingTTL)
	clientOpts := []client.Option{
		client.WithDelegations(n.pending),
		client.WithLogger(logger),
	}
	if cfg.PlainTransmission {
		clientOpts = append(clientOpts, client.WithPlainTransmission())
	}
	n.client = client.New(httpClient, n.dir, clientOpts...)

	n.stacker = crawler.NewStacker(n.db,
		crawler.WithBlacklist(blacklist),
		crawler.WithDomains(domains),
		crawler.WithIgnorePatterns(cfg.IgnorePatterns),
		crawler.WithFollowPatterns(cfg.FollowPatterns),
		crawler.WithMaxQueue(cfg.MaxQueue),
		crawler.WithStackerLogger(logger),
	)
	n.loader = crawler.NewLoader(httpClient, n.stacker, n.db,
		crawler.WithReporter(n.client),
		crawler.WithErrorLog(n.db),
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithMaxBodySize(cfg.MaxBodySize),
		crawler.WithDelay(cfg.CrawlDelay),
		crawler.WithLoaderLogger(logger),
	)
	n.buffer = index.NewBuffer(n.db,
		index.WithCeiling(cfg.BufferCeiling),
		index.WithFlushInterval(cfg.FlushInterval),
		index.WithLogger(logger),
	)
	prober := client.New(probeClient, n.dir, clientOpts...)
	n.handshaker = peers.NewHandshaker(n.dir, prober,
		peers.WithVerifyTimeout(cfg.VerifyTimeout),
		peers.WithLogger(logger),
	)

	n.service, err = protocol.NewService(cfg.ProtocolConfig(), protocol.Dependencies{
		Directory:  n.dir,
		Handshaker: n.handshaker,
		Queue:      n.stacker,
		Pending:    n.pending,
		Segment:    n.db,
		Postings:   n.buffer,
		Blacklist:  blacklist,
		Domains:    domains,
		ErrorLog:   n.db,
		Observer:   receiptLogger{logger: logger},
		Sink:       n.db,
	}, protocol.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	n.server = protocol.NewServer(n.service.Commands(), protocol.WithServerLogger(logger))

	pcfg := cfg.PipelineConfig(seeds)
	pcfg.Logger = logger
	n.rounds = pipeline.DefaultPipeline(n.client, n.dir, n.db, pcfg)
	return n, nil
}

// transportOptions returns the routing shared by all outbound clients,
// starting the embedded Tor daemon when configured.
func (n *node) transportOptions(ctx context.Context) ([]transport.Option, error) {
	opts := []transport.Option{
		transport.WithUserAgent(n.cfg.UserAgent),
	}
	if n.cfg.ProxyAddress != "" {
		opts = append(opts, transport.WithProxy(n.cfg.ProxyAddress))
	}
	if n.cfg.OnionProxyAddress != "" {
		opts = append(opts, transport.WithOnionProxy(n.cfg.OnionProxyAddress))
	}
	if n.cfg.UseEmbeddedTor {
		n.logger.Info("starting embedded Tor daemon")
		n.tor = transport.NewEmbeddedTor(transport.WithStartupTimeout(n.cfg.TorStartupTimeout))
		if err := n.tor.Start(ctx); err != nil {
			n.tor = nil
			return nil, err
		}
		route, err := n.tor.OnionRoute()
		if err != nil {
			return nil, err
		}
		opts = append(opts, route)
		n.logger.Info("embedded Tor daemon started", "socks", n.tor.SocksAddr())
	}
	return opts, nil
}

func newHTTPClient(shared []transport.Option, extra ...transport.Option) (*http.Client, error) {
	t, err := transport.New(append(slices.Clone(shared), extra...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	return t.HTTPClient(), nil
}

// Handler returns the protocol endpoint handler.
func (n *node) Handler() http.Handler {
	return n.server
}

// Run drives the background work until ctx is canceled: the postings flush,
// the crawl loader and the maintenance rounds.
func (n *node) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.buffer.Run(ctx)
	})
	g.Go(func() error {
		return n.loader.Run(ctx)
	})
	g.Go(func() error {
		return n.rounds.Run(ctx, n.cfg.Interval, n.roundDone)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *node) roundDone(r *pipeline.Round) {
	attrs := []any{
		"greeted", r.Greeted,
		"failed", r.Failed,
		"learned", r.Learned,
		"saved", r.Saved,
		"peers", n.dir.Size(),
	}
	if r.Error != nil {
		n.logger.Warn("maintenance round finished with errors", append(attrs, "error", r.Error)...)
		return
	}
	n.logger.Info("maintenance round finished", attrs...)
}

// Close flushes buffered postings, saves the directory and releases all
// resources.
func (n *node) Close() error {
	var errs []error
	if n.buffer != nil {
		errs = append(errs, n.buffer.Flush(context.Background()))
	}
	if n.db != nil && n.dir != nil {
		errs = append(errs, n.db.SavePeers(context.Background(), n.dir.Snapshot()))
	}
	if n.service != nil {
		errs = append(errs, n.service.Close())
	}
	if n.handshaker != nil {
		errs = append(errs, n.handshaker.Close())
	}
	if n.pending != nil {
		errs = append(errs, n.pending.Close())
	}
	if n.db != nil {
		errs = append(errs, n.db.Close())
	}
	if n.tor != nil {
		errs = append(errs, n.tor.Stop())
	}
	return errors.Join(errs...)
}

// receiptLogger logs delegated URLs reported as indexed by a remote peer.
type receiptLogger struct {
	logger *slog.Logger
}

func (r receiptLogger) Observed(_ context.Context, entry model.MetadataEntry, from position.Position) {
	r.logger.Info("delegated URL indexed", "url", entry.URL, "peer", from.String())
}
