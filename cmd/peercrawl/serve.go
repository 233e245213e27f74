package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/peercrawl/internal/config"
)

// shutdownTimeout bounds the graceful shutdown of the protocol server.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a node",
		Long: `Serve runs a node: it answers the peer protocol, crawls URLs delegated by
other peers, buffers received postings and periodically greets known peers.

Examples:
  # Run a node reachable at 203.0.113.1:8090, joining through one seed
  peercrawl serve --host 203.0.113.1 --seed 198.51.100.2:8090

  # Route .onion peers through a local Tor daemon
  peercrawl serve --host 203.0.113.1 --onion-proxy 127.0.0.1:9050

  # Accept crawl orders but refuse postings from the network
  peercrawl serve --host 203.0.113.1 --isolated`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	addNodeFlags(cmd.Flags())
	cmd.Flags().String("listen", "", "Local bind address (default \":<port>\")")
	cmd.Flags().String("scope", "", "Crawl scope: global, local or any")
	cmd.Flags().String("blacklist", "", "YAML blacklist file")
	cmd.Flags().Bool("isolated", false, "Refuse postings from the network")
	cmd.Flags().Duration("interval", config.DefaultInterval, "Time between maintenance rounds")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := setupLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := newNode(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Error("failed to close node", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           n.Handler(),
		ReadHeaderTimeout: cfg.Timeout,
	}

	self := n.dir.Self()
	logger.Info("node started",
		"position", self.Position.String(),
		"address", self.Address(),
		"listen", srv.Addr,
		"peers", n.dir.Size(),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s (%s) on %s\n", self.Name, self.Position, srv.Addr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("protocol server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return n.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
