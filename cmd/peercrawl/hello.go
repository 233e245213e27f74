package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nao1215/peercrawl/internal/client"
	"github.com/nao1215/peercrawl/internal/database"
	"github.com/nao1215/peercrawl/internal/peers"
	"github.com/nao1215/peercrawl/internal/transport"
)

// NewHelloCmd creates the hello command.
func NewHelloCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hello [position@]host:port",
		Short: "Greet a peer once",
		Long: `Hello greets one peer with this node's descriptor and prints the answer:
the responder, the address and class it assigned to this node, and the
peers it returned.

The peer's position is derived from its address unless given explicitly.
With --save, the answer is merged into the peer directory in the database.

Examples:
  peercrawl hello --host 203.0.113.1 198.51.100.2:8090
  peercrawl hello --save SeEdAa@198.51.100.3:9000`,
		Args: cobra.ExactArgs(1),
		RunE: runHelloCmd,
	}

	addNodeFlags(cmd.Flags())
	cmd.Flags().Bool("save", false, "Merge the answer into the stored peer directory")
	cmd.Flags().Bool("plain", false, "Send without a transmission key")

	return cmd
}

func runHelloCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Host == "" {
		// Greeting works without a public address; the peer records this
		// node as junior.
		cfg.Host = "127.0.0.1"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	logger := setupLogger(cfg)

	seed, err := parseSeedFlag(args[0])
	if err != nil {
		return err
	}
	target, err := seed.Peer()
	if err != nil {
		return err
	}
	self, err := cfg.SelfPeer()
	if err != nil {
		return err
	}

	save, err := cmd.Flags().GetBool("save")
	if err != nil {
		return err
	}
	plain, err := cmd.Flags().GetBool("plain")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	dir := peers.NewDirectory()
	dir.SetSelf(self)

	var db *database.IndexDB
	if save {
		if db, err = database.Open(cfg.DBDir, database.DefaultOptions()); err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		known, _, err := db.LoadPeers(ctx)
		if err != nil {
			return fmt.Errorf("failed to load peers: %w", err)
		}
		dir.Restore(known)
	}

	topts := []transport.Option{transport.WithTimeout(cfg.Timeout)}
	if cfg.ProxyAddress != "" {
		topts = append(topts, transport.WithProxy(cfg.ProxyAddress))
	}
	if cfg.OnionProxyAddress != "" {
		topts = append(topts, transport.WithOnionProxy(cfg.OnionProxyAddress))
	}
	t, err := transport.New(topts...)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	copts := []client.Option{client.WithLogger(logger)}
	if plain || cfg.PlainTransmission {
		copts = append(copts, client.WithPlainTransmission())
	}
	c := client.New(t.HTTPClient(), dir, copts...)

	res, err := c.Hello(ctx, target)
	if err != nil {
		return fmt.Errorf("hello %s failed: %w", target.Address(), err)
	}
	printHello(cmd, res)

	if db != nil {
		if err := db.SavePeers(ctx, dir.Snapshot()); err != nil {
			return fmt.Errorf("failed to save peers: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d peers to %s\n", dir.Size(), db.Path())
	}
	return nil
}

func printHello(cmd *cobra.Command, res client.HelloResult) {
	out := cmd.OutOrStdout()
	r := res.Responder
	fmt.Fprintf(out, "Responder:  %s %s (%s)\n", r.Position, r.Name, r.Address())
	fmt.Fprintf(out, "Class:      %s\n", r.Class)
	fmt.Fprintf(out, "Version:    %v\n", r.Version)
	fmt.Fprintf(out, "Your IP:    %s\n", res.YourIP)
	fmt.Fprintf(out, "Your type:  %s\n", res.YourType)
	fmt.Fprintf(out, "Learned:    %d peers\n", res.Learned)
	fmt.Fprintf(out, "Clock skew: %s\n", res.Skew)
}
