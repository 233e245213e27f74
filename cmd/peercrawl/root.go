package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for peercrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peercrawl",
		Short: "Peer-to-peer crawl coordination node",
		Long: `peercrawl runs a node of a peer-to-peer crawl network.

Nodes greet each other to build a directory of peers, delegate URLs to
remote crawlers, and exchange index postings and URL metadata in bulk.

Configuration is read from .peercrawl in the current or home directory,
or from the file given with --config.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .peercrawl in current or home directory)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewHelloCmd())
	cmd.AddCommand(NewHashCmd())
	cmd.AddCommand(NewPeersCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
