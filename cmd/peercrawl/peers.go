package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/peercrawl/internal/config"
	"github.com/nao1215/peercrawl/internal/database"
	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/report"
)

// recentErrorLimit is the number of crawl errors shown by the peers command.
const recentErrorLimit = 20

// NewPeersCmd creates the peers command.
func NewPeersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "Show the stored peer directory",
		Long: `Peers renders the peer directory saved by a node together with the size
of its local index.

Examples:
  # Human-readable status
  peercrawl peers

  # Markdown with a class distribution chart, written to a file
  peercrawl peers --markdown -o status.md

  # JSON including the recent crawl errors
  peercrawl peers --json --verbose`,
		Args: cobra.NoArgs,
		RunE: runPeersCmd,
	}

	cmd.Flags().String("data-dir", "", "Directory of the database (default: XDG data directory)")
	cmd.Flags().BoolP("json", "j", false, "Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false, "Output Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "", "Write to the specified file path")

	return cmd
}

func runPeersCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	asMarkdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if asJSON && asMarkdown {
		return errors.New("--json and --markdown cannot be used together")
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := database.Open(cfg.DBDir, database.Options{})
	if err != nil {
		if errors.Is(err, database.ErrDatabaseMissing) {
			return fmt.Errorf("no database in %s: run 'peercrawl serve' first", cfg.DBDir)
		}
		return err
	}
	defer db.Close()

	status, err := loadStatus(cmd, cfg, db)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		if status.RecentErrors, err = db.RecentErrors(ctx, "", recentErrorLimit); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if outputPath != "" {
		dir := filepath.Dir(outputPath)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-chosen output path
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	var w report.Writer
	switch {
	case asJSON:
		w = report.NewJSONWriter(out, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case asMarkdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(cfg.Verbose))
	}
	_, err = w.Write(status)
	return err
}

// loadStatus collects the node status from the database.
func loadStatus(cmd *cobra.Command, cfg *config.Config, db *database.IndexDB) (*model.NodeStatus, error) {
	ctx := cmd.Context()
	known, skipped, err := db.LoadPeers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load peers: %w", err)
	}
	if skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: skipped %d unreadable peer records\n", skipped)
	}

	var self *model.Peer
	if cfg.Host != "" {
		if p, err := cfg.SelfPeer(); err == nil {
			self = &p
		}
	}

	status := model.NewNodeStatus(time.Now(), self, known)
	if status.MetadataEntries, err = db.Size(ctx); err != nil {
		return nil, err
	}
	if status.Postings, err = db.PostingCount(ctx); err != nil {
		return nil, err
	}
	return status, nil
}
