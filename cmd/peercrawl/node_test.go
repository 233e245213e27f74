package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/peercrawl/internal/config"
	"github.com/nao1215/peercrawl/internal/database"
	"github.com/nao1215/peercrawl/internal/model"
)

// startNode runs a node on a loopback listener and returns its position and
// address.
func startNode(t *testing.T) (*node, string) {
	t.Helper()

	srv := httptest.NewUnstartedServer(nil)
	_, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("unexpected listener address: %v", err)
	}

	cfg := config.NewConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port, _ = strconv.Atoi(port)
	cfg.Name = "test-node"
	cfg.DBDir = t.TempDir()
	cfg.Timeout = 5 * time.Second
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}

	logger := slog.New(slog.DiscardHandler)
	n, err := newNode(t.Context(), cfg, logger)
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	srv.Config.Handler = n.Handler()
	srv.Start()
	t.Cleanup(func() {
		srv.Close()
		if err := n.Close(); err != nil {
			t.Errorf("failed to close node: %v", err)
		}
	})
	return n, srv.Listener.Addr().String()
}

// emptyConfig writes an empty configuration file so tests never read the
// user's files.
func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("node: {}\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// TestNode tests a node end to end through the CLI.
func TestNode(t *testing.T) {
	t.Parallel()

	n, addr := startNode(t)
	self := n.dir.Self()
	cfgPath := emptyConfig(t)
	dataDir := t.TempDir()

	t.Run("node restores nothing on first start", func(t *testing.T) {
		if n.dir.Size() != 0 {
			t.Errorf("expected empty directory, got %d peers", n.dir.Size())
		}
		if got := n.server.CommandNames(); len(got) == 0 {
			t.Error("expected served commands")
		}
	})

	t.Run("hello greets the node and saves it", func(t *testing.T) {
		out, err := runRoot(t, "hello", "--config", cfgPath, "--data-dir", dataDir, "--save", addr)
		if err != nil {
			t.Fatalf("hello failed: %v\n%s", err, out)
		}
		if !strings.Contains(out, self.Position.String()) || !strings.Contains(out, "test-node") {
			t.Errorf("expected responder in output\n%s", out)
		}
		if !strings.Contains(out, "Your type:  junior") {
			t.Errorf("expected loopback caller to stay junior\n%s", out)
		}
		if !strings.Contains(out, "Saved 1 peers") {
			t.Errorf("expected saved peer\n%s", out)
		}

		// The node learned the caller as an unverified peer.
		if n.dir.Size() != 1 {
			t.Errorf("expected node to know the caller, got %d peers", n.dir.Size())
		}
	})

	t.Run("peers shows the saved directory", func(t *testing.T) {
		out, err := runRoot(t, "peers", "--config", cfgPath, "--data-dir", dataDir)
		if err != nil {
			t.Fatalf("peers failed: %v\n%s", err, out)
		}
		if !strings.Contains(out, self.Position.String()) {
			t.Errorf("expected greeted node in output\n%s", out)
		}
		if !strings.Contains(out, "SENIOR:    1") {
			t.Errorf("expected the answering node to be senior\n%s", out)
		}
	})

	t.Run("peers writes markdown to a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "status.md")
		if _, err := runRoot(t, "peers", "--config", cfgPath, "--data-dir", dataDir, "--markdown", "-o", path); err != nil {
			t.Fatalf("peers failed: %v", err)
		}
		content, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected output file: %v", err)
		}
		if !strings.Contains(string(content), "# Peer Directory") {
			t.Errorf("expected markdown output\n%s", content)
		}
	})
}

// TestPeersCmd tests the error paths of the peers command.
func TestPeersCmd(t *testing.T) {
	t.Parallel()

	cfgPath := emptyConfig(t)

	t.Run("missing database", func(t *testing.T) {
		t.Parallel()

		_, err := runRoot(t, "peers", "--config", cfgPath, "--data-dir", filepath.Join(t.TempDir(), "none"))
		if err == nil || !strings.Contains(err.Error(), "no database") {
			t.Errorf("expected missing database error, got %v", err)
		}
	})

	t.Run("conflicting formats", func(t *testing.T) {
		t.Parallel()

		_, err := runRoot(t, "peers", "--config", cfgPath, "--json", "--markdown")
		if err == nil {
			t.Error("expected error for --json with --markdown")
		}
	})

	t.Run("json output", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := database.Open(dir, database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		err = db.SavePeers(t.Context(), []model.Peer{{
			Position: "PeErAa",
			Name:     "alpha",
			Host:     "198.51.100.2",
			Port:     8090,
			Class:    model.ClassPrincipal,
			LastSeen: time.Now().UTC(),
		}})
		if cerr := db.Close(); cerr != nil {
			t.Fatalf("failed to close database: %v", cerr)
		}
		if err != nil {
			t.Fatalf("failed to save peers: %v", err)
		}

		out, err := runRoot(t, "peers", "--config", cfgPath, "--data-dir", dir, "--json")
		if err != nil {
			t.Fatalf("peers failed: %v", err)
		}
		if !strings.Contains(out, `"class": "principal"`) || !strings.Contains(out, `"version"`) {
			t.Errorf("expected versioned JSON output\n%s", out)
		}
	})
}
