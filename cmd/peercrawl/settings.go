package main

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nao1215/peercrawl/internal/config"
	pclog "github.com/nao1215/peercrawl/internal/log"
)

// addNodeFlags registers the flags describing this node.
func addNodeFlags(flags *pflag.FlagSet) {
	flags.String("host", "", "Address peers reach this node at")
	flags.IntP("port", "p", config.DefaultPort, "Port peers reach this node at")
	flags.String("name", "", "Node name announced to peers")
	flags.StringSlice("seed", nil, "Seed peer as host:port or position@host:port (repeatable)")
	flags.String("proxy", "", "Route all outbound traffic through this SOCKS5 proxy")
	flags.String("onion-proxy", "", "Route .onion hosts through this SOCKS5 proxy (e.g. "+config.DefaultTorProxyAddress+")")
	flags.Bool("embedded-tor", false, "Start an embedded Tor daemon for .onion hosts")
	flags.Duration("timeout", config.DefaultTimeout, "Timeout of each outbound request")
	flags.String("data-dir", "", "Directory of the database (default: XDG data directory)")
}

// loadConfig builds the configuration from defaults, the configuration file
// and the flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	flags := cmd.Flags()
	cfg.Verbose, _ = flags.GetBool("verbose")
	cfg.LogJSON, _ = flags.GetBool("log-json")

	stringFlags := []struct {
		flag string
		dst  *string
	}{
		{"host", &cfg.Host},
		{"name", &cfg.Name},
		{"proxy", &cfg.ProxyAddress},
		{"onion-proxy", &cfg.OnionProxyAddress},
		{"data-dir", &cfg.DBDir},
		{"listen", &cfg.Listen},
		{"scope", &cfg.Scope},
		{"blacklist", &cfg.BlacklistFile},
	}
	for _, s := range stringFlags {
		if flags.Lookup(s.flag) == nil || !flags.Changed(s.flag) {
			continue
		}
		if *s.dst, err = flags.GetString(s.flag); err != nil {
			return nil, err
		}
	}

	if flags.Lookup("port") != nil && flags.Changed("port") {
		if cfg.Port, err = flags.GetInt("port"); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("timeout") != nil && flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("interval") != nil && flags.Changed("interval") {
		if cfg.Interval, err = flags.GetDuration("interval"); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("embedded-tor") != nil && flags.Changed("embedded-tor") {
		if cfg.UseEmbeddedTor, err = flags.GetBool("embedded-tor"); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("isolated") != nil && flags.Changed("isolated") {
		if cfg.Isolated, err = flags.GetBool("isolated"); err != nil {
			return nil, err
		}
	}
	if flags.Lookup("seed") != nil && flags.Changed("seed") {
		values, err := flags.GetStringSlice("seed")
		if err != nil {
			return nil, err
		}
		seeds := make([]config.Seed, 0, len(values))
		for _, v := range values {
			seed, err := parseSeedFlag(v)
			if err != nil {
				return nil, err
			}
			seeds = append(seeds, seed)
		}
		cfg.Seeds = seeds
	}
	return cfg, nil
}

// parseSeedFlag parses "host:port", "host" or "position@host:port".
func parseSeedFlag(v string) (config.Seed, error) {
	var seed config.Seed
	if pos, rest, ok := strings.Cut(v, "@"); ok {
		seed.Position = pos
		v = rest
	}
	host, port, err := net.SplitHostPort(v)
	if err != nil {
		seed.Host = v
		return seed, nil
	}
	seed.Host = host
	if seed.Port, err = strconv.Atoi(port); err != nil {
		return config.Seed{}, fmt.Errorf("invalid seed %q: bad port", v)
	}
	return seed, nil
}

// setupLogger creates the structured logger and installs it as default.
func setupLogger(cfg *config.Config) *slog.Logger {
	logger := pclog.New(os.Stderr, cfg.Verbose, cfg.LogJSON)
	slog.SetDefault(logger)
	return logger
}
