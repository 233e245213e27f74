package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/peercrawl/internal/crawler"
	"github.com/nao1215/peercrawl/internal/index"
	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/peers"
	"github.com/nao1215/peercrawl/internal/pipeline"
	"github.com/nao1215/peercrawl/internal/policy"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/protocol"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "peercrawl"

	// ProtocolVersion is the protocol version this node announces.
	ProtocolVersion = 1.92

	// DefaultPort is the port peers reach this node at.
	DefaultPort = 8090

	// DefaultCapacity is the declared crawl rate in pages per minute.
	DefaultCapacity = 60

	// DefaultTimeout bounds each outbound request.
	DefaultTimeout = 30 * time.Second

	// DefaultVerifyTimeout bounds the connect-back verification of one
	// greeting caller, across all its candidate addresses.
	DefaultVerifyTimeout = peers.DefaultVerifyTimeout

	// VerifyDialTimeout bounds connection setup of a connect-back call.
	VerifyDialTimeout = time.Second

	// DefaultTorProxyAddress is the SOCKS port of a local Tor daemon.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTorStartupTimeout is how long the embedded Tor daemon may take
	// to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultInterval is the time between maintenance rounds.
	DefaultInterval = 5 * time.Minute

	// DefaultGreetTimeout bounds one greeting during a maintenance round.
	DefaultGreetTimeout = 20 * time.Second

	// DefaultUserAgent identifies the crawler in HTTP requests.
	DefaultUserAgent = "peercrawl/1.0 (+https://github.com/nao1215/peercrawl)"

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// Seed is a peer contacted at startup to join the network.
type Seed struct {
	// Position is the peer's host position. When empty it is derived from
	// the address.
	Position string `yaml:"position,omitempty"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port,omitempty"`
}

// Config holds all configuration options of a node.
type Config struct {
	// Name is a human-readable node name announced to peers.
	Name string

	// Host and Port are the address peers reach this node at.
	Host string
	Port int

	// Listen is the local address the protocol server binds. When empty,
	// ":Port" is used.
	Listen string

	// Position is this node's host position. When empty it is derived from
	// Host and Port.
	Position string

	// Capacity is the declared crawl rate in pages per minute. It drives the
	// delay peers are asked to wait between delegations.
	Capacity int

	// Seeds are greeted at startup and while they are not yet verified.
	Seeds []Seed

	// AcceptRemoteCrawl enables the crawl order endpoint.
	AcceptRemoteCrawl bool

	// AcceptRemoteIndex enables inbound postings and URL transfers.
	AcceptRemoteIndex bool

	// Isolated refuses postings from the network.
	Isolated bool

	// Scope is the crawl scope: "global", "local" or "any".
	Scope string

	// BlacklistFile is a YAML blacklist file. Empty disables the blacklist.
	BlacklistFile string

	// IgnorePatterns and FollowPatterns filter stacked URL paths.
	IgnorePatterns []string
	FollowPatterns []string

	// QueueCeiling is the crawl queue size above which orders are refused.
	QueueCeiling int

	// MaxQueue is the hard capacity of the crawl queue.
	MaxQueue int

	// BufferCeiling is the postings buffer size above which transfers are
	// refused.
	BufferCeiling int

	// FlushInterval is how often the postings buffer is written to the
	// database.
	FlushInterval time.Duration

	// PermitTTL is the lifetime of a transfer access code.
	PermitTTL time.Duration

	// BadVersions lists sender versions whose postings are refused.
	BadVersions []protocol.VersionRange

	// ProxyAddress routes all outbound traffic through a SOCKS5 proxy.
	ProxyAddress string

	// OnionProxyAddress routes .onion hosts through a SOCKS5 proxy.
	OnionProxyAddress string

	// UseEmbeddedTor starts a Tor daemon for .onion hosts.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds the embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// Timeout bounds each outbound request.
	Timeout time.Duration

	// VerifyTimeout bounds the connect-back verification of a greeting
	// caller.
	VerifyTimeout time.Duration

	// CrawlDelay is the pause between two loaded pages.
	CrawlDelay time.Duration

	// UserAgent is sent with crawler requests.
	UserAgent string

	// MaxBodySize limits the response body read per page.
	MaxBodySize int64

	// PlainTransmission disables transmission keys on outbound bulk
	// transfers.
	PlainTransmission bool

	// Interval is the time between maintenance rounds.
	Interval time.Duration

	// Concurrency is the number of greetings in flight during a round.
	Concurrency int

	// GreetTimeout bounds one greeting during a round.
	GreetTimeout time.Duration

	// RefreshCount is the number of known peers greeted per round.
	RefreshCount int

	// MaxPeerAge is how long a peer may go unseen before it is dropped.
	MaxPeerAge time.Duration

	// DBDir is the directory holding the SQLite database.
	DBDir string

	// ConfigFilePath is the configuration file given on the command line.
	ConfigFilePath string

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches the log output to JSON.
	LogJSON bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Port:              DefaultPort,
		Capacity:          DefaultCapacity,
		AcceptRemoteCrawl: true,
		AcceptRemoteIndex: true,
		Scope:             policy.ScopeGlobal.String(),
		QueueCeiling:      protocol.DefaultQueueCeiling,
		MaxQueue:          crawler.DefaultMaxQueue,
		BufferCeiling:     index.DefaultCeiling,
		FlushInterval:     index.DefaultFlushInterval,
		PermitTTL:         protocol.DefaultPermitTTL,
		BadVersions:       protocol.DefaultBadVersions,
		TorStartupTimeout: DefaultTorStartupTimeout,
		Timeout:           DefaultTimeout,
		VerifyTimeout:     DefaultVerifyTimeout,
		CrawlDelay:        crawler.DefaultDelay,
		UserAgent:         DefaultUserAgent,
		MaxBodySize:       DefaultMaxBodySize,
		Interval:          DefaultInterval,
		Concurrency:       pipeline.DefaultConcurrency,
		GreetTimeout:      DefaultGreetTimeout,
		RefreshCount:      pipeline.DefaultRefreshCount,
		MaxPeerAge:        pipeline.DefaultMaxPeerAge,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for peercrawl.
// On Linux: ~/.local/share/peercrawl
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for peercrawl.
// On Linux: ~/.config/peercrawl
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid. It returns the first
// problem found.
func (c *Config) Validate() error {
	if c.Host == "" {
		return ErrNoHost
	}
	if !validPort(c.Port) {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.Position != "" && !position.Position(c.Position).IsHost() {
		return fmt.Errorf("%w: %q", ErrInvalidPosition, c.Position)
	}
	for i, s := range c.Seeds {
		if _, err := s.Peer(); err != nil {
			return fmt.Errorf("seed %d: %w", i, err)
		}
	}
	if _, err := policy.ParseScope(c.Scope); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.VerifyTimeout <= 0 {
		return ErrInvalidVerifyTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.QueueCeiling <= 0 || c.MaxQueue <= 0 || c.BufferCeiling <= 0 {
		return ErrInvalidCeiling
	}
	if c.CrawlDelay < 0 {
		return ErrInvalidCrawlDelay
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.UseEmbeddedTor && c.OnionProxyAddress != "" {
		return ErrConflictingProxies
	}
	return nil
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}

// SelfPosition returns the configured position, or the position derived
// from the advertised address.
func (c *Config) SelfPosition() (position.Position, error) {
	if c.Position != "" {
		p := position.Position(c.Position)
		if !p.IsHost() {
			return "", fmt.Errorf("%w: %q", ErrInvalidPosition, c.Position)
		}
		return p, nil
	}
	return position.HostPosition("http", c.Host, c.Port)
}

// SelfPeer returns the descriptor this node announces.
func (c *Config) SelfPeer() (model.Peer, error) {
	pos, err := c.SelfPosition()
	if err != nil {
		return model.Peer{}, err
	}
	name := c.Name
	if name == "" {
		name = AppName + "-" + pos.String()
	}
	return model.Peer{
		Position:          pos,
		Name:              name,
		Host:              c.Host,
		Port:              c.Port,
		Class:             model.ClassJunior,
		Capacity:          c.Capacity,
		Version:           ProtocolVersion,
		AcceptRemoteCrawl: c.AcceptRemoteCrawl,
		AcceptRemoteIndex: c.AcceptRemoteIndex && !c.Isolated,
	}, nil
}

// ListenAddress returns the address the protocol server binds.
func (c *Config) ListenAddress() string {
	if c.Listen != "" {
		return c.Listen
	}
	return net.JoinHostPort("", strconv.Itoa(c.Port))
}

// Peer converts the seed into a directory entry.
func (s Seed) Peer() (model.Peer, error) {
	if s.Host == "" {
		return model.Peer{}, fmt.Errorf("%w: missing host", ErrInvalidSeed)
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	if !validPort(port) {
		return model.Peer{}, fmt.Errorf("%w: port %d", ErrInvalidSeed, port)
	}
	pos := position.Position(s.Position)
	if s.Position == "" {
		var err error
		if pos, err = position.HostPosition("http", s.Host, port); err != nil {
			return model.Peer{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
		}
	} else if !pos.IsHost() {
		return model.Peer{}, fmt.Errorf("%w: position %q", ErrInvalidSeed, s.Position)
	}
	return model.Peer{
		Position: pos,
		Host:     s.Host,
		Port:     port,
		Class:    model.ClassJunior,
	}, nil
}

// SeedPeers converts all seeds. Seeds are validated by Validate.
func (c *Config) SeedPeers() ([]model.Peer, error) {
	out := make([]model.Peer, 0, len(c.Seeds))
	for i, s := range c.Seeds {
		p, err := s.Peer()
		if err != nil {
			return nil, fmt.Errorf("seed %d: %w", i, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ProtocolConfig returns the endpoint switches.
func (c *Config) ProtocolConfig() protocol.Config {
	pc := protocol.DefaultConfig()
	pc.AcceptRemoteCrawl = c.AcceptRemoteCrawl
	pc.AcceptRemoteIndex = c.AcceptRemoteIndex
	pc.Isolated = c.Isolated
	pc.QueueCeiling = c.QueueCeiling
	pc.PermitTTL = c.PermitTTL
	if c.BadVersions != nil {
		pc.BadVersions = c.BadVersions
	}
	return pc
}

// CrawlScope returns the parsed crawl scope.
func (c *Config) CrawlScope() (policy.Scope, error) {
	return policy.ParseScope(c.Scope)
}

// PipelineConfig returns the maintenance round settings.
func (c *Config) PipelineConfig(seeds []model.Peer) pipeline.DefaultPipelineConfig {
	return pipeline.DefaultPipelineConfig{
		Seeds:        seeds,
		Concurrency:  c.Concurrency,
		GreetTimeout: c.GreetTimeout,
		RefreshCount: c.RefreshCount,
		MaxPeerAge:   c.MaxPeerAge,
	}
}
