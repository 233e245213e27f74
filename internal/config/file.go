package config

import (
	"time"

	"github.com/nao1215/peercrawl/internal/protocol"
)

// NodeSection describes the node itself.
type NodeSection struct {
	Name     string `yaml:"name,omitempty"`
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Listen   string `yaml:"listen,omitempty"`
	Position string `yaml:"position,omitempty"`
	Capacity int    `yaml:"capacity,omitempty"`
}

// CrawlSection configures remote crawling.
type CrawlSection struct {
	AcceptRemote   *bool         `yaml:"acceptRemote,omitempty"`
	Scope          string        `yaml:"scope,omitempty"`
	Blacklist      string        `yaml:"blacklist,omitempty"`
	IgnorePatterns []string      `yaml:"ignorePatterns,omitempty"`
	FollowPatterns []string      `yaml:"followPatterns,omitempty"`
	QueueCeiling   int           `yaml:"queueCeiling,omitempty"`
	MaxQueue       int           `yaml:"maxQueue,omitempty"`
	Delay          time.Duration `yaml:"delay,omitempty"`
	UserAgent      string        `yaml:"userAgent,omitempty"`
	MaxBodySize    int64         `yaml:"maxBodySize,omitempty"`
}

// IndexSection configures inbound index transfers.
type IndexSection struct {
	AcceptRemote  *bool                   `yaml:"acceptRemote,omitempty"`
	Isolated      *bool                   `yaml:"isolated,omitempty"`
	Ceiling       int                     `yaml:"ceiling,omitempty"`
	FlushInterval time.Duration           `yaml:"flushInterval,omitempty"`
	PermitTTL     time.Duration           `yaml:"permitTTL,omitempty"`
	BadVersions   []protocol.VersionRange `yaml:"badVersions,omitempty"`
	Plain         *bool                   `yaml:"plainTransmission,omitempty"`
}

// NetworkSection configures outbound connections.
type NetworkSection struct {
	Proxy             string        `yaml:"proxy,omitempty"`
	OnionProxy        string        `yaml:"onionProxy,omitempty"`
	EmbeddedTor       *bool         `yaml:"embeddedTor,omitempty"`
	TorStartupTimeout time.Duration `yaml:"torStartupTimeout,omitempty"`
	Timeout           time.Duration `yaml:"timeout,omitempty"`
	VerifyTimeout     time.Duration `yaml:"verifyTimeout,omitempty"`
}

// MaintenanceSection configures the periodic peer maintenance.
type MaintenanceSection struct {
	Interval     time.Duration `yaml:"interval,omitempty"`
	Concurrency  int           `yaml:"concurrency,omitempty"`
	GreetTimeout time.Duration `yaml:"greetTimeout,omitempty"`
	RefreshCount int           `yaml:"refreshCount,omitempty"`
	MaxPeerAge   time.Duration `yaml:"maxPeerAge,omitempty"`
}

// File represents the structure of the .peercrawl configuration file.
// Zero values leave the corresponding setting unchanged.
type File struct {
	Node        NodeSection        `yaml:"node,omitempty"`
	Seeds       []Seed             `yaml:"seeds,omitempty"`
	Crawl       CrawlSection       `yaml:"crawl,omitempty"`
	Index       IndexSection       `yaml:"index,omitempty"`
	Network     NetworkSection     `yaml:"network,omitempty"`
	Maintenance MaintenanceSection `yaml:"maintenance,omitempty"`
	DataDir     string             `yaml:"dataDir,omitempty"`
}

// Apply overrides c with every value set in f.
func (c *Config) Apply(f *File) {
	if f == nil {
		return
	}
	setString(&c.Name, f.Node.Name)
	setString(&c.Host, f.Node.Host)
	setInt(&c.Port, f.Node.Port)
	setString(&c.Listen, f.Node.Listen)
	setString(&c.Position, f.Node.Position)
	setInt(&c.Capacity, f.Node.Capacity)
	if len(f.Seeds) > 0 {
		c.Seeds = f.Seeds
	}

	setBool(&c.AcceptRemoteCrawl, f.Crawl.AcceptRemote)
	setString(&c.Scope, f.Crawl.Scope)
	setString(&c.BlacklistFile, f.Crawl.Blacklist)
	if len(f.Crawl.IgnorePatterns) > 0 {
		c.IgnorePatterns = f.Crawl.IgnorePatterns
	}
	if len(f.Crawl.FollowPatterns) > 0 {
		c.FollowPatterns = f.Crawl.FollowPatterns
	}
	setInt(&c.QueueCeiling, f.Crawl.QueueCeiling)
	setInt(&c.MaxQueue, f.Crawl.MaxQueue)
	setDuration(&c.CrawlDelay, f.Crawl.Delay)
	setString(&c.UserAgent, f.Crawl.UserAgent)
	if f.Crawl.MaxBodySize > 0 {
		c.MaxBodySize = f.Crawl.MaxBodySize
	}

	setBool(&c.AcceptRemoteIndex, f.Index.AcceptRemote)
	setBool(&c.Isolated, f.Index.Isolated)
	setInt(&c.BufferCeiling, f.Index.Ceiling)
	setDuration(&c.FlushInterval, f.Index.FlushInterval)
	setDuration(&c.PermitTTL, f.Index.PermitTTL)
	if f.Index.BadVersions != nil {
		c.BadVersions = f.Index.BadVersions
	}
	setBool(&c.PlainTransmission, f.Index.Plain)

	setString(&c.ProxyAddress, f.Network.Proxy)
	setString(&c.OnionProxyAddress, f.Network.OnionProxy)
	setBool(&c.UseEmbeddedTor, f.Network.EmbeddedTor)
	setDuration(&c.TorStartupTimeout, f.Network.TorStartupTimeout)
	setDuration(&c.Timeout, f.Network.Timeout)
	setDuration(&c.VerifyTimeout, f.Network.VerifyTimeout)

	setDuration(&c.Interval, f.Maintenance.Interval)
	setInt(&c.Concurrency, f.Maintenance.Concurrency)
	setDuration(&c.GreetTimeout, f.Maintenance.GreetTimeout)
	setInt(&c.RefreshCount, f.Maintenance.RefreshCount)
	setDuration(&c.MaxPeerAge, f.Maintenance.MaxPeerAge)

	setString(&c.DBDir, f.DataDir)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
