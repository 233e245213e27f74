// Package policy decides which URLs a node is willing to crawl or index.
//
// Blacklist holds host/path glob patterns per category, loaded from YAML.
// Domains restricts the crawl scope to the public network, the local
// network, or both.
package policy
