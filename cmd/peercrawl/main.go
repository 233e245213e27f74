// Package main provides the entry point for the peercrawl CLI.
//
// peercrawl runs a node of a peer-to-peer crawl network: it greets other
// peers, accepts delegated crawl orders and index transfers, and delegates
// its own work.
//
// Usage:
//
//	peercrawl serve --host 203.0.113.1
//	peercrawl hello 198.51.100.2:8090
//	peercrawl peers --markdown
//
// See --help for all available options.
package main

func main() {
	Execute()
}
