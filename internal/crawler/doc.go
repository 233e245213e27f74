// Package crawler holds the local side of crawl delegation.
//
// # Components
//
//   - Stacker: the queue of URLs this node agreed to crawl, with
//     de-duplication against the queue and the index
//   - Pending: URLs this node delegated to other peers and for which no
//     receipt has arrived yet
//   - Loader: drains the Stacker, fetches each URL, stores its metadata and
//     reports the result back to the peer that delegated it
//
// # Usage
//
//	stacker := crawler.NewStacker(segment, crawler.WithBlacklist(bl), crawler.WithDomains(domains))
//	loader := crawler.NewLoader(httpClient, stacker, segment, crawler.WithReporter(client))
//	go loader.Run(ctx)
//
// Only the page title is extracted from a loaded page. Word indexing is left
// to the storage engine.
package crawler
