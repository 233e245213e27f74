package crawler

import "errors"

var (
	// ErrQueueFull is returned by Enqueue when the stacker holds its maximum
	// number of URLs.
	ErrQueueFull = errors.New("crawl queue is full")

	// ErrUnexpectedStatus is returned when a page answers with a status code
	// that carries no content.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)
