package model

import "time"

// ErrorEntry records a crawl that failed or was refused.
type ErrorEntry struct {
	URL      string    `json:"url"`
	URLHash  string    `json:"url_hash"`
	Depth    int       `json:"depth"`
	Profile  string    `json:"profile"`
	Category string    `json:"category"`
	Reason   string    `json:"reason"`
	Status   int       `json:"status"`
	Time     time.Time `json:"time"`
}
