package protocol

import "fmt"

// Retry delays in seconds, returned with denials and acknowledgements.
const (
	// DelayLong is returned for authentication and authorization denials.
	DelayLong = 3600

	// DelayMedium is returned when the requester is unknown or unqualified.
	DelayMedium = 600

	// DelayUnknownOrder is returned for an unrecognized process kind.
	DelayUnknownOrder = 9999

	// DelayStackedBase is added to the per-request service time when a single
	// URL was stacked.
	DelayStackedBase = 5

	// DelayReceiptFill is returned after a successful fill receipt.
	DelayReceiptFill = 10

	// DelayTransient is returned when a request failed for a reason that is
	// likely to go away soon.
	DelayTransient = 60
)

// Pause hints in milliseconds, returned by the bulk transfer endpoints.
const (
	// PauseDenied is the lowest pause returned with a denial or busy answer.
	PauseDenied = 60000

	// PauseSoftBan is the lowest pause returned to peers running a known-bad
	// version.
	PauseSoftBan = 600000
)

// Reasons returned by the endpoints.
const (
	ReasonOK               = "ok"
	ReasonAuthentify       = "authentify-problem"
	ReasonDepthNotZero     = "depth-not-zero"
	ReasonNotGranted       = "not-granted"
	ReasonUnknownClient    = "unknown-client"
	ReasonNotQualified     = "not-qualified"
	ReasonBusy             = "busy"
	ReasonUnknownOrder     = "unknown-order"
	ReasonMalformedURL     = "malformed-url"
	ReasonDouble           = "double"
	ReasonTransient        = "transient"
	ReasonMissingURL       = "missing-url"
	ReasonUnknownObject    = "unknown-object"
	ReasonPermitInvalid    = "permit-invalid"
	ReasonMalformedPayload = "malformed-payload"
)

// CrawlResponse is the outcome of a crawl order.
type CrawlResponse int

const (
	// CrawlDenied means the order was refused by admission control.
	CrawlDenied CrawlResponse = iota
	// CrawlRejected means the URL was refused by the crawl queue or this node
	// is too busy.
	CrawlRejected
	// CrawlStacked means the URL was put on the crawl queue.
	CrawlStacked
	// CrawlDouble means the URL is already indexed.
	CrawlDouble
	// CrawlEnqueued is the envelope of a multi-URL order.
	CrawlEnqueued
)

var crawlResponseNames = map[CrawlResponse]string{
	CrawlDenied:   "denied",
	CrawlRejected: "rejected",
	CrawlStacked:  "stacked",
	CrawlDouble:   "double",
	CrawlEnqueued: "enqueued",
}

func (r CrawlResponse) String() string {
	if s, ok := crawlResponseNames[r]; ok {
		return s
	}
	return fmt.Sprintf("CrawlResponse(%d)", int(r))
}

// ParseCrawlResponse converts a wire code into a CrawlResponse.
func ParseCrawlResponse(s string) (CrawlResponse, error) {
	return parseOutcome(crawlResponseNames, s)
}

// ReceiptResponse is the outcome of a crawl receipt.
type ReceiptResponse int

const (
	// ReceiptOK means the receipt was processed.
	ReceiptOK ReceiptResponse = iota
	// ReceiptDenied means the receipt failed authentication.
	ReceiptDenied
	// ReceiptRejected means the receipt payload was refused.
	ReceiptRejected
)

var receiptResponseNames = map[ReceiptResponse]string{
	ReceiptOK:       "ok",
	ReceiptDenied:   "denied",
	ReceiptRejected: "rejected",
}

func (r ReceiptResponse) String() string {
	if s, ok := receiptResponseNames[r]; ok {
		return s
	}
	return fmt.Sprintf("ReceiptResponse(%d)", int(r))
}

// ParseReceiptResponse converts a wire code into a ReceiptResponse.
func ParseReceiptResponse(s string) (ReceiptResponse, error) {
	return parseOutcome(receiptResponseNames, s)
}

// ReceiptKind is what the delegate reports about a delegated URL.
type ReceiptKind int

const (
	// ReceiptUnknown is any kind this node does not recognize.
	ReceiptUnknown ReceiptKind = iota
	// ReceiptFill means the URL was loaded and indexed.
	ReceiptFill
	ReceiptUpdate
	ReceiptKnown
	ReceiptStale
	ReceiptUnavailable
	ReceiptRobot
	ReceiptRejectedKind
	ReceiptDequeue
)

var receiptKindNames = map[ReceiptKind]string{
	ReceiptUnknown:      "unknown",
	ReceiptFill:         "fill",
	ReceiptUpdate:       "update",
	ReceiptKnown:        "known",
	ReceiptStale:        "stale",
	ReceiptUnavailable:  "unavailable",
	ReceiptRobot:        "robot",
	ReceiptRejectedKind: "rejected",
	ReceiptDequeue:      "dequeue",
}

func (k ReceiptKind) String() string {
	if s, ok := receiptKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseReceiptKind converts a wire value into a ReceiptKind. Unrecognized
// values yield ReceiptUnknown.
func ParseReceiptKind(s string) ReceiptKind {
	k, err := parseOutcome(receiptKindNames, s)
	if err != nil {
		return ReceiptUnknown
	}
	return k
}

// RWIResult is the outcome of a postings transfer.
type RWIResult int

const (
	RWIOK RWIResult = iota
	RWIWrongTarget
	RWINotGranted
	RWIBusy
)

var rwiResultNames = map[RWIResult]string{
	RWIOK:          "ok",
	RWIWrongTarget: "wrong_target",
	RWINotGranted:  "not_granted",
	RWIBusy:        "busy",
}

func (r RWIResult) String() string {
	if s, ok := rwiResultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("RWIResult(%d)", int(r))
}

// ParseRWIResult converts a wire code into an RWIResult.
func ParseRWIResult(s string) (RWIResult, error) {
	return parseOutcome(rwiResultNames, s)
}

// URLResult is the outcome of a URL metadata transfer.
type URLResult int

const (
	URLOK URLResult = iota
	URLWrongTarget
	URLNotGranted
	URLBusy
)

var urlResultNames = map[URLResult]string{
	URLOK:          "ok",
	URLWrongTarget: "wrong_target",
	URLNotGranted:  "error_not_granted",
	URLBusy:        "busy",
}

func (r URLResult) String() string {
	if s, ok := urlResultNames[r]; ok {
		return s
	}
	return fmt.Sprintf("URLResult(%d)", int(r))
}

// ParseURLResult converts a wire code into a URLResult.
func ParseURLResult(s string) (URLResult, error) {
	return parseOutcome(urlResultNames, s)
}

// TransferResponse is the outcome of a permission or store request.
type TransferResponse int

const (
	TransferOK TransferResponse = iota
	TransferDenied
	TransferRejected
)

var transferResponseNames = map[TransferResponse]string{
	TransferOK:       "ok",
	TransferDenied:   "denied",
	TransferRejected: "rejected",
}

func (r TransferResponse) String() string {
	if s, ok := transferResponseNames[r]; ok {
		return s
	}
	return fmt.Sprintf("TransferResponse(%d)", int(r))
}

// ParseTransferResponse converts a wire code into a TransferResponse.
func ParseTransferResponse(s string) (TransferResponse, error) {
	return parseOutcome(transferResponseNames, s)
}

// EnqueueStatus is the answer of the crawl queue to a stacking request.
type EnqueueStatus int

const (
	EnqueueStacked EnqueueStatus = iota
	EnqueueDouble
	EnqueueRejected
)

func (s EnqueueStatus) String() string {
	switch s {
	case EnqueueStacked:
		return "stacked"
	case EnqueueDouble:
		return "double"
	case EnqueueRejected:
		return "rejected"
	default:
		return fmt.Sprintf("EnqueueStatus(%d)", int(s))
	}
}

func parseOutcome[T comparable](names map[T]string, s string) (T, error) {
	for k, v := range names {
		if v == s {
			return k, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("%w: %q", ErrUnknownOutcome, s)
}
