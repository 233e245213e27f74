package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

// Process kinds.
const (
	ProcessCrawl      = "crawl"
	ProcessPermission = "permission"
	ProcessStore      = "store"
)

// Query objects.
const (
	QueryRWICount  = "rwicount"
	QueryLURLCount = "lurlcount"
	QuerySeed      = "seed"
)

// maxIndexedItems bounds the number of url<i> fields read from one request.
const maxIndexedItems = 1000

// Header carries the fields common to every request.
type Header struct {
	// Iam is the caller's position.
	Iam position.Position

	// Youare is the position the caller expects to talk to.
	Youare position.Position

	// Key is the transmission key used to decode encoded fields.
	Key string
}

func readHeader(t *wire.Table) Header {
	return Header{
		Iam:    position.Position(t.Get("iam")),
		Youare: position.Position(t.Get("youare")),
		Key:    t.Get("key"),
	}
}

func (h Header) write(t *wire.Table) {
	t.Set("iam", h.Iam.String())
	t.Set("youare", h.Youare.String())
	if h.Key != "" {
		t.Set("key", h.Key)
	}
}

// EncodeValue encodes s for transmission. A non-empty key selects the keyed
// cipher; otherwise base64 is used.
func EncodeValue(s, key string) (string, error) {
	if key == "" {
		return wire.MustEncodeString(wire.MethodBase64, s), nil
	}
	return wire.EncodeString(wire.MethodCipher, s, key)
}

// CrawlItem is one URL of a crawl order. Both fields are encoded with the
// transmission key.
type CrawlItem struct {
	URL      string
	Referrer string
}

// CrawlOrderRequest asks a peer to crawl URLs on the caller's behalf.
type CrawlOrderRequest struct {
	Header
	Process string
	Depth   int
	Items   []CrawlItem

	// Multi selects the indexed url<i> form even for a single item.
	Multi bool
}

// Table converts the request into its wire form.
func (r CrawlOrderRequest) Table() *wire.Table {
	t := wire.NewTable()
	r.Header.write(t)
	t.Set("process", r.Process)
	t.SetInt("depth", int64(r.Depth))
	if !r.Multi && len(r.Items) == 1 {
		t.Set("url", r.Items[0].URL)
		t.Set("referrer", r.Items[0].Referrer)
		return t
	}
	for i, item := range r.Items {
		t.Set(indexed("url", i), item.URL)
		t.Set(indexed("ref", i), item.Referrer)
	}
	return t
}

// ParseCrawlOrderRequest reads a crawl order from its wire form.
func ParseCrawlOrderRequest(t *wire.Table) CrawlOrderRequest {
	r := CrawlOrderRequest{
		Header:  readHeader(t),
		Process: t.Get("process"),
		Depth:   int(t.GetInt("depth", 0)),
	}
	if u, ok := t.Lookup("url"); ok {
		r.Items = []CrawlItem{{URL: u, Referrer: t.Get("referrer")}}
		return r
	}
	r.Multi = true
	for i := 0; i < maxIndexedItems; i++ {
		u, ok := t.Lookup(indexed("url", i))
		if !ok {
			break
		}
		r.Items = append(r.Items, CrawlItem{URL: u, Referrer: t.Get(indexed("ref", i))})
	}
	return r
}

// CrawlItemResult is the per-URL outcome of a multi-URL order.
type CrawlItemResult struct {
	Response CrawlResponse
	Reason   string

	// LURL is the encoded metadata entry of an already indexed URL.
	LURL string
}

// CrawlOrderResponse is the answer to a crawl order.
type CrawlOrderResponse struct {
	Response CrawlResponse
	Reason   string

	// Delay is the number of seconds the caller should wait before sending
	// the next order.
	Delay int

	// LURL is set for a single-URL order answered with CrawlDouble.
	LURL string

	// Items is set for multi-URL orders.
	Items []CrawlItemResult
}

// Table converts the response into its wire form.
func (r CrawlOrderResponse) Table() *wire.Table {
	t := wire.NewTable()
	t.Set("response", r.Response.String())
	t.Set("reason", r.Reason)
	t.SetInt("delay", int64(r.Delay))
	if r.LURL != "" {
		t.Set("lurl", r.LURL)
	}
	for i, item := range r.Items {
		t.Set(indexed("response", i), item.Response.String())
		t.Set(indexed("reason", i), item.Reason)
		if item.LURL != "" {
			t.Set(indexed("lurl", i), item.LURL)
		}
	}
	return t
}

// ParseCrawlOrderResponse reads a crawl order response from its wire form.
func ParseCrawlOrderResponse(t *wire.Table) (CrawlOrderResponse, error) {
	resp, err := ParseCrawlResponse(t.Get("response"))
	if err != nil {
		return CrawlOrderResponse{}, err
	}
	r := CrawlOrderResponse{
		Response: resp,
		Reason:   t.Get("reason"),
		Delay:    int(t.GetInt("delay", 0)),
		LURL:     t.Get("lurl"),
	}
	for i := 0; i < maxIndexedItems; i++ {
		code, ok := t.Lookup(indexed("response", i))
		if !ok {
			break
		}
		item, err := ParseCrawlResponse(code)
		if err != nil {
			return CrawlOrderResponse{}, fmt.Errorf("item %d: %w", i, err)
		}
		r.Items = append(r.Items, CrawlItemResult{
			Response: item,
			Reason:   t.Get(indexed("reason", i)),
			LURL:     t.Get(indexed("lurl", i)),
		})
	}
	return r, nil
}

// CrawlReceiptRequest reports the fate of a delegated URL back to the peer
// that delegated it.
type CrawlReceiptRequest struct {
	Header
	Result ReceiptKind
	Reason string

	// Entry is the encoded metadata entry of the URL.
	Entry string
}

// Table converts the request into its wire form.
func (r CrawlReceiptRequest) Table() *wire.Table {
	t := wire.NewTable()
	r.Header.write(t)
	t.Set("result", r.Result.String())
	t.Set("reason", r.Reason)
	t.Set("lurlEntry", r.Entry)
	return t
}

// ParseCrawlReceiptRequest reads a receipt from its wire form.
func ParseCrawlReceiptRequest(t *wire.Table) CrawlReceiptRequest {
	return CrawlReceiptRequest{
		Header: readHeader(t),
		Result: ParseReceiptKind(t.Get("result")),
		Reason: t.Get("reason"),
		Entry:  t.Get("lurlEntry"),
	}
}

// CrawlReceiptResponse is the answer to a receipt.
type CrawlReceiptResponse struct {
	Response ReceiptResponse
	Reason   string
	Delay    int
}

// Table converts the response into its wire form.
func (r CrawlReceiptResponse) Table() *wire.Table {
	t := wire.NewTable()
	t.Set("response", r.Response.String())
	t.Set("reason", r.Reason)
	t.SetInt("delay", int64(r.Delay))
	return t
}

// ParseCrawlReceiptResponse reads a receipt response from its wire form.
func ParseCrawlReceiptResponse(t *wire.Table) (CrawlReceiptResponse, error) {
	resp, err := ParseReceiptResponse(t.Get("response"))
	if err != nil {
		return CrawlReceiptResponse{}, err
	}
	return CrawlReceiptResponse{
		Response: resp,
		Reason:   t.Get("reason"),
		Delay:    int(t.GetInt("delay", 0)),
	}, nil
}

// RWIRequest transfers postings to the peer responsible for their words.
type RWIRequest struct {
	Header
	WordCount  int
	EntryCount int

	// Lines holds one posting per element, in the form produced by
	// model.Posting.Line.
	Lines []string
}

// Table converts the request into its wire form.
func (r RWIRequest) Table() *wire.Table {
	t := wire.NewTable()
	r.Header.write(t)
	t.SetInt("wordc", int64(r.WordCount))
	t.SetInt("entryc", int64(r.EntryCount))
	t.Set("indexes", strings.Join(r.Lines, "\n"))
	return t
}

// ParseRWIRequest reads a postings transfer from its wire form.
func ParseRWIRequest(t *wire.Table) RWIRequest {
	r := RWIRequest{
		Header:     readHeader(t),
		WordCount:  int(t.GetInt("wordc", 0)),
		EntryCount: int(t.GetInt("entryc", 0)),
	}
	for _, line := range strings.Split(t.Get("indexes"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			r.Lines = append(r.Lines, line)
		}
	}
	return r
}

// RWIResponse is the answer to a postings transfer.
type RWIResponse struct {
	Result RWIResult

	// UnknownURL lists referenced URLs this node has no metadata for.
	UnknownURL []position.Position

	// Pause is the number of milliseconds to wait before the next transfer.
	Pause int

	// Blocked is the number of entries that were skipped.
	Blocked int
}

// Table converts the response into its wire form.
func (r RWIResponse) Table() *wire.Table {
	t := wire.NewTable()
	t.Set("result", r.Result.String())
	hashes := make([]string, len(r.UnknownURL))
	for i, h := range r.UnknownURL {
		hashes[i] = h.String()
	}
	t.Set("unknownURL", strings.Join(hashes, ","))
	t.SetInt("pause", int64(r.Pause))
	t.SetInt("blocked", int64(r.Blocked))
	return t
}

// ParseRWIResponse reads a postings transfer response from its wire form.
func ParseRWIResponse(t *wire.Table) (RWIResponse, error) {
	res, err := ParseRWIResult(t.Get("result"))
	if err != nil {
		return RWIResponse{}, err
	}
	r := RWIResponse{
		Result:  res,
		Pause:   int(t.GetInt("pause", 0)),
		Blocked: int(t.GetInt("blocked", 0)),
	}
	for _, h := range strings.Split(t.Get("unknownURL"), ",") {
		if p := position.Position(strings.TrimSpace(h)); p.IsURL() {
			r.UnknownURL = append(r.UnknownURL, p)
		}
	}
	return r, nil
}

// URLRequest transfers URL metadata entries.
type URLRequest struct {
	Header

	// Entries holds metadata entries encoded with the transmission key.
	Entries []string
}

// Table converts the request into its wire form.
func (r URLRequest) Table() *wire.Table {
	t := wire.NewTable()
	r.Header.write(t)
	t.SetInt("urlc", int64(len(r.Entries)))
	for i, e := range r.Entries {
		t.Set(indexed("url", i), e)
	}
	return t
}

// ParseURLRequest reads a URL transfer from its wire form.
func ParseURLRequest(t *wire.Table) URLRequest {
	r := URLRequest{Header: readHeader(t)}
	n := min(int(t.GetInt("urlc", 0)), maxIndexedItems)
	for i := 0; i < n; i++ {
		if e, ok := t.Lookup(indexed("url", i)); ok {
			r.Entries = append(r.Entries, e)
		}
	}
	return r
}

// URLResponse is the answer to a URL transfer.
type URLResponse struct {
	Result   URLResult
	Received int
	Double   int
}

// Table converts the response into its wire form.
func (r URLResponse) Table() *wire.Table {
	t := wire.NewTable()
	t.Set("result", r.Result.String())
	t.SetInt("received", int64(r.Received))
	t.SetInt("double", int64(r.Double))
	return t
}

// ParseURLResponse reads a URL transfer response from its wire form.
func ParseURLResponse(t *wire.Table) (URLResponse, error) {
	res, err := ParseURLResult(t.Get("result"))
	if err != nil {
		return URLResponse{}, err
	}
	return URLResponse{
		Result:   res,
		Received: int(t.GetInt("received", 0)),
		Double:   int(t.GetInt("double", 0)),
	}, nil
}

// HelloRequest greets a peer.
type HelloRequest struct {
	Header

	// Count is the number of peer descriptors the caller wants.
	Count int

	// Seed is the caller's own descriptor, encoded with the transmission key.
	Seed string

	// ArrivalHost is the address the request arrived from. It is filled in by
	// the server, never read from the wire.
	ArrivalHost string
}

// Table converts the request into its wire form.
func (r HelloRequest) Table() *wire.Table {
	t := wire.NewTable()
	r.Header.write(t)
	t.SetInt("count", int64(r.Count))
	t.Set("seed", r.Seed)
	return t
}

// ParseHelloRequest reads a greeting from its wire form.
func ParseHelloRequest(t *wire.Table) HelloRequest {
	return HelloRequest{
		Header: readHeader(t),
		Count:  int(t.GetInt("count", 0)),
		Seed:   t.Get("seed"),
	}
}

// HelloResponse is the answer to a greeting.
type HelloResponse struct {
	Message  string
	YourIP   string
	YourType model.PeerClass
	MyTime   time.Time

	// Seeds holds encoded descriptors. The first one describes the
	// responder.
	Seeds []string
}

// Table converts the response into its wire form.
func (r HelloResponse) Table() *wire.Table {
	t := wire.NewTable()
	t.Set("message", r.Message)
	t.Set("yourip", r.YourIP)
	t.Set("yourtype", r.YourType.String())
	t.Set("mytime", r.MyTime.UTC().Format(model.TimeLayout))
	t.SetInt("seedlist", int64(len(r.Seeds)))
	for i, s := range r.Seeds {
		t.Set(indexed("seed", i), s)
	}
	return t
}

// ParseHelloResponse reads a greeting response from its wire form.
func ParseHelloResponse(t *wire.Table) HelloResponse {
	r := HelloResponse{
		Message:  t.Get("message"),
		YourIP:   t.Get("yourip"),
		YourType: model.ParsePeerClass(t.Get("yourtype")),
	}
	if ts, err := time.Parse(model.TimeLayout, t.Get("mytime")); err == nil {
		r.MyTime = ts.UTC()
	}
	for i := 0; i < maxIndexedItems; i++ {
		s, ok := t.Lookup(indexed("seed", i))
		if !ok {
			break
		}
		r.Seeds = append(r.Seeds, s)
	}
	return r
}

// QueryRequest asks a peer for a counter or its own descriptor.
type QueryRequest struct {
	Header
	Object string

	// Env narrows the query, e.g. to one word hash.
	Env string
}

// Table converts the request into its wire form.
func (r QueryRequest) Table() *wire.Table {
	t := wire.NewTable()
	r.Header.write(t)
	t.Set("object", r.Object)
	if r.Env != "" {
		t.Set("env", r.Env)
	}
	return t
}

// ParseQueryRequest reads a query from its wire form.
func ParseQueryRequest(t *wire.Table) QueryRequest {
	return QueryRequest{
		Header: readHeader(t),
		Object: t.Get("object"),
		Env:    t.Get("env"),
	}
}

// QueryResponse is the answer to a query. Response is "-1" when the query
// was refused.
type QueryResponse struct {
	Response string
	Reason   string
	MyTime   time.Time
}

// Denied reports whether the query was refused.
func (r QueryResponse) Denied() bool {
	return r.Response == "-1"
}

// Table converts the response into its wire form.
func (r QueryResponse) Table() *wire.Table {
	t := wire.NewTable()
	t.Set("response", r.Response)
	if r.Reason != "" {
		t.Set("reason", r.Reason)
	}
	t.Set("mytime", r.MyTime.UTC().Format(model.TimeLayout))
	return t
}

// ParseQueryResponse reads a query response from its wire form.
func ParseQueryResponse(t *wire.Table) QueryResponse {
	r := QueryResponse{
		Response: t.Get("response"),
		Reason:   t.Get("reason"),
	}
	if ts, err := time.Parse(model.TimeLayout, t.Get("mytime")); err == nil {
		r.MyTime = ts.UTC()
	}
	return r
}

// TransferRequest asks for a permit or delivers a payload under one.
type TransferRequest struct {
	Header
	Process  string
	Purpose  string
	Filename string

	// Code is the access code returned by a permission request.
	Code string

	// Payload is encoded with the transmission key.
	Payload string
}

// Table converts the request into its wire form.
func (r TransferRequest) Table() *wire.Table {
	t := wire.NewTable()
	r.Header.write(t)
	t.Set("process", r.Process)
	t.Set("purpose", r.Purpose)
	t.Set("filename", r.Filename)
	if r.Code != "" {
		t.Set("code", r.Code)
	}
	if r.Payload != "" {
		t.Set("payload", r.Payload)
	}
	return t
}

// ParseTransferRequest reads a transfer request from its wire form.
func ParseTransferRequest(t *wire.Table) TransferRequest {
	return TransferRequest{
		Header:   readHeader(t),
		Process:  t.Get("process"),
		Purpose:  t.Get("purpose"),
		Filename: t.Get("filename"),
		Code:     t.Get("code"),
		Payload:  t.Get("payload"),
	}
}

// TransferReply is the answer to a transfer request.
type TransferReply struct {
	Response TransferResponse
	Reason   string
	Code     string
	Delay    int
}

// Table converts the reply into its wire form.
func (r TransferReply) Table() *wire.Table {
	t := wire.NewTable()
	t.Set("response", r.Response.String())
	t.Set("reason", r.Reason)
	if r.Code != "" {
		t.Set("code", r.Code)
	}
	t.SetInt("delay", int64(r.Delay))
	return t
}

// ParseTransferReply reads a transfer reply from its wire form.
func ParseTransferReply(t *wire.Table) (TransferReply, error) {
	resp, err := ParseTransferResponse(t.Get("response"))
	if err != nil {
		return TransferReply{}, err
	}
	return TransferReply{
		Response: resp,
		Reason:   t.Get("reason"),
		Code:     t.Get("code"),
		Delay:    int(t.GetInt("delay", 0)),
	}, nil
}

func indexed(key string, i int) string {
	return key + strconv.Itoa(i)
}
