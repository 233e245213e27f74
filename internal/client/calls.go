package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/protocol"
	"github.com/nao1215/peercrawl/internal/wire"
)

// HelloResult is what a greeting taught this node.
type HelloResult struct {
	// Responder is the greeted peer as stored in the directory.
	Responder model.Peer

	// YourIP is the address under which the responder sees this node.
	YourIP string

	// YourType is the class the responder assigned to this node.
	YourType model.PeerClass

	// Learned is the number of other peers added or refreshed.
	Learned int

	// Skew is the responder's clock minus the local clock.
	Skew time.Duration
}

// Hello greets target with the own descriptor and merges the returned
// descriptors into the directory. The responder is stored as verified
// because it answered at its address under the expected position.
func (c *Client) Hello(ctx context.Context, target model.Peer) (HelloResult, error) {
	h, err := c.header(target.Position)
	if err != nil {
		return HelloResult{}, err
	}
	seed, err := protocol.EncodeValue(c.dir.Self().Descriptor(), h.Key)
	if err != nil {
		return HelloResult{}, fmt.Errorf("failed to encode own descriptor: %w", err)
	}

	t, err := c.call(ctx, target, protocol.CommandHello, protocol.HelloRequest{
		Header: h,
		Count:  c.seedCount,
		Seed:   seed,
	}.Table())
	if err != nil {
		return HelloResult{}, err
	}
	resp := protocol.ParseHelloResponse(t)
	if resp.Message != protocol.MessageOK {
		return HelloResult{}, fmt.Errorf("%w: hello: %s", ErrRefused, resp.Message)
	}
	if len(resp.Seeds) == 0 {
		return HelloResult{}, fmt.Errorf("%w: hello answer without own descriptor", ErrRefused)
	}

	descriptors := make([]model.Peer, 0, len(resp.Seeds))
	for i, s := range resp.Seeds {
		p, err := parseSeed(s, h.Key)
		if err != nil {
			if i == 0 {
				return HelloResult{}, err
			}
			c.logger.Debug("skipping unparsable seed", slog.String("peer", target.Position.String()), slog.Any("error", err))
			continue
		}
		descriptors = append(descriptors, p)
	}

	responder := descriptors[0]
	if responder.Position != target.Position {
		return HelloResult{}, fmt.Errorf("%w: expected %s, got %s", ErrPositionMismatch, target.Position, responder.Position)
	}
	responder.Host, responder.Port = target.Host, target.Port
	responder.LastSeen = c.now().UTC()
	class := model.ClassSenior
	if responder.DeclaredClass.AtLeast(class) {
		class = responder.DeclaredClass
	}
	stored, err := c.dir.UpsertVerified(responder, class)
	if err != nil {
		return HelloResult{}, err
	}

	res := HelloResult{
		Responder: stored,
		YourIP:    resp.YourIP,
		YourType:  resp.YourType,
	}
	if !resp.MyTime.IsZero() {
		res.Skew = resp.MyTime.Sub(c.now())
	}
	self := c.dir.Self().Position
	for _, p := range descriptors[1:] {
		if p.Position == self || p.Position == responder.Position {
			continue
		}
		if _, err := c.dir.Upsert(p); err == nil {
			res.Learned++
		}
	}
	return res, nil
}

func parseSeed(s, key string) (model.Peer, error) {
	raw, err := wire.DecodeString(s, key)
	if err != nil {
		return model.Peer{}, fmt.Errorf("failed to decode seed: %w", err)
	}
	return model.ParseDescriptor(raw)
}

// Query asks target for object. A refusal is returned as ErrRefused with the
// peer's reason.
func (c *Client) Query(ctx context.Context, target model.Peer, object, env string) (protocol.QueryResponse, error) {
	h, err := c.header(target.Position)
	if err != nil {
		return protocol.QueryResponse{}, err
	}
	return c.query(ctx, target, h, object, env)
}

func (c *Client) query(ctx context.Context, target model.Peer, h protocol.Header, object, env string) (protocol.QueryResponse, error) {
	t, err := c.call(ctx, target, protocol.CommandQuery, protocol.QueryRequest{Header: h, Object: object, Env: env}.Table())
	if err != nil {
		return protocol.QueryResponse{}, err
	}
	resp := protocol.ParseQueryResponse(t)
	if resp.Denied() {
		return resp, fmt.Errorf("%w: query %s: %s", ErrRefused, object, resp.Reason)
	}
	return resp, nil
}

// Count queries one of the numeric counters of target.
func (c *Client) Count(ctx context.Context, target model.Peer, object string) (int, error) {
	resp, err := c.Query(ctx, target, object, "")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(resp.Response)
	if err != nil {
		return 0, fmt.Errorf("query %s: bad counter %q: %w", object, resp.Response, err)
	}
	return n, nil
}

// Probe implements the connect-back check of the handshake. It asks the
// address of target for its descriptor and succeeds when the answer carries
// target's position.
func (c *Client) Probe(ctx context.Context, target model.Peer) error {
	h, err := c.header(target.Position)
	if err != nil {
		return err
	}
	resp, err := c.query(ctx, target, h, protocol.QuerySeed, "")
	if err != nil {
		return err
	}
	p, err := parseSeed(resp.Response, h.Key)
	if err != nil {
		return err
	}
	if p.Position != target.Position {
		return fmt.Errorf("%w: expected %s, got %s", ErrPositionMismatch, target.Position, p.Position)
	}
	return nil
}

// Delegate sends a crawl order for urls to target. URLs the peer stacked are
// recorded as pending delegations. An order of one URL uses the single form.
func (c *Client) Delegate(ctx context.Context, target model.Peer, urls []string, referrer string) (protocol.CrawlOrderResponse, error) {
	h, err := c.header(target.Position)
	if err != nil {
		return protocol.CrawlOrderResponse{}, err
	}

	items := make([]protocol.CrawlItem, 0, len(urls))
	hashes := make([]position.Position, 0, len(urls))
	for _, raw := range urls {
		pos, err := position.URLPosition(raw)
		if err != nil {
			return protocol.CrawlOrderResponse{}, fmt.Errorf("failed to hash %q: %w", raw, err)
		}
		u, err := protocol.EncodeValue(raw, h.Key)
		if err != nil {
			return protocol.CrawlOrderResponse{}, err
		}
		ref, err := protocol.EncodeValue(referrer, h.Key)
		if err != nil {
			return protocol.CrawlOrderResponse{}, err
		}
		items = append(items, protocol.CrawlItem{URL: u, Referrer: ref})
		hashes = append(hashes, pos)
	}
	if len(items) == 0 {
		return protocol.CrawlOrderResponse{}, errors.New("no urls to delegate")
	}

	t, err := c.call(ctx, target, protocol.CommandCrawlOrder, protocol.CrawlOrderRequest{
		Header:  h,
		Process: protocol.ProcessCrawl,
		Items:   items,
	}.Table())
	if err != nil {
		return protocol.CrawlOrderResponse{}, err
	}
	resp, err := protocol.ParseCrawlOrderResponse(t)
	if err != nil {
		return protocol.CrawlOrderResponse{}, fmt.Errorf("crawl order %s: %w", target.Address(), err)
	}

	if len(resp.Items) == 0 {
		if resp.Response == protocol.CrawlStacked {
			c.delegated(hashes[0], target.Position)
		}
		if resp.Response == protocol.CrawlDenied {
			return resp, fmt.Errorf("%w: crawl order: %s", ErrRefused, resp.Reason)
		}
		return resp, nil
	}
	for i, item := range resp.Items {
		if i < len(hashes) && item.Response == protocol.CrawlStacked {
			c.delegated(hashes[i], target.Position)
		}
	}
	return resp, nil
}

func (c *Client) delegated(hash, delegate position.Position) {
	if c.pending != nil {
		c.pending.Add(hash, delegate)
	}
}

// ReportReceipt tells the peer at to what became of a URL it delegated.
func (c *Client) ReportReceipt(ctx context.Context, to position.Position, kind protocol.ReceiptKind, reason string, entry model.MetadataEntry) error {
	target, err := c.peer(to)
	if err != nil {
		return err
	}
	h, err := c.header(to)
	if err != nil {
		return err
	}
	encoded, err := protocol.EncodeValue(entry.Encode(), h.Key)
	if err != nil {
		return err
	}

	t, err := c.call(ctx, target, protocol.CommandCrawlReceipt, protocol.CrawlReceiptRequest{
		Header: h,
		Result: kind,
		Reason: reason,
		Entry:  encoded,
	}.Table())
	if err != nil {
		return err
	}
	resp, err := protocol.ParseCrawlReceiptResponse(t)
	if err != nil {
		return fmt.Errorf("crawl receipt %s: %w", target.Address(), err)
	}
	if resp.Response != protocol.ReceiptOK {
		return fmt.Errorf("%w: crawl receipt: %s", ErrRefused, resp.Reason)
	}
	return nil
}

// TransferRWI sends postings to target.
func (c *Client) TransferRWI(ctx context.Context, target model.Peer, postings []model.Posting) (protocol.RWIResponse, error) {
	h, err := c.header(target.Position)
	if err != nil {
		return protocol.RWIResponse{}, err
	}
	words := make(map[position.Position]struct{}, len(postings))
	lines := make([]string, len(postings))
	for i, p := range postings {
		words[p.WordHash] = struct{}{}
		lines[i] = p.Line()
	}

	t, err := c.call(ctx, target, protocol.CommandTransferRWI, protocol.RWIRequest{
		Header:     h,
		WordCount:  len(words),
		EntryCount: len(postings),
		Lines:      lines,
	}.Table())
	if err != nil {
		return protocol.RWIResponse{}, err
	}
	resp, err := protocol.ParseRWIResponse(t)
	if err != nil {
		return protocol.RWIResponse{}, fmt.Errorf("transfer rwi %s: %w", target.Address(), err)
	}
	if resp.Result != protocol.RWIOK {
		return resp, fmt.Errorf("%w: transfer rwi: %s", ErrRefused, resp.Result)
	}
	return resp, nil
}

// TransferURL sends metadata entries to target.
func (c *Client) TransferURL(ctx context.Context, target model.Peer, entries []model.MetadataEntry) (protocol.URLResponse, error) {
	h, err := c.header(target.Position)
	if err != nil {
		return protocol.URLResponse{}, err
	}
	encoded := make([]string, len(entries))
	for i, e := range entries {
		if encoded[i], err = protocol.EncodeValue(e.Encode(), h.Key); err != nil {
			return protocol.URLResponse{}, err
		}
	}

	t, err := c.call(ctx, target, protocol.CommandTransferURL, protocol.URLRequest{Header: h, Entries: encoded}.Table())
	if err != nil {
		return protocol.URLResponse{}, err
	}
	resp, err := protocol.ParseURLResponse(t)
	if err != nil {
		return protocol.URLResponse{}, fmt.Errorf("transfer url %s: %w", target.Address(), err)
	}
	if resp.Result != protocol.URLOK {
		return resp, fmt.Errorf("%w: transfer url: %s", ErrRefused, resp.Result)
	}
	return resp, nil
}

// Transfer delivers payload to target. It first asks for an access code and
// then sends the payload under it.
func (c *Client) Transfer(ctx context.Context, target model.Peer, purpose, filename string, payload []byte) error {
	h, err := c.header(target.Position)
	if err != nil {
		return err
	}
	reply, err := c.transfer(ctx, target, protocol.TransferRequest{
		Header:   h,
		Process:  protocol.ProcessPermission,
		Purpose:  purpose,
		Filename: filename,
	})
	if err != nil {
		return err
	}

	method := wire.MethodGzip
	if h.Key != "" {
		method = wire.MethodCipher
	}
	body, err := wire.Encode(method, payload, h.Key)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	_, err = c.transfer(ctx, target, protocol.TransferRequest{
		Header:   h,
		Process:  protocol.ProcessStore,
		Purpose:  purpose,
		Filename: filename,
		Code:     reply.Code,
		Payload:  body,
	})
	return err
}

func (c *Client) transfer(ctx context.Context, target model.Peer, req protocol.TransferRequest) (protocol.TransferReply, error) {
	t, err := c.call(ctx, target, protocol.CommandTransfer, req.Table())
	if err != nil {
		return protocol.TransferReply{}, err
	}
	reply, err := protocol.ParseTransferReply(t)
	if err != nil {
		return protocol.TransferReply{}, fmt.Errorf("transfer %s: %w", target.Address(), err)
	}
	if reply.Response != protocol.TransferOK {
		return reply, fmt.Errorf("%w: transfer %s: %s", ErrRefused, req.Process, reply.Reason)
	}
	return reply, nil
}
