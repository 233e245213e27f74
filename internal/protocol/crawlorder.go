package protocol

import (
	"context"
	"log/slog"

	"github.com/nao1215/peercrawl/internal/admission"
	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

// RemoteProfile is the crawl profile of URLs delegated by other peers.
const RemoteProfile = "remote"

type crawlAdmission struct {
	req CrawlOrderRequest
}

func crawlDenial(resp CrawlResponse, reason string, delay int) CrawlOrderResponse {
	return CrawlOrderResponse{Response: resp, Reason: reason, Delay: delay}
}

func (s *Service) newCrawlGate() *admission.Gate[crawlAdmission, CrawlOrderResponse] {
	rule := admission.NewRule[crawlAdmission, CrawlOrderResponse]
	return admission.New[crawlAdmission, CrawlOrderResponse](
		admission.WithName("crawlOrder"), admission.WithLogger(s.logger),
	).Add(
		rule("target", func(_ context.Context, a crawlAdmission) (CrawlOrderResponse, bool) {
			return crawlDenial(CrawlDenied, ReasonAuthentify, DelayLong), !s.isSelf(a.req.Youare)
		}),
		rule("depth", func(_ context.Context, a crawlAdmission) (CrawlOrderResponse, bool) {
			return crawlDenial(CrawlDenied, ReasonDepthNotZero, DelayLong), a.req.Depth > 0
		}),
		rule("enabled", func(context.Context, crawlAdmission) (CrawlOrderResponse, bool) {
			return crawlDenial(CrawlDenied, ReasonNotGranted, DelayLong), !s.cfg.AcceptRemoteCrawl
		}),
		rule("known", func(_ context.Context, a crawlAdmission) (CrawlOrderResponse, bool) {
			_, ok := s.knownPeer(a.req.Iam)
			return crawlDenial(CrawlDenied, ReasonUnknownClient, DelayMedium), !ok
		}),
		rule("qualified", func(_ context.Context, a crawlAdmission) (CrawlOrderResponse, bool) {
			p, _ := s.knownPeer(a.req.Iam)
			return crawlDenial(CrawlDenied, ReasonNotQualified, DelayMedium), !p.Class.AtLeast(model.ClassSenior)
		}),
		rule("capacity", func(context.Context, crawlAdmission) (CrawlOrderResponse, bool) {
			size := s.deps.Queue.Size()
			return crawlDenial(CrawlRejected, ReasonBusy, size*s.acceptDelay()), size > s.cfg.QueueCeiling
		}),
		rule("process", func(_ context.Context, a crawlAdmission) (CrawlOrderResponse, bool) {
			return crawlDenial(CrawlDenied, ReasonUnknownOrder, DelayUnknownOrder), a.req.Process != ProcessCrawl
		}),
	)
}

// CrawlOrder handles a request to crawl URLs on the caller's behalf.
func (s *Service) CrawlOrder(ctx context.Context, req CrawlOrderRequest) CrawlOrderResponse {
	if d := s.crawlGate.Evaluate(ctx, crawlAdmission{req: req}); d.Denied {
		return d.Outcome
	}
	if len(req.Items) == 0 {
		return crawlDenial(CrawlRejected, ReasonMissingURL, DelayTransient)
	}

	acceptDelay := s.acceptDelay()
	defer s.deps.Directory.Touch(req.Iam)

	if !req.Multi && len(req.Items) == 1 {
		item := s.stack(ctx, req, req.Items[0])
		resp := CrawlOrderResponse{
			Response: item.Response,
			Reason:   item.Reason,
			LURL:     item.LURL,
			Delay:    acceptDelay,
		}
		switch {
		case item.Response == CrawlStacked:
			resp.Delay = DelayStackedBase + acceptDelay
		case item.Reason == ReasonBusy:
			resp.Delay = DelayTransient
		}
		return resp
	}

	resp := CrawlOrderResponse{
		Response: CrawlEnqueued,
		Reason:   ReasonOK,
		Items:    make([]CrawlItemResult, 0, len(req.Items)),
	}
	stacked := 0
	for _, item := range req.Items {
		r := s.stack(ctx, req, item)
		if r.Response == CrawlStacked {
			stacked++
		}
		resp.Items = append(resp.Items, r)
	}
	resp.Delay = max(1, stacked) * acceptDelay
	return resp
}

// stack decodes one item and hands it to the crawl queue.
func (s *Service) stack(ctx context.Context, req CrawlOrderRequest, item CrawlItem) CrawlItemResult {
	rejected := func(reason string) CrawlItemResult {
		return CrawlItemResult{Response: CrawlRejected, Reason: reason}
	}

	raw, err := wire.DecodeString(item.URL, req.Key)
	if err != nil || raw == "" {
		return rejected(ReasonMalformedURL)
	}
	u, err := position.ParseURL(raw)
	if err != nil {
		return rejected(ReasonMalformedURL)
	}
	referrer, err := wire.DecodeString(item.Referrer, req.Key)
	if err != nil {
		referrer = ""
	}

	res, err := s.deps.Queue.Enqueue(ctx, EnqueueRequest{
		URL:       u,
		Referrer:  referrer,
		Initiator: req.Iam,
		Profile:   RemoteProfile,
	})
	if err != nil {
		s.logFailure(ctx, "failed to stack delegated url", err, slog.String("url", u.String()))
		return rejected(ReasonBusy)
	}

	switch res.Status {
	case EnqueueStacked:
		return CrawlItemResult{Response: CrawlStacked, Reason: ReasonOK}
	case EnqueueDouble:
		entry, err := s.deps.Segment.Lookup(ctx, u.Position())
		if err != nil {
			return rejected(ReasonDouble + ": " + err.Error())
		}
		lurl, err := EncodeValue(entry.Encode(), req.Key)
		if err != nil {
			return rejected(ReasonDouble + ": " + err.Error())
		}
		reason := res.Reason
		if reason == "" {
			reason = ReasonDouble
		}
		return CrawlItemResult{Response: CrawlDouble, Reason: reason, LURL: lurl}
	default:
		return rejected(res.Reason)
	}
}
