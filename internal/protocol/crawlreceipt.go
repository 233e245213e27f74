package protocol

import (
	"context"
	"log/slog"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

// Error log fields of failed delegations.
const (
	receiptCategory = "remote"
	receiptStatus   = -1
)

func receiptReply(resp ReceiptResponse, reason string, delay int) CrawlReceiptResponse {
	return CrawlReceiptResponse{Response: resp, Reason: reason, Delay: delay}
}

// CrawlReceipt handles a delegate's report about a URL this node delegated.
func (s *Service) CrawlReceipt(ctx context.Context, req CrawlReceiptRequest) CrawlReceiptResponse {
	if !s.isSelf(req.Youare) {
		return receiptReply(ReceiptDenied, ReasonAuthentify, DelayLong)
	}

	raw, err := wire.DecodeString(req.Entry, req.Key)
	if err != nil {
		return receiptReply(ReceiptRejected, ReasonTransient, DelayTransient)
	}
	entry, err := model.ParseMetadataEntry(raw)
	if err != nil {
		return receiptReply(ReceiptRejected, ReasonMissingURL, DelayLong)
	}
	u, err := position.ParseURL(entry.URL)
	if err != nil {
		return receiptReply(ReceiptRejected, ReasonMissingURL, DelayLong)
	}
	if reason := s.deps.Domains.CheckAccepted(u); reason != "" {
		return receiptReply(ReceiptRejected, reason, DelayLong)
	}
	// A pending delegation may only be settled by the peer it went to.
	if delegate, ok := s.deps.Pending.Delegate(entry.Hash); ok && delegate != req.Iam {
		s.logger.Debug("receipt from a peer other than the delegate",
			slog.String("url", entry.URL),
			slog.String("peer", req.Iam.String()),
			slog.String("delegate", delegate.String()))
		return receiptReply(ReceiptDenied, ReasonAuthentify, DelayLong)
	}

	if req.Result == ReceiptFill {
		if err := s.deps.Segment.Store(ctx, entry); err != nil {
			s.logFailure(ctx, "failed to store receipt entry", err, slog.String("url", entry.URL))
			return receiptReply(ReceiptRejected, ReasonBusy, DelayTransient)
		}
		s.deps.Observer.Observed(ctx, entry, req.Iam)
		s.deps.Pending.Remove(entry.Hash)
		return receiptReply(ReceiptOK, ReasonOK, DelayReceiptFill)
	}

	s.deps.Pending.Remove(entry.Hash)
	if err := s.deps.ErrorLog.Push(ctx, model.ErrorEntry{
		URL:      entry.URL,
		URLHash:  entry.Hash.String(),
		Depth:    0,
		Profile:  RemoteProfile,
		Category: receiptCategory,
		Reason:   req.Result.String() + ": " + req.Reason,
		Status:   receiptStatus,
		Time:     s.now().UTC(),
	}); err != nil {
		s.logFailure(ctx, "failed to record failed delegation", err, slog.String("url", entry.URL))
	}
	s.logger.Debug("delegated url not indexed",
		slog.String("url", entry.URL),
		slog.String("result", req.Result.String()),
		slog.String("reason", req.Reason))
	return receiptReply(ReceiptOK, ReasonOK, DelayLong)
}
