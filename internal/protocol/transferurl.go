package protocol

import (
	"context"
	"log/slog"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
	"github.com/nao1215/peercrawl/internal/wire"
)

// TransferURL handles an inbound batch of URL metadata entries, usually sent
// to backfill the unknown URLs of a postings transfer.
func (s *Service) TransferURL(ctx context.Context, req URLRequest) URLResponse {
	if !s.isSelf(req.Youare) {
		return URLResponse{Result: URLWrongTarget}
	}
	if !s.cfg.AcceptRemoteIndex {
		return URLResponse{Result: URLNotGranted}
	}

	before, err := s.deps.Segment.Size(ctx)
	if err != nil {
		s.logFailure(ctx, "failed to read segment size", err)
		return URLResponse{Result: URLBusy}
	}

	var received, skipped int
	for _, encoded := range req.Entries {
		entry, u, ok := s.decodeEntry(encoded, req.Key)
		if !ok {
			skipped++
			continue
		}
		if s.deps.Blacklist.IsBlocked(CategoryDHT, u.Host(), u.Path()) {
			continue
		}
		if err := s.deps.Segment.Store(ctx, entry); err != nil {
			s.logFailure(ctx, "failed to store transferred url", err, slog.String("url", entry.URL))
			return URLResponse{Result: URLBusy, Received: received}
		}
		received++
	}

	after, err := s.deps.Segment.Size(ctx)
	if err != nil {
		s.logFailure(ctx, "failed to read segment size", err)
		return URLResponse{Result: URLBusy, Received: received}
	}
	s.deps.Directory.Touch(req.Iam)

	s.logger.Debug("received url metadata",
		slog.String("peer", req.Iam.String()),
		slog.Int("received", received),
		slog.Int("skipped", skipped))

	return URLResponse{
		Result:   URLOK,
		Received: received,
		Double:   max(0, received-(after-before)),
	}
}

func (s *Service) decodeEntry(encoded, key string) (model.MetadataEntry, *position.URL, bool) {
	raw, err := wire.DecodeString(encoded, key)
	if err != nil {
		return model.MetadataEntry{}, nil, false
	}
	entry, err := model.ParseMetadataEntry(raw)
	if err != nil {
		return model.MetadataEntry{}, nil, false
	}
	u, err := position.ParseURL(entry.URL)
	if err != nil {
		return model.MetadataEntry{}, nil, false
	}
	return entry, u, true
}
