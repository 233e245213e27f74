package protocol

import (
	"context"
	"log/slog"

	"github.com/nao1215/peercrawl/internal/admission"
	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/position"
)

type rwiAdmission struct {
	req RWIRequest
}

// rwiPause returns the pause hint derived from the postings buffer load.
func (s *Service) rwiPause() int {
	ceiling := s.deps.Postings.Ceiling()
	if ceiling <= 0 {
		return s.cfg.RWIPauseScale
	}
	return s.deps.Postings.Occupancy() * s.cfg.RWIPauseScale / ceiling
}

func (s *Service) rwiDenial(result RWIResult, floor int) RWIResponse {
	return RWIResponse{Result: result, Pause: max(s.rwiPause(), floor)}
}

func (s *Service) newRWIGate() *admission.Gate[rwiAdmission, RWIResponse] {
	rule := admission.NewRule[rwiAdmission, RWIResponse]
	return admission.New[rwiAdmission, RWIResponse](
		admission.WithName("transferRWI"), admission.WithLogger(s.logger),
	).Add(
		rule("target", func(_ context.Context, a rwiAdmission) (RWIResponse, bool) {
			if s.isSelf(a.req.Youare) {
				return RWIResponse{}, false
			}
			return s.rwiDenial(RWIWrongTarget, PauseDenied), true
		}),
		rule("known", func(_ context.Context, a rwiAdmission) (RWIResponse, bool) {
			if _, ok := s.knownPeer(a.req.Iam); ok {
				return RWIResponse{}, false
			}
			return s.rwiDenial(RWINotGranted, PauseDenied), true
		}),
		rule("enabled", func(context.Context, rwiAdmission) (RWIResponse, bool) {
			if s.cfg.AcceptRemoteIndex {
				return RWIResponse{}, false
			}
			return s.rwiDenial(RWINotGranted, PauseDenied), true
		}),
		rule("isolated", func(context.Context, rwiAdmission) (RWIResponse, bool) {
			if !s.cfg.Isolated {
				return RWIResponse{}, false
			}
			return s.rwiDenial(RWINotGranted, PauseDenied), true
		}),
		rule("capacity", func(context.Context, rwiAdmission) (RWIResponse, bool) {
			if s.deps.Postings.Occupancy() <= s.deps.Postings.Ceiling() {
				return RWIResponse{}, false
			}
			return s.rwiDenial(RWIBusy, PauseDenied), true
		}),
		rule("version", func(_ context.Context, a rwiAdmission) (RWIResponse, bool) {
			p, _ := s.knownPeer(a.req.Iam)
			if !s.badVersion(p.Version) {
				return RWIResponse{}, false
			}
			return s.rwiDenial(RWINotGranted, PauseSoftBan), true
		}),
	)
}

// urlState is what a postings batch learned about one referenced URL.
type urlState int

const (
	urlUnknown urlState = iota
	urlKnown
	urlBlocked
)

// TransferRWI handles an inbound batch of postings.
// Malformed or refused lines are counted and skipped; the batch is never
// aborted because of a single entry.
func (s *Service) TransferRWI(ctx context.Context, req RWIRequest) RWIResponse {
	if d := s.rwiGate.Evaluate(ctx, rwiAdmission{req: req}); d.Denied {
		return d.Outcome
	}

	var (
		blocked  int
		accepted = make([]model.Posting, 0, len(req.Lines))
		states   = make(map[position.Position]urlState)
		unknown  []position.Position
	)
	for _, line := range req.Lines {
		p, err := model.ParsePostingLine(line)
		if err != nil {
			blocked++
			continue
		}
		if !s.deps.Domains.AcceptsPosition(p.URLHash) {
			blocked++
			continue
		}
		state, seen := states[p.URLHash]
		if !seen {
			state = s.classifyURL(ctx, p.URLHash)
			states[p.URLHash] = state
			if state == urlUnknown {
				unknown = append(unknown, p.URLHash)
			}
		}
		if state == urlBlocked {
			blocked++
			continue
		}
		accepted = append(accepted, p)
	}

	if len(accepted) > 0 {
		if err := s.deps.Postings.Merge(ctx, accepted); err != nil {
			s.logFailure(ctx, "failed to merge postings", err,
				slog.String("peer", req.Iam.String()),
				slog.Int("entries", len(accepted)))
			resp := s.rwiDenial(RWIBusy, PauseDenied)
			resp.Blocked = blocked
			return resp
		}
	}
	s.deps.Directory.Touch(req.Iam)

	s.logger.Debug("received postings",
		slog.String("peer", req.Iam.String()),
		slog.Int("accepted", len(accepted)),
		slog.Int("blocked", blocked),
		slog.Int("unknown_urls", len(unknown)))

	return RWIResponse{
		Result:     RWIOK,
		UnknownURL: unknown,
		Pause:      s.rwiPause(),
		Blocked:    blocked,
	}
}

// classifyURL checks a referenced URL against the local metadata and the
// blacklist.
func (s *Service) classifyURL(ctx context.Context, hash position.Position) urlState {
	entry, err := s.deps.Segment.Lookup(ctx, hash)
	if err != nil {
		return urlUnknown
	}
	u, err := position.ParseURL(entry.URL)
	if err != nil {
		return urlKnown
	}
	if s.deps.Blacklist.IsBlocked(CategoryDHT, u.Host(), u.Path()) {
		return urlBlocked
	}
	return urlKnown
}
