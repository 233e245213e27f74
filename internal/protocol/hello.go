package protocol

import (
	"context"
	"log/slog"

	"github.com/nao1215/peercrawl/internal/model"
	"github.com/nao1215/peercrawl/internal/peers"
	"github.com/nao1215/peercrawl/internal/wire"
)

// Hello messages.
const (
	MessageOK        = "ok"
	MessageBadSeed   = "cannot parse your seed"
	MessageHandshake = "handshake failed"
)

// Hello handles a greeting. The caller is verified by connecting back to it
// and is answered with this node's descriptor and a list of recently seen
// peers.
func (s *Service) Hello(ctx context.Context, req HelloRequest) HelloResponse {
	resp := HelloResponse{
		YourIP:   req.ArrivalHost,
		YourType: model.ClassJunior,
		MyTime:   s.now().UTC(),
	}
	if !s.isSelf(req.Youare) {
		resp.Message = ReasonAuthentify
		return resp
	}

	raw, err := wire.DecodeString(req.Seed, req.Key)
	if err != nil {
		resp.Message = MessageBadSeed
		return resp
	}
	caller, err := model.ParseDescriptor(raw)
	if err != nil {
		resp.Message = MessageBadSeed
		return resp
	}
	if caller.Position != req.Iam {
		resp.Message = ReasonAuthentify
		return resp
	}

	res, err := s.deps.Handshaker.Handshake(ctx, peers.HelloInput{
		Caller:        caller,
		ArrivalHost:   req.ArrivalHost,
		ClientVersion: caller.Version,
		Requested:     req.Count,
	})
	if err != nil {
		s.logFailure(ctx, "handshake failed", err, slog.String("peer", req.Iam.String()))
		resp.Message = MessageHandshake
		return resp
	}

	resp.Message = MessageOK
	resp.YourIP = res.YourIP
	resp.YourType = res.Class
	resp.Seeds = make([]string, 0, len(res.Peers)+1)
	for _, p := range append([]model.Peer{res.Self}, res.Peers...) {
		seed, err := EncodeValue(p.Descriptor(), req.Key)
		if err != nil {
			s.logFailure(ctx, "failed to encode descriptor", err, slog.String("peer", p.Position.String()))
			continue
		}
		resp.Seeds = append(resp.Seeds, seed)
	}
	return resp
}
