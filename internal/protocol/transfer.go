package protocol

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/peercrawl/internal/admission"
	"github.com/nao1215/peercrawl/internal/wire"
)

type transferAdmission struct {
	req TransferRequest
}

func transferReply(resp TransferResponse, reason string, delay int) TransferReply {
	return TransferReply{Response: resp, Reason: reason, Delay: delay}
}

func (s *Service) newTransferGate() *admission.Gate[transferAdmission, TransferReply] {
	rule := admission.NewRule[transferAdmission, TransferReply]
	return admission.New[transferAdmission, TransferReply](
		admission.WithName("transfer"), admission.WithLogger(s.logger),
	).Add(
		rule("target", func(_ context.Context, a transferAdmission) (TransferReply, bool) {
			return transferReply(TransferDenied, ReasonAuthentify, DelayLong), !s.isSelf(a.req.Youare)
		}),
		rule("known", func(_ context.Context, a transferAdmission) (TransferReply, bool) {
			_, ok := s.knownPeer(a.req.Iam)
			return transferReply(TransferDenied, ReasonUnknownClient, DelayMedium), !ok
		}),
		rule("process", func(_ context.Context, a transferAdmission) (TransferReply, bool) {
			p := a.req.Process
			return transferReply(TransferDenied, ReasonUnknownOrder, DelayUnknownOrder), p != ProcessPermission && p != ProcessStore
		}),
	)
}

// Transfer issues single-use access codes and accepts payloads delivered
// under them.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) TransferReply {
	if d := s.transferGate.Evaluate(ctx, transferAdmission{req: req}); d.Denied {
		return d.Outcome
	}

	if req.Process == ProcessPermission {
		code, err := s.permits.Issue(req.Iam, req.Purpose, req.Filename)
		if err != nil {
			s.logFailure(ctx, "failed to issue permit", err)
			return transferReply(TransferRejected, ReasonBusy, DelayTransient)
		}
		reply := transferReply(TransferOK, ReasonOK, 0)
		reply.Code = code
		return reply
	}

	payload, err := wire.Decode(req.Payload, req.Key)
	if err != nil {
		return transferReply(TransferRejected, ReasonMalformedPayload, DelayTransient)
	}
	purpose, filename, err := s.permits.Consume(req.Code, req.Iam)
	if err != nil {
		if !errors.Is(err, ErrPermitNotFound) {
			s.logger.Warn("permit presented by another peer", slog.String("peer", req.Iam.String()))
		}
		return transferReply(TransferDenied, ReasonPermitInvalid, DelayLong)
	}

	if err := s.deps.Sink.StoreTransfer(ctx, Transfer{
		From:     req.Iam,
		Purpose:  purpose,
		Filename: filename,
		Payload:  payload,
		Received: s.now().UTC(),
	}); err != nil {
		s.logFailure(ctx, "failed to store transfer", err, slog.String("filename", filename))
		return transferReply(TransferRejected, ReasonBusy, DelayTransient)
	}
	return transferReply(TransferOK, ReasonOK, 0)
}
