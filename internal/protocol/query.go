package protocol

import (
	"context"
	"strconv"
)

const queryDenied = "-1"

// Query answers a counter or descriptor request. Peers use it to verify that
// an address belongs to the position they expect.
func (s *Service) Query(ctx context.Context, req QueryRequest) QueryResponse {
	resp := QueryResponse{Response: queryDenied, MyTime: s.now().UTC()}
	if !s.isSelf(req.Youare) {
		resp.Reason = ReasonAuthentify
		return resp
	}

	switch req.Object {
	case QueryRWICount:
		resp.Response = strconv.Itoa(s.deps.Postings.Occupancy())
	case QueryLURLCount:
		n, err := s.deps.Segment.Size(ctx)
		if err != nil {
			s.logFailure(ctx, "failed to count url metadata", err)
			resp.Reason = ReasonBusy
			return resp
		}
		resp.Response = strconv.Itoa(n)
	case QuerySeed:
		seed, err := EncodeValue(s.Self().Descriptor(), req.Key)
		if err != nil {
			resp.Reason = ReasonTransient
			return resp
		}
		resp.Response = seed
	default:
		resp.Reason = ReasonUnknownObject
		return resp
	}
	s.deps.Directory.Touch(req.Iam)
	return resp
}
