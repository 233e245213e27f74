package protocol

import (
	"context"

	"github.com/nao1215/peercrawl/internal/wire"
)

// Command names.
const (
	CommandHello        = "hello"
	CommandQuery        = "query"
	CommandCrawlOrder   = "crawlOrder"
	CommandCrawlReceipt = "crawlReceipt"
	CommandTransferRWI  = "transferRWI"
	CommandTransferURL  = "transferURL"
	CommandTransfer     = "transfer"
)

// CommandPath returns the URL path under which a command is served.
func CommandPath(name string) string {
	return "/yacy/" + name + ".html"
}

// Command handles one decoded request table. arrivalHost is the address the
// request came from.
type Command func(ctx context.Context, req *wire.Table, arrivalHost string) *wire.Table

// Commands returns the command table of s.
func (s *Service) Commands() map[string]Command {
	return map[string]Command{
		CommandHello: func(ctx context.Context, t *wire.Table, arrivalHost string) *wire.Table {
			req := ParseHelloRequest(t)
			req.ArrivalHost = arrivalHost
			return s.Hello(ctx, req).Table()
		},
		CommandQuery: func(ctx context.Context, t *wire.Table, _ string) *wire.Table {
			return s.Query(ctx, ParseQueryRequest(t)).Table()
		},
		CommandCrawlOrder: func(ctx context.Context, t *wire.Table, _ string) *wire.Table {
			return s.CrawlOrder(ctx, ParseCrawlOrderRequest(t)).Table()
		},
		CommandCrawlReceipt: func(ctx context.Context, t *wire.Table, _ string) *wire.Table {
			return s.CrawlReceipt(ctx, ParseCrawlReceiptRequest(t)).Table()
		},
		CommandTransferRWI: func(ctx context.Context, t *wire.Table, _ string) *wire.Table {
			return s.TransferRWI(ctx, ParseRWIRequest(t)).Table()
		},
		CommandTransferURL: func(ctx context.Context, t *wire.Table, _ string) *wire.Table {
			return s.TransferURL(ctx, ParseURLRequest(t)).Table()
		},
		CommandTransfer: func(ctx context.Context, t *wire.Table, _ string) *wire.Table {
			return s.Transfer(ctx, ParseTransferRequest(t)).Table()
		},
	}
}
