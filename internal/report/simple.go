package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/peercrawl/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs a human-readable text report for the terminal.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether empty sections are shown.
	showEmpty bool

	// verbose adds the crawl error section.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables the recent crawl errors section.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the status in human-readable format.
func (w *SimpleWriter) Write(status *model.NodeStatus) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, status)
	w.writeSummary(&sb, status)
	w.writePeers(&sb, status)
	if w.verbose {
		w.writeErrors(&sb, status)
	}
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

// writeHeader writes the title and the own descriptor.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, status *model.NodeStatus) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                         PEERCRAWL NODE STATUS\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Generated:      %s\n", status.Generated.Format(timeLayout))
	if status.Self != nil {
		fmt.Fprintf(sb, "Position:       %s\n", status.Self.Position)
		fmt.Fprintf(sb, "Name:           %s\n", status.Self.Name)
		fmt.Fprintf(sb, "Address:        %s\n", status.Self.Address())
	} else {
		sb.WriteString("Position:       not initialized\n")
	}
	fmt.Fprintf(sb, "URL metadata:   %d\n", status.MetadataEntries)
	fmt.Fprintf(sb, "Postings:       %d\n", status.Postings)
	sb.WriteString("\n")
}

// writeSummary writes the class counts.
func (w *SimpleWriter) writeSummary(sb *strings.Builder, status *model.NodeStatus) {
	section(sb, "PEER SUMMARY")
	fmt.Fprintf(sb, "  PRINCIPAL: %d\n", status.Classes.Principal)
	fmt.Fprintf(sb, "  SENIOR:    %d\n", status.Classes.Senior)
	fmt.Fprintf(sb, "  JUNIOR:    %d\n", status.Classes.Junior)
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  TOTAL:     %d peers (%d reachable)\n", status.Classes.Total(), status.Classes.Reachable())
	sb.WriteString("\n")
}

// writePeers writes one line per peer.
func (w *SimpleWriter) writePeers(sb *strings.Builder, status *model.NodeStatus) {
	if len(status.Peers) == 0 && !w.showEmpty {
		return
	}
	section(sb, "PEERS")
	if len(status.Peers) == 0 {
		sb.WriteString("  No peers known\n\n")
		return
	}
	for _, p := range status.Peers {
		row := peerRow(p)
		fmt.Fprintf(sb, "  [%s] %s %-20s %-24s v%-6s %-3s %s\n",
			w.classIndicator(p.Class),
			row[0],
			truncateString(row[1], 20),
			row[2],
			row[4],
			row[6],
			row[7],
		)
	}
	sb.WriteString("\n")
}

// writeErrors writes the recent crawl failures.
func (w *SimpleWriter) writeErrors(sb *strings.Builder, status *model.NodeStatus) {
	if len(status.RecentErrors) == 0 && !w.showEmpty {
		return
	}
	section(sb, "RECENT CRAWL ERRORS")
	if len(status.RecentErrors) == 0 {
		sb.WriteString("  No errors recorded\n\n")
		return
	}
	for _, e := range status.RecentErrors {
		fmt.Fprintf(sb, "  * %s\n", e.URL)
		fmt.Fprintf(sb, "    Reason: %s (%s)\n", e.Reason, e.Category)
		fmt.Fprintf(sb, "    Time:   %s\n", lastSeen(e.Time))
	}
	sb.WriteString("\n")
}

// classIndicator returns a short marker for a class.
func (w *SimpleWriter) classIndicator(c model.PeerClass) string {
	switch c {
	case model.ClassPrincipal:
		return "P"
	case model.ClassSenior:
		return "S"
	default:
		return "j"
	}
}
