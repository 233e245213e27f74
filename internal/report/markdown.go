package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/peercrawl/internal/model"
)

// MarkdownWriter outputs the node status in GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the status in Markdown format.
func (w *MarkdownWriter) Write(status *model.NodeStatus) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, status)
	w.writeSummary(md, status)
	w.writePeers(md, status)
	w.writeErrors(md, status)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, status *model.NodeStatus) {
	md.H1("Peer Directory")
	md.PlainText("")

	rows := [][]string{
		{"Generated", status.Generated.Format(timeLayout)},
	}
	if status.Self != nil {
		rows = append(rows,
			[]string{"Position", "`" + status.Self.Position.String() + "`"},
			[]string{"Name", status.Self.Name},
			[]string{"Address", status.Self.Address()},
		)
	} else {
		rows = append(rows, []string{"Position", "not initialized"})
	}
	rows = append(rows,
		[]string{"URL Metadata", strconv.Itoa(status.MetadataEntries)},
		[]string{"Postings", strconv.Itoa(status.Postings)},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, status *model.NodeStatus) {
	md.H2("Peer Classes")
	md.PlainText("")

	c := status.Classes
	md.Table(markdown.TableSet{
		Header: []string{"Class", "Count"},
		Rows: [][]string{
			{"Principal", strconv.Itoa(c.Principal)},
			{"Senior", strconv.Itoa(c.Senior)},
			{"Junior", strconv.Itoa(c.Junior)},
			{"**Total**", "**" + strconv.Itoa(c.Total()) + "**"},
		},
	})
	md.PlainText("")

	if c.Total() > 0 {
		w.writePieChart(md, c)
	}
	w.writeAlert(md, c)
}

// writePieChart writes a mermaid pie chart of the class distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, c model.ClassCounts) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Peer Class Distribution"),
		piechart.WithShowData(true),
	)
	if c.Principal > 0 {
		chart.LabelAndIntValue("Principal", uint64(c.Principal))
	}
	if c.Senior > 0 {
		chart.LabelAndIntValue("Senior", uint64(c.Senior))
	}
	if c.Junior > 0 {
		chart.LabelAndIntValue("Junior", uint64(c.Junior))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, c model.ClassCounts) {
	switch {
	case c.Total() == 0:
		md.Warningf("No peers known. Configure seed peers or wait for a greeting.")
	case c.Reachable() == 0:
		md.Cautionf("None of the %d known peers has been verified as reachable.", c.Total())
	default:
		md.Tip(fmt.Sprintf("%d of %d known peers are reachable.", c.Reachable(), c.Total()))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writePeers(md *markdown.Markdown, status *model.NodeStatus) {
	md.H2("Peers")
	md.PlainText("")

	if len(status.Peers) == 0 {
		md.PlainText("No peers known.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(status.Peers))
	for i, p := range status.Peers {
		row := peerRow(p)
		row[0] = "`" + row[0] + "`"
		row[1] = truncateString(row[1], 30)
		rows[i] = row
	}
	md.Table(markdown.TableSet{
		Header: peerHeader,
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, status *model.NodeStatus) {
	if len(status.RecentErrors) == 0 {
		return
	}
	md.H2("Recent Crawl Errors")
	md.PlainText("")

	rows := make([][]string, len(status.RecentErrors))
	for i, e := range status.RecentErrors {
		rows[i] = []string{truncateString(e.URL, 60), e.Category, lastSeen(e.Time)}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Category", "Time"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, e := range status.RecentErrors {
		if e.Reason != "" {
			md.Details(truncateString(e.URL, 60), e.Reason)
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Status generated by [peercrawl](https://github.com/nao1215/peercrawl)*")
}
