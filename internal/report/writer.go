package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/peercrawl/internal/model"
)

// timeLayout is how timestamps are shown in text and Markdown output.
const timeLayout = "2006-01-02 15:04:05 MST"

// Writer renders a node status.
type Writer interface {
	// Write outputs the status and returns the number of bytes written.
	Write(status *model.NodeStatus) (int, error)
}

// MultiWriter writes to multiple Writers in turn.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the status to all configured Writers. It stops on the
// first error and returns the total bytes written so far.
func (m *MultiWriter) Write(status *model.NodeStatus) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(status)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// flags renders the acceptance flags of a peer.
func flags(p model.Peer) string {
	var out []byte
	if p.AcceptRemoteCrawl {
		out = append(out, 'C')
	}
	if p.AcceptRemoteIndex {
		out = append(out, 'I')
	}
	if len(out) == 0 {
		return "-"
	}
	return string(out)
}

// lastSeen renders a last-seen time, or "never" for the zero time.
func lastSeen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(timeLayout)
}

// peerRow renders the table columns shared by the text and Markdown output.
func peerRow(p model.Peer) []string {
	return []string{
		p.Position.String(),
		p.Name,
		p.Address(),
		p.Class.String(),
		strconv.FormatFloat(p.Version, 'f', -1, 64),
		strconv.Itoa(p.Capacity),
		flags(p),
		lastSeen(p.LastSeen),
	}
}

var peerHeader = []string{"Position", "Name", "Address", "Class", "Version", "PPM", "Accepts", "Last Seen"}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
