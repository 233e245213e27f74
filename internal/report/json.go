package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/peercrawl/internal/model"
)

// JSONWriter outputs the status as JSON.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed output.
	indent bool

	indentPrefix string
	indentString string

	// version is written next to the status when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion wraps the status in a document carrying version.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONDocument is the versioned form of the output.
type JSONDocument struct {
	Version string            `json:"version"`
	Status  *model.NodeStatus `json:"status"`
}

// Write outputs the status in JSON format.
func (w *JSONWriter) Write(status *model.NodeStatus) (int, error) {
	if w.version != "" {
		return w.writeJSON(JSONDocument{Version: w.version, Status: status})
	}
	return w.writeJSON(status)
}

// writeJSON marshals v and writes it followed by a newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
