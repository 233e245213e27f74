package wire

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// ContentType is the content type of every response table.
const ContentType = "text/plain; charset=utf-8"

// maxFormMemory bounds the in-memory part of multipart request bodies.
const maxFormMemory = 8 << 20

// Table is an ordered set of key/value pairs.
// It is the boundary format of every request and response; handlers convert
// it into typed structs immediately.
type Table struct {
	keys   []string
	values map[string]string
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{values: make(map[string]string)}
}

// Set stores value under key, keeping the first insertion order.
func (t *Table) Set(key, value string) {
	if _, ok := t.values[key]; !ok {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// SetInt stores an integer value.
func (t *Table) SetInt(key string, value int64) {
	t.Set(key, strconv.FormatInt(value, 10))
}

// Get returns the value for key, or "" when absent.
func (t *Table) Get(key string) string {
	return t.values[key]
}

// Lookup returns the value for key and whether it was present.
func (t *Table) Lookup(key string) (string, bool) {
	v, ok := t.values[key]
	return v, ok
}

// GetInt returns the integer value for key, or def when the key is absent or
// not a number.
func (t *Table) GetInt(key string, def int64) int64 {
	v, ok := t.values[key]
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return def
	}
	return n
}

// Keys returns the keys in insertion order.
func (t *Table) Keys() []string {
	out := make([]string, len(t.keys))
	copy(out, t.keys)
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.keys)
}

// WriteTo writes the table as "key=value" lines.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, k := range t.keys {
		n, err := io.WriteString(w, k+"="+t.values[k]+"\n")
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("failed to write table: %w", err)
		}
	}
	return total, nil
}

// String returns the table in its wire form.
func (t *Table) String() string {
	var sb strings.Builder
	_, _ = t.WriteTo(&sb)
	return sb.String()
}

// Values converts the table to form values for an outgoing request.
func (t *Table) Values() url.Values {
	v := make(url.Values, len(t.keys))
	for _, k := range t.keys {
		v.Set(k, t.values[k])
	}
	return v
}

// ParseTable reads "key=value" lines. Blank lines, comments and lines without
// a separator are skipped. Later duplicates overwrite earlier values.
func ParseTable(r io.Reader) (*Table, error) {
	t := NewTable()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxDecodedSize)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		t.Set(strings.TrimSpace(k), v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read table: %w", err)
	}
	return t, nil
}

// TableFromValues builds a table from form values using the first value of
// each key. Keys are sorted so that the table is deterministic.
func TableFromValues(v url.Values) *Table {
	t := NewTable()
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		t.Set(k, v.Get(k))
	}
	return t
}

// ParseRequest reads the form fields of an inbound request. Both urlencoded
// and multipart bodies are accepted, as well as query parameters.
func ParseRequest(r *http.Request) (*Table, error) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/") {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, fmt.Errorf("failed to parse multipart form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %w", err)
	}
	return TableFromValues(r.Form), nil
}

// WriteResponse writes t as a text/plain response.
func WriteResponse(w http.ResponseWriter, t *Table) error {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(http.StatusOK)
	if _, err := t.WriteTo(w); err != nil {
		return err
	}
	return nil
}

// ReadResponse parses a response body into a table. Non-200 responses are
// reported as errors.
func ReadResponse(resp *http.Response) (*Table, error) {
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}
	return ParseTable(io.LimitReader(resp.Body, maxDecodedSize))
}
