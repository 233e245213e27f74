package position

import (
	"fmt"
	"net/netip"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/idna"
)

// defaultPorts lists the supported protocols and their implicit ports.
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"ftp":   21,
	"smb":   445,
	"file":  0,
}

// hostProfile converts internationalized host names to their ASCII form.
// Underscores are tolerated because they appear in real crawl targets.
var hostProfile = idna.New(idna.MapForLookup(), idna.StrictDomainName(false))

var (
	rootFlag0 = localityChar("", 80, "")
	rootFlag1 = localityChar("www", 80, "")
)

// URL is a normalized URL that carries its position.
// The position is computed on first use and cached; a URL is immutable.
type URL struct {
	scheme string
	host   string
	port   int
	// explicitPort is set when the port differs from the scheme default.
	explicitPort bool
	path         string
	query        string
	normal       string

	once sync.Once
	pos  Position
}

// ParseURL parses and normalizes raw.
// It returns an error wrapping ErrMalformedIdentity if raw cannot be addressed.
func ParseURL(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", ErrMalformedIdentity)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIdentity, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	defPort, ok := defaultPorts[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported protocol %q", ErrMalformedIdentity, parsed.Scheme)
	}

	host, err := normalizeHost(parsed.Hostname())
	if err != nil {
		return nil, err
	}
	if host == "" && scheme != "file" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrMalformedIdentity, raw)
	}

	port := defPort
	explicit := false
	if ps := parsed.Port(); ps != "" {
		port, err = strconv.Atoi(ps)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrMalformedIdentity, ps)
		}
		explicit = port != defPort
	}

	u := &URL{
		scheme:       scheme,
		host:         host,
		port:         port,
		explicitPort: explicit,
		path:         normalizePath(parsed.EscapedPath()),
		query:        parsed.RawQuery,
	}
	u.normal = u.buildNormalForm()
	return u, nil
}

// MustParseURL is like ParseURL but panics on error.
// Use only for known-valid URLs in tests or initialization.
func MustParseURL(raw string) *URL {
	u, err := ParseURL(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// URLPosition returns the 12-character position of raw.
func URLPosition(raw string) (Position, error) {
	u, err := ParseURL(raw)
	if err != nil {
		return "", err
	}
	return u.Position(), nil
}

// HostPosition returns the 6-character position of a protocol/host/port triple.
// A port of zero or less selects the protocol default.
func HostPosition(protocol, host string, port int) (Position, error) {
	protocol = strings.ToLower(protocol)
	defPort, ok := defaultPorts[protocol]
	if !ok {
		return "", fmt.Errorf("%w: unsupported protocol %q", ErrMalformedIdentity, protocol)
	}
	h, err := normalizeHost(host)
	if err != nil {
		return "", err
	}
	if h == "" {
		return "", fmt.Errorf("%w: missing host", ErrMalformedIdentity)
	}
	if port <= 0 {
		port = defPort
	}
	if port > 65535 {
		return "", fmt.Errorf("%w: invalid port %d", ErrMalformedIdentity, port)
	}
	return hostPosition(protocol, h, port), nil
}

// String returns the normal form of the URL.
func (u *URL) String() string {
	return u.normal
}

// Scheme returns the lower-cased protocol.
func (u *URL) Scheme() string {
	return u.scheme
}

// Host returns the normalized host name without brackets.
func (u *URL) Host() string {
	return u.host
}

// Port returns the effective port.
func (u *URL) Port() int {
	return u.port
}

// Path returns the normalized, escaped path.
func (u *URL) Path() string {
	return u.path
}

// Position returns the cached 12-character position.
func (u *URL) Position() Position {
	u.once.Do(func() {
		u.pos = u.computePosition()
	})
	return u.pos
}

// HostPosition returns the host part of the URL position.
func (u *URL) HostPosition() Position {
	return u.Position().HostPart()
}

// IsLocal reports whether the URL points into a local network.
func (u *URL) IsLocal() bool {
	return IsLocalClassification(u.Position())
}

func (u *URL) computePosition() Position {
	subdom, dom := splitHost(u.host)

	var b strings.Builder
	b.Grow(URLLength)
	b.WriteString(digest(u.normal)[:5])
	b.WriteByte(localityChar(subdom, u.port, rootPath(u.path)))
	b.WriteString(digest(u.scheme + ":" + u.host + ":" + strconv.Itoa(u.port))[:5])
	b.WriteByte(encodeChar(flagByte(u.scheme == "http", DomainID(u.host), lengthKey(dom))))
	return Position(b.String())
}

func (u *URL) buildNormalForm() string {
	var b strings.Builder
	b.WriteString(u.scheme)
	b.WriteString("://")
	if strings.Contains(u.host, ":") {
		b.WriteString("[" + u.host + "]")
	} else {
		b.WriteString(u.host)
	}
	if u.explicitPort {
		b.WriteString(":" + strconv.Itoa(u.port))
	}
	b.WriteString(u.path)
	if u.query != "" {
		b.WriteString("?" + u.query)
	}
	return b.String()
}

func hostPosition(protocol, host string, port int) Position {
	_, dom := splitHost(host)
	g := digest(protocol + ":" + host + ":" + strconv.Itoa(port))[:5]
	return Position(g + string(encodeChar(flagByte(protocol == "http", DomainID(host), lengthKey(dom)))))
}

func localityChar(subdom string, port int, rootpath string) byte {
	return digest(subdom + ":" + strconv.Itoa(port) + ":" + rootpath)[0]
}

// normalizeHost lower-cases host and converts it to ASCII.
func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.Trim(strings.TrimSpace(host), "[]"), ".")
	if host == "" {
		return "", nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap().String(), nil
	}
	ascii, err := hostProfile.ToASCII(strings.ToLower(host))
	if err != nil {
		return "", fmt.Errorf("%w: host %q: %v", ErrMalformedIdentity, host, err)
	}
	return ascii, nil
}

// normalizePath resolves dot segments and keeps a trailing slash.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	cleaned := path.Clean(p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// splitHost splits a host into subdomain and registrable label.
// "www.example.com" yields ("www", "example").
func splitHost(host string) (subdom, dom string) {
	p := strings.LastIndexByte(host, '.')
	if p <= 0 {
		return "", ""
	}
	dom = host[:p]
	if q := strings.LastIndexByte(dom, '.'); q > 0 {
		subdom = dom[:q]
		dom = dom[q+1:]
	}
	return subdom, dom
}

// rootPath returns the first path segment if the path has more than one.
func rootPath(p string) string {
	start := 0
	end := len(p) - 1
	if strings.HasPrefix(p, "/") {
		start = 1
	}
	if strings.HasSuffix(p, "/") {
		end = len(p) - 2
	}
	if start > len(p) {
		return ""
	}
	i := strings.IndexByte(p[start:], '/')
	if i < 0 {
		return ""
	}
	i += start
	if i > 0 && i < end {
		return p[start:i]
	}
	return ""
}

func lengthKey(dom string) int {
	switch l := len(dom); {
	case l <= 8:
		return 0
	case l <= 12:
		return 1
	case l <= 16:
		return 2
	default:
		return 3
	}
}
