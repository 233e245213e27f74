package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// Defaults for outbound requests.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "peercrawl"
)

// checkProxyTimeout bounds a proxy connectivity check.
const checkProxyTimeout = 2 * time.Second

// Transport dials peers directly or through SOCKS5 proxies.
type Transport struct {
	direct       *net.Dialer
	proxyAddress string
	onionAddress string
	proxyDialer  proxy.Dialer
	onionDialer  proxy.Dialer
	timeout      time.Duration
	dialTimeout  time.Duration
	userAgent    string
	headers      map[string]string
}

// Option configures a Transport.
type Option func(*Transport)

// WithProxy routes all traffic through the SOCKS5 proxy at address.
func WithProxy(address string) Option {
	return func(t *Transport) {
		t.proxyAddress = address
	}
}

// WithOnionProxy routes traffic to .onion hosts through the SOCKS5 proxy at
// address. Other hosts are unaffected.
func WithOnionProxy(address string) Option {
	return func(t *Transport) {
		t.onionAddress = address
	}
}

// WithTimeout sets the timeout of HTTP clients created by the Transport.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithDialTimeout bounds connection setup, including the connection to a
// proxy. It defaults to the request timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.dialTimeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header of outbound requests.
func WithUserAgent(ua string) Option {
	return func(t *Transport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// WithHeaders adds headers to every outbound request.
func WithHeaders(headers map[string]string) Option {
	return func(t *Transport) {
		t.headers = headers
	}
}

// New creates a Transport. Proxy addresses are validated but not contacted;
// use CheckProxy for that.
func New(opts ...Option) (*Transport, error) {
	t := &Transport{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.dialTimeout <= 0 {
		t.dialTimeout = t.timeout
	}
	t.direct = &net.Dialer{Timeout: t.dialTimeout, KeepAlive: 30 * time.Second}

	var err error
	if t.proxyAddress != "" {
		if t.proxyDialer, err = socks5(t.proxyAddress, t.direct); err != nil {
			return nil, err
		}
	}
	if t.onionAddress != "" {
		if t.onionDialer, err = socks5(t.onionAddress, t.direct); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func socks5(address string, forward proxy.Dialer) (proxy.Dialer, error) {
	if !isValidProxyAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProxyAddress, address)
	}
	// SOCKS ports of Tor and most local proxies require no authentication.
	d, err := proxy.SOCKS5("tcp", address, nil, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return d, nil
}

// isValidProxyAddress checks for "host:port" with a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// DialContext connects to address, picking the route by host.
func (t *Transport) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}

	if IsOnionHost(host) {
		if !IsValidV3Address(host) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidOnionAddress, host)
		}
		d := t.onionDialer
		if d == nil {
			d = t.proxyDialer
		}
		if d == nil {
			return nil, ErrNoOnionRoute
		}
		return dialContext(ctx, d, network, address)
	}

	if t.proxyDialer != nil {
		return dialContext(ctx, t.proxyDialer, network, address)
	}
	return t.direct.DialContext(ctx, network, address)
}

// dialContext uses the context-aware dial of d when available. Otherwise the
// dial runs in a goroutine; on cancellation the attempt may continue briefly
// in the background.
func dialContext(ctx context.Context, d proxy.Dialer, network, address string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := d.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if r := <-resultCh; r.conn != nil {
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// HTTPClient returns an HTTP client that dials through the Transport.
func (t *Transport) HTTPClient() *http.Client {
	base := &http.Transport{
		DialContext:         t.DialContext,
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}

	return &http.Client{
		Transport: &headerInjectingTransport{
			base:      base,
			userAgent: t.userAgent,
			headers:   t.headers,
		},
		Timeout: t.timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// ProxyAddress returns the proxy used for all traffic, if any.
func (t *Transport) ProxyAddress() string {
	return t.proxyAddress
}

// OnionProxyAddress returns the proxy used for .onion hosts, if any.
func (t *Transport) OnionProxyAddress() string {
	return t.onionAddress
}

// headerInjectingTransport sets the user agent and configured headers on
// every request, including redirects.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	headers   map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}
	return t.base.RoundTrip(clone)
}

// SOCKS5 protocol constants.
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// socks5TestHost is a name that never resolves. The check only needs
	// the proxy to answer the CONNECT request.
	socks5TestHost = "peercrawl-proxy-check.invalid"
)

// CheckProxy verifies that a SOCKS5 proxy listens at address. It performs
// the method negotiation and a CONNECT request; any well-formed CONNECT
// reply, including a failure code, counts as working.
func CheckProxy(ctx context.Context, address string) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, no authentication.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}
	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if authResp[0] != socks5Version || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	connectReq := []byte{socks5Version, socks5CmdConnect, 0x00, socks5AddrTypeDomID, byte(len(socks5TestHost))}
	connectReq = append(connectReq, socks5TestHost...)
	connectReq = append(connectReq, 0x00, 80)
	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		if isTimeout(err) {
			return ProxyStatusTimeout
		}
		return ProxyStatusWrongType
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}
	return ProxyStatusOK
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
