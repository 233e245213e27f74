package transport

import (
	"context"
	"encoding/base32"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// onionAddress builds a valid v3 address from a 32 byte key.
func onionAddress(t *testing.T, seed byte) string {
	t.Helper()
	data := make([]byte, 35)
	for i := range 32 {
		data[i] = seed + byte(i)
	}
	copy(data[32:34], computeV3Checksum(data[:32], onionV3Version))
	data[34] = onionV3Version
	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + OnionSuffix
}

// startMockSOCKS5 accepts one connection, answers the greeting and reports
// the CONNECT target before refusing it with "host unreachable".
func startMockSOCKS5(t *testing.T) (string, <-chan string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
	if err != nil {
		t.Fatalf("failed to start mock server: %v", err)
	}
	t.Cleanup(func() { _ = listener.Close() })

	targets := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		greeting := make([]byte, 3)
		if _, err := io.ReadFull(conn, greeting); err != nil {
			return
		}
		_, _ = conn.Write([]byte{0x05, 0x00})

		header := make([]byte, 5)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		rest := make([]byte, int(header[4])+2)
		if _, err := io.ReadFull(conn, rest); err != nil {
			return
		}
		targets <- string(rest[:header[4]])
		_, _ = conn.Write([]byte{0x05, 0x04, 0x00, 0x01, 0, 0, 0, 0, 0, 0})
	}()
	return listener.Addr().String(), targets
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{name: "direct", opts: nil},
		{name: "valid proxy", opts: []Option{WithProxy("127.0.0.1:9050")}},
		{name: "valid onion proxy", opts: []Option{WithOnionProxy("localhost:9150")}},
		{name: "missing port", opts: []Option{WithProxy("127.0.0.1")}, wantErr: ErrInvalidProxyAddress},
		{name: "port out of range", opts: []Option{WithOnionProxy("127.0.0.1:70000")}, wantErr: ErrInvalidProxyAddress},
		{name: "missing host", opts: []Option{WithProxy(":9050")}, wantErr: ErrInvalidProxyAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr, err := New(tt.opts...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if err == nil && tr.timeout != DefaultTimeout {
				t.Errorf("expected default timeout, got %v", tr.timeout)
			}
		})
	}
}

func TestDialTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
		want time.Duration
	}{
		{name: "defaults to request timeout", want: DefaultTimeout},
		{name: "follows request timeout", opts: []Option{WithTimeout(5 * time.Second)}, want: 5 * time.Second},
		{name: "explicit", opts: []Option{WithTimeout(5 * time.Second), WithDialTimeout(time.Second)}, want: time.Second},
		{name: "non-positive ignored", opts: []Option{WithDialTimeout(0)}, want: DefaultTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tr, err := New(tt.opts...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.direct.Timeout != tt.want {
				t.Errorf("expected dial timeout %v, got %v", tt.want, tr.direct.Timeout)
			}
		})
	}
}

func TestIsValidProxyAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		address string
		want    bool
	}{
		{"127.0.0.1:9050", true},
		{"localhost:9150", true},
		{"[::1]:9050", true},
		{"127.0.0.1:0", false},
		{"127.0.0.1:abc", false},
		{"127.0.0.1", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isValidProxyAddress(tt.address); got != tt.want {
			t.Errorf("isValidProxyAddress(%q) = %v, want %v", tt.address, got, tt.want)
		}
	}
}

func TestOnionAddresses(t *testing.T) {
	t.Parallel()

	valid := onionAddress(t, 7)
	corrupted := "a" + valid[1:]
	if corrupted == valid {
		corrupted = "b" + valid[1:]
	}

	tests := []struct {
		host      string
		wantOnion bool
		wantValid bool
	}{
		{valid, true, true},
		{strings.ToUpper(valid), true, true},
		{corrupted, true, false},
		{"expyuzz4wqqyqhjn.onion", true, false},
		{"peer.example.org", false, false},
	}
	for _, tt := range tests {
		if got := IsOnionHost(tt.host); got != tt.wantOnion {
			t.Errorf("IsOnionHost(%q) = %v, want %v", tt.host, got, tt.wantOnion)
		}
		if got := IsValidV3Address(tt.host); got != tt.wantValid {
			t.Errorf("IsValidV3Address(%q) = %v, want %v", tt.host, got, tt.wantValid)
		}
	}
}

func TestDialContextRouting(t *testing.T) {
	t.Parallel()

	t.Run("onion without route", func(t *testing.T) {
		t.Parallel()

		tr, err := New()
		if err != nil {
			t.Fatal(err)
		}
		_, err = tr.DialContext(context.Background(), "tcp", net.JoinHostPort(onionAddress(t, 1), "8090"))
		if !errors.Is(err, ErrNoOnionRoute) {
			t.Errorf("expected ErrNoOnionRoute, got %v", err)
		}
	})

	t.Run("invalid onion", func(t *testing.T) {
		t.Parallel()

		tr, err := New(WithOnionProxy("127.0.0.1:9050"))
		if err != nil {
			t.Fatal(err)
		}
		_, err = tr.DialContext(context.Background(), "tcp", "broken.onion:80")
		if !errors.Is(err, ErrInvalidOnionAddress) {
			t.Errorf("expected ErrInvalidOnionAddress, got %v", err)
		}
	})

	t.Run("onion through proxy", func(t *testing.T) {
		t.Parallel()

		addr, targets := startMockSOCKS5(t)
		tr, err := New(WithOnionProxy(addr))
		if err != nil {
			t.Fatal(err)
		}
		onion := onionAddress(t, 2)
		if _, err := tr.DialContext(context.Background(), "tcp", net.JoinHostPort(onion, "8090")); err == nil {
			t.Error("expected the mock proxy to refuse the connection")
		}
		select {
		case got := <-targets:
			if got != onion {
				t.Errorf("expected CONNECT to %s, got %s", onion, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("proxy was not contacted")
		}
	})

	t.Run("clearnet through general proxy", func(t *testing.T) {
		t.Parallel()

		addr, targets := startMockSOCKS5(t)
		tr, err := New(WithProxy(addr))
		if err != nil {
			t.Fatal(err)
		}
		_, _ = tr.DialContext(context.Background(), "tcp", "peer.example.org:8090")
		select {
		case got := <-targets:
			if got != "peer.example.org" {
				t.Errorf("unexpected CONNECT target %s", got)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("proxy was not contacted")
		}
	})

	t.Run("malformed address", func(t *testing.T) {
		t.Parallel()

		tr, err := New()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := tr.DialContext(context.Background(), "tcp", "no-port"); err == nil {
			t.Error("expected an error for an address without port")
		}
	})
}

func TestHTTPClient(t *testing.T) {
	t.Parallel()

	var gotAgent, gotHeader string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		gotHeader = r.Header.Get("X-Network")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(ts.Close)

	tr, err := New(
		WithUserAgent("peercrawl-test/1.0"),
		WithHeaders(map[string]string{"X-Network": "freeworld"}),
		WithTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatal(err)
	}
	client := tr.HTTPClient()
	if client.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", client.Timeout)
	}

	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	if gotAgent != "peercrawl-test/1.0" || gotHeader != "freeworld" {
		t.Errorf("headers not injected: agent %q, network %q", gotAgent, gotHeader)
	}
}

func TestProxyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  ProxyStatus
		wantStr string
		wantErr error
	}{
		{ProxyStatusOK, "OK", nil},
		{ProxyStatusWrongType, "wrong type (not SOCKS5)", ErrProxyNotSOCKS5},
		{ProxyStatusCannotConnect, "cannot connect", ErrProxyCannotConnect},
		{ProxyStatusTimeout, "timeout", ErrProxyTimeout},
	}
	for _, tt := range tests {
		if tt.status.String() != tt.wantStr {
			t.Errorf("expected %q, got %q", tt.wantStr, tt.status.String())
		}
		if !errors.Is(tt.status.Error(), tt.wantErr) {
			t.Errorf("expected %v, got %v", tt.wantErr, tt.status.Error())
		}
	}
	if ProxyStatus(99).String() != "unknown" || ProxyStatus(99).Error() == nil {
		t.Error("unexpected handling of unknown status")
	}
}

func TestCheckProxy(t *testing.T) {
	t.Parallel()

	serve := func(t *testing.T, handle func(net.Conn)) string {
		t.Helper()
		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatalf("failed to start mock server: %v", err)
		}
		t.Cleanup(func() { _ = listener.Close() })
		go func() {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			handle(conn)
		}()
		return listener.Addr().String()
	}

	t.Run("cannot connect", func(t *testing.T) {
		t.Parallel()

		listener, err := net.Listen("tcp", "127.0.0.1:0") //nolint:noctx // test code
		if err != nil {
			t.Fatal(err)
		}
		addr := listener.Addr().String()
		_ = listener.Close()

		if got := CheckProxy(context.Background(), addr); got != ProxyStatusCannotConnect {
			t.Errorf("expected ProxyStatusCannotConnect, got %v", got)
		}
	})

	t.Run("not socks5", func(t *testing.T) {
		t.Parallel()

		addr := serve(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\n\r\n"))
		})
		if got := CheckProxy(context.Background(), addr); got != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", got)
		}
	})

	t.Run("requires auth", func(t *testing.T) {
		t.Parallel()

		addr := serve(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0xFF})
		})
		if got := CheckProxy(context.Background(), addr); got != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", got)
		}
	})

	t.Run("working proxy", func(t *testing.T) {
		t.Parallel()

		addr, _ := startMockSOCKS5(t)
		if got := CheckProxy(context.Background(), addr); got != ProxyStatusOK {
			t.Errorf("expected ProxyStatusOK, got %v", got)
		}
	})

	t.Run("wrong version in connect reply", func(t *testing.T) {
		t.Parallel()

		addr := serve(t, func(conn net.Conn) {
			buf := make([]byte, 3)
			_, _ = conn.Read(buf)
			_, _ = conn.Write([]byte{0x05, 0x00})
			req := make([]byte, 256)
			_, _ = conn.Read(req)
			_, _ = conn.Write([]byte{0x04, 0x00, 0x00, 0x01})
		})
		if got := CheckProxy(context.Background(), addr); got != ProxyStatusWrongType {
			t.Errorf("expected ProxyStatusWrongType, got %v", got)
		}
	})
}

func TestEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if e.startupTimeout != 3*time.Minute {
			t.Errorf("expected default timeout 3m, got %v", e.startupTimeout)
		}
		if e.IsRunning() || e.SocksAddr() != "" || e.ControlAddr() != "" {
			t.Error("expected a stopped daemon")
		}
	})

	t.Run("applies WithStartupTimeout", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor(WithStartupTimeout(5 * time.Minute))
		if e.startupTimeout != 5*time.Minute {
			t.Errorf("expected timeout 5m, got %v", e.startupTimeout)
		}
	})

	t.Run("route requires running daemon", func(t *testing.T) {
		t.Parallel()

		if _, err := NewEmbeddedTor().OnionRoute(); !errors.Is(err, ErrTorNotRunning) {
			t.Errorf("expected ErrTorNotRunning, got %v", err)
		}
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		t.Parallel()

		e := NewEmbeddedTor()
		if err := e.Stop(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}
