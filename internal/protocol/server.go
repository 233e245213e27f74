package protocol

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/nao1215/peercrawl/internal/wire"
)

// DefaultMaxRequestSize bounds the body of one request.
const DefaultMaxRequestSize = 32 << 20

// Server exposes a command table over HTTP.
type Server struct {
	commands map[string]Command
	logger   *slog.Logger
	maxBody  int64
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger of the server.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxRequestSize sets the maximum request body size.
func WithMaxRequestSize(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// NewServer creates a Server dispatching to commands. The table is copied
// and never changes afterwards.
func NewServer(commands map[string]Command, opts ...ServerOption) *Server {
	s := &Server{
		commands: make(map[string]Command, len(commands)),
		logger:   slog.New(slog.DiscardHandler),
		maxBody:  DefaultMaxRequestSize,
	}
	for name, cmd := range commands {
		s.commands[name] = cmd
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CommandNames returns the served commands in sorted order.
func (s *Server) CommandNames() []string {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ServeHTTP dispatches /yacy/<command>.html to its handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}
	name, ok := commandName(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	cmd, ok := s.commands[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	req, err := wire.ParseRequest(r)
	if err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	arrival := arrivalHost(r.RemoteAddr)
	resp := cmd(r.Context(), req, arrival)
	s.logger.Debug("served command",
		slog.String("command", name),
		slog.String("remote", arrival))
	if err := wire.WriteResponse(w, resp); err != nil {
		s.logger.Debug("failed to write response",
			slog.String("command", name),
			slog.String("error", err.Error()))
	}
}

func commandName(path string) (string, bool) {
	name, ok := strings.CutPrefix(path, "/yacy/")
	if !ok {
		return "", false
	}
	name, ok = strings.CutSuffix(name, ".html")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

func arrivalHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
