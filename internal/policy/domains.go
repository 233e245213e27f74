package policy

import (
	"fmt"
	"strings"

	"github.com/nao1215/peercrawl/internal/position"
)

// Scope selects which part of the network a node crawls.
type Scope int

const (
	// ScopeGlobal accepts public hosts only.
	ScopeGlobal Scope = iota
	// ScopeLocal accepts hosts of the local network only.
	ScopeLocal
	// ScopeAny accepts every host.
	ScopeAny
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeLocal:
		return "local"
	case ScopeAny:
		return "any"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// ParseScope converts a configuration value into a Scope.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "global":
		return ScopeGlobal, nil
	case "local":
		return ScopeLocal, nil
	case "any":
		return ScopeAny, nil
	default:
		return ScopeGlobal, fmt.Errorf("%w: %q", ErrInvalidScope, s)
	}
}

// Domains is the domain acceptance policy of a node.
type Domains struct {
	scope Scope
}

// NewDomains returns a policy for scope.
func NewDomains(scope Scope) *Domains {
	return &Domains{scope: scope}
}

// Scope returns the configured scope.
func (d *Domains) Scope() Scope {
	return d.scope
}

// CheckAccepted returns "" when u is within scope, otherwise the reason it
// is not.
func (d *Domains) CheckAccepted(u *position.URL) string {
	switch d.scope {
	case ScopeGlobal:
		if u.IsLocal() {
			return "host in local network: " + u.Host()
		}
	case ScopeLocal:
		if !u.IsLocal() {
			return "host outside local network: " + u.Host()
		}
	}
	return ""
}

// AcceptsPosition reports whether a URL known only by its position is within
// scope, judged by the domain classification embedded in the position.
func (d *Domains) AcceptsPosition(p position.Position) bool {
	if !p.IsURL() {
		return false
	}
	switch d.scope {
	case ScopeGlobal:
		return !position.IsLocalClassification(p)
	case ScopeLocal:
		return position.IsLocalClassification(p)
	default:
		return true
	}
}
