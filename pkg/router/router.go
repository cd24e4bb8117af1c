package router

import (
	"strings"

	"mercator-hq/ganymede/pkg/config"
)

// ACMEChallengePrefix is the well-known path prefix for HTTP-01 challenges.
// Requests under it bypass normal routing so certificate issuance can
// complete without backend involvement.
const ACMEChallengePrefix = "/.well-known/acme-challenge/"

// Kind identifies which handler a routing decision selects.
type Kind int

const (
	// KindBackend forwards the request to the rule's backend.
	KindBackend Kind = iota

	// KindACME serves an ACME challenge file from the local challenge root.
	KindACME

	// KindStatus serves the plaintext counter snapshot.
	KindStatus

	// KindNotFound answers 404; the hostname has no rule and the unmatched
	// policy is not_found.
	KindNotFound
)

// Rule is the routing entry for one virtual host. Rules are created at
// configuration load and are immutable for the lifetime of the table.
type Rule struct {
	// Hostname is the lower-cased virtual host name.
	Hostname string

	// Backend is the upstream "host:port" address requests fall through to.
	Backend string

	// RedirectHTTPS marks hosts whose plaintext traffic (outside the path
	// exceptions) is redirected to the TLS listener.
	RedirectHTTPS bool
}

// Decision is the outcome of matching one request.
type Decision struct {
	Kind Kind

	// Rule is the matched virtual host. Nil for KindACME, KindStatus and
	// KindNotFound.
	Rule *Rule
}

// Table is an immutable routing table keyed by hostname. A table is built
// once per configuration load and replaced wholesale on reload; Match is
// safe for concurrent use without locking.
type Table struct {
	byHost     map[string]*Rule
	fallback   *Rule
	statusPath string
}

// New builds a routing table from the validated configuration.
func New(cfg *config.Config) *Table {
	t := &Table{
		byHost:     make(map[string]*Rule, len(cfg.VirtualHosts)),
		statusPath: cfg.Status.Path,
	}
	for i := range cfg.VirtualHosts {
		vh := &cfg.VirtualHosts[i]
		t.byHost[vh.Hostname] = &Rule{
			Hostname:      vh.Hostname,
			Backend:       vh.Backend,
			RedirectHTTPS: vh.RedirectHTTPSEnabled(),
		}
	}
	if cfg.Unmatched.Policy == config.UnmatchedDefaultHost {
		t.fallback = t.byHost[strings.ToLower(cfg.Unmatched.DefaultHost)]
	}
	return t
}

// Match resolves a request to a handler. It is a pure function of
// (hostname, path): path exceptions are checked in priority order, the
// ACME challenge prefix first and the status path second, before the
// hostname's default backend.
func (t *Table) Match(host, path string) Decision {
	if strings.HasPrefix(path, ACMEChallengePrefix) {
		return Decision{Kind: KindACME}
	}
	if path == t.statusPath {
		return Decision{Kind: KindStatus}
	}

	if rule, ok := t.byHost[normalizeHost(host)]; ok {
		return Decision{Kind: KindBackend, Rule: rule}
	}
	if t.fallback != nil {
		return Decision{Kind: KindBackend, Rule: t.fallback}
	}
	return Decision{Kind: KindNotFound}
}

// Lookup returns the rule for a hostname, if any. It ignores path
// exceptions and the unmatched policy.
func (t *Table) Lookup(host string) (*Rule, bool) {
	rule, ok := t.byHost[normalizeHost(host)]
	return rule, ok
}

// Hostnames returns the configured hostnames in no particular order.
func (t *Table) Hostnames() []string {
	out := make([]string, 0, len(t.byHost))
	for h := range t.byHost {
		out = append(out, h)
	}
	return out
}

// normalizeHost lower-cases a Host header value and strips any port.
func normalizeHost(host string) string {
	host = strings.ToLower(host)
	// Bracketed IPv6 literals keep their brackets; only a trailing :port is
	// stripped.
	if i := strings.LastIndexByte(host, ':'); i >= 0 && !strings.Contains(host[i:], "]") {
		host = host[:i]
	}
	return host
}
