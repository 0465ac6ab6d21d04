// Package connectivity provides the pre-flight reachability check the
// orchestrator consults before attempting any remote dispatch. Both the
// link-level probe and the application-level probe must pass.
package connectivity

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"time"
)

// Checker reports whether the service's upstreams are reachable.
type Checker interface {
	Online(ctx context.Context) bool
}

// Probe checks a target URL two ways: a TCP dial to the host (link
// reachability) and an HTTP HEAD request (the upstream actually answers).
type Probe struct {
	target      string
	dialTimeout time.Duration
	client      *http.Client
}

// NewProbe builds a Probe against target (any https URL of an upstream the
// dispatch path depends on).
func NewProbe(target string) *Probe {
	return &Probe{
		target:      target,
		dialTimeout: 3 * time.Second,
		client:      &http.Client{Timeout: 5 * time.Second},
	}
}

// Online returns true only when the TCP dial and the HEAD request both
// succeed. Any HTTP status counts as reachable; the probe tests the path,
// not the endpoint's semantics.
func (p *Probe) Online(ctx context.Context) bool {
	u, err := url.Parse(p.target)
	if err != nil {
		return false
	}
	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	d := net.Dialer{Timeout: p.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return false
	}
	_ = conn.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.target, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return true
}

// Static is a fixed-answer Checker for tests and the drain CLI.
type Static bool

func (s Static) Online(context.Context) bool { return bool(s) }
