package probes

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"github.com/miekg/dns"

	"github.com/osops/oschecks/pkg/types/check"
)

// NewEndpointDNSProbe resolves the auth endpoint's hostname. When the DNS in
// front of the API endpoints breaks, every other check reports UNKNOWN at
// once; this probe points at the actual culprit. The resolver address may be
// empty, in which case the system resolver configuration is used.
func NewEndpointDNSProbe(authURL, resolver string) (check.Probe, error) {
	u, err := url.Parse(authURL)
	if err != nil {
		return nil, fmt.Errorf("parsing auth URL: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("auth URL %q has no hostname", authURL)
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil, fmt.Errorf("auth URL points at IP literal %s, nothing to resolve", ip)
	}
	if resolver == "" {
		conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return nil, fmt.Errorf("loading system resolver config: %w", err)
		}
		if len(conf.Servers) == 0 {
			return nil, fmt.Errorf("no system resolvers configured")
		}
		resolver = net.JoinHostPort(conf.Servers[0], conf.Port)
	} else if _, _, err := net.SplitHostPort(resolver); err != nil {
		resolver = net.JoinHostPort(resolver, "53")
	}

	return func(ctx context.Context) (check.Outcome, error) {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(host), dns.TypeA)
		c := new(dns.Client)
		r, _, err := c.ExchangeContext(ctx, m, resolver)
		if err != nil {
			return check.Outcome{}, err
		}
		if r.Rcode != dns.RcodeSuccess {
			return check.Failed("resolver answered %s for %s", dns.RcodeToString[r.Rcode], host), nil
		}
		records := 0
		for _, rr := range r.Answer {
			if _, ok := rr.(*dns.A); ok {
				records++
			}
		}
		if records == 0 {
			return check.Failed("no A records for %s", host), nil
		}
		return check.Measure(float64(records), "", "%s resolves to %d addresses", host, records), nil
	}, nil
}
