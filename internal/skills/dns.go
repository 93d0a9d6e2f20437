package skills

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

const dnsTimeout = 5 * time.Second

// DNSLookup resolves host names.
type DNSLookup struct {
	resolver *net.Resolver
}

// NewDNSLookup uses r, or net.DefaultResolver when r is nil.
func NewDNSLookup(r *net.Resolver) *DNSLookup {
	if r == nil {
		r = net.DefaultResolver
	}
	return &DNSLookup{resolver: r}
}

// Lookup returns the sorted addresses host resolves to.
func (d *DNSLookup) Lookup(ctx context.Context, host string) (string, error) {
	host = strings.TrimSuffix(strings.TrimSpace(host), ".")
	if host == "" || strings.ContainsAny(host, " /") {
		return "", fmt.Errorf("invalid host %q", host)
	}

	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", host, err)
	}
	sort.Strings(addrs)

	var b strings.Builder
	fmt.Fprintf(&b, "DNS results for %s:", host)
	for _, a := range addrs {
		kind := "A"
		if strings.Contains(a, ":") {
			kind = "AAAA"
		}
		fmt.Fprintf(&b, "\n  %s %s", kind, a)
	}
	return b.String(), nil
}
