/*
File Name:  DNS.go

A SeedSource that resolves a fixed list of DNS seed hostnames, the
standard Bitcoin-network bootstrap mechanism: each hostname's A/AAAA
records are themselves a snapshot of currently reachable nodes rather
than a single advertised IP. Grounded on
original_source/backend/crawl_loop.py's seed resolution step, which
does the same thing with socket.getaddrinfo.
*/

package seeds

import (
	"context"
	"fmt"
	"net"

	core "github.com/bitcrawl/core"
)

// DefaultPort is used for every address resolved from a DNS seed
// hostname, since DNS seeds advertise addresses, not ports.
const DefaultPort uint16 = 8333

// DNSSource resolves a fixed list of hostnames into candidate peer
// endpoints.
type DNSSource struct {
	Hostnames []string
	Port      uint16
	Resolver  *net.Resolver
}

// NewDNSSource builds a DNSSource over hostnames, defaulting Port to
// DefaultPort and using net.DefaultResolver.
func NewDNSSource(hostnames []string) *DNSSource {
	return &DNSSource{
		Hostnames: hostnames,
		Port:      DefaultPort,
		Resolver:  net.DefaultResolver,
	}
}

// Seeds implements core.SeedSource. A hostname that fails to resolve
// is skipped rather than treated as fatal: DNS seeds are best-effort
// and redundant by design (spec.md treats seed acquisition as an
// external collaborator's concern, with no single-source dependency).
func (d *DNSSource) Seeds(ctx context.Context) ([]core.ResolvedSeed, error) {
	resolver := d.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}

	var out []core.ResolvedSeed
	var lastErr error

	for _, host := range d.Hostnames {
		addrs, err := resolver.LookupIPAddr(ctx, host)
		if err != nil {
			lastErr = err
			continue
		}
		for _, addr := range addrs {
			out = append(out, core.ResolvedSeed{IP: addr.IP.String(), Port: port})
		}
	}

	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("seeds: all dns seeds failed, last error: %w", lastErr)
	}
	return out, nil
}
