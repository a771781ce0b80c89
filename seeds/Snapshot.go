/*
File Name:  Snapshot.go

An optional SeedSource that fetches a pre-crawled snapshot of reachable
nodes from an HTTP endpoint, for faster cold starts than DNS seeds
alone. Modeled on original_source/backend/crawl_loop.py's
fetch_bitnodes_seeds, which does the same JSON-list fetch against the
public bitnodes.io snapshot API.
*/

package seeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	core "github.com/bitcrawl/core"
)

// SnapshotSource fetches a JSON document from URL and decodes it as a
// list of "ip:port" strings.
type SnapshotSource struct {
	URL    string
	Client *http.Client
}

// NewSnapshotSource builds a SnapshotSource with an 8 second request
// timeout, matching the crawl's own per-peer connect timeout default.
func NewSnapshotSource(url string) *SnapshotSource {
	return &SnapshotSource{URL: url, Client: &http.Client{Timeout: 8 * time.Second}}
}

// Seeds implements core.SeedSource. An empty URL yields no seeds and
// no error: the snapshot source is optional (spec.md's seed
// acquisition is pluggable, and a missing snapshot just leaves the
// crawl to start from DNS seeds alone).
func (s *SnapshotSource) Seeds(ctx context.Context) ([]core.ResolvedSeed, error) {
	if s.URL == "" {
		return nil, nil
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("seeds: build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("seeds: fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("seeds: snapshot request returned status %d", resp.StatusCode)
	}

	var entries []string
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("seeds: decode snapshot: %w", err)
	}

	out := make([]core.ResolvedSeed, 0, len(entries))
	for _, entry := range entries {
		ip, port, ok := splitHostPort(entry)
		if !ok {
			continue
		}
		out = append(out, core.ResolvedSeed{IP: ip, Port: port})
	}
	return out, nil
}

// splitHostPort parses "ip:port" without invoking net.SplitHostPort's
// bracket handling, since snapshot entries are plain dotted-quad or
// bracket-free IPv6 pairs.
func splitHostPort(entry string) (ip string, port uint16, ok bool) {
	idx := strings.LastIndex(entry, ":")
	if idx < 0 {
		return "", 0, false
	}
	portNum, err := strconv.ParseUint(entry[idx+1:], 10, 16)
	if err != nil {
		return "", 0, false
	}
	return entry[:idx], uint16(portNum), true
}
