/*
File Name:  Crawl.go

The crawl scheduler (C3): manages the discovery frontier via the
registry, bounds concurrency with a process-wide semaphore, and
decides when to stop (spec.md §4.3).
*/

package core

import (
	"context"
	"sync"
	"time"

	"github.com/bitcrawl/core/protocol"
	"github.com/bitcrawl/core/registry"
	"github.com/bitcrawl/core/session"
	"golang.org/x/sync/semaphore"
)

// batchSleep is the inter-iteration delay that yields the runtime and
// avoids a tight loop when discovery stalls (spec.md §4.3 step 5).
const batchSleep = 300 * time.Millisecond

// progressThreshold is the minimum number of new records accumulated
// since the last callback invocation before the callback fires again
// (spec.md §4.3 step 4, §6).
const progressThreshold = 20

// Options configures a single Crawl invocation.
type Options struct {
	MaxNodes      int
	MaxConcurrent int
	Network       protocol.Magic
	SessionConfig session.Config // Timeouts/drain policy; SessionConfig.Network is overridden by Network.
}

// Crawl runs the bounded, frontier-driven traversal described in
// spec.md §4.3 to completion and returns every successful peer
// record. It terminates when |crawled| >= MaxNodes or the frontier is
// exhausted (discovered \ crawled = empty at a batch boundary).
//
// Crawl never aborts on a single peer's failure: transport and
// protocol errors are isolated per session (spec.md §7).
func Crawl(ctx context.Context, cctx Context, seeds []ResolvedSeed, opts Options) ([]PeerRecord, error) {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}

	reg := registry.New()
	for _, seed := range seeds {
		reg.Offer(seed.IP, seed.Port)
	}

	sem := semaphore.NewWeighted(int64(opts.MaxConcurrent))

	var (
		bufferMu   sync.Mutex
		buffer     []PeerRecord
		lastNotify int
	)

	sessionCfg := opts.SessionConfig
	sessionCfg.Network = opts.Network

	for reg.CrawledCount() < opts.MaxNodes && reg.HasPending() {
		batch := reg.Select(opts.MaxConcurrent)
		if len(batch) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, endpoint := range batch {
			endpoint := endpoint

			if err := sem.Acquire(ctx, 1); err != nil {
				// Context canceled: stop spawning new sessions but let any
				// already-running ones in this batch finish via the WaitGroup.
				break
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer sem.Release(1)

				result, err := session.Run(ctx, endpoint.IP, endpoint.Port, sessionCfg)
				if err != nil {
					reg.MarkFailed(endpoint.IP, endpoint.Port)
					cctx.logf("session %s:%d failed: %v", endpoint.IP, endpoint.Port, err)
					return
				}

				for _, peer := range result.NewPeers {
					reg.Offer(peer.IP, peer.Port)
				}

				record := PeerRecord{
					IP:              result.IP,
					Port:            result.Port,
					ProtocolVersion: result.Version,
					Services:        result.Services,
					UserAgent:       result.UserAgent,
					Timestamp:       result.Timestamp,
					PeersDiscovered: result.PeersDiscovered,
				}

				bufferMu.Lock()
				buffer = append(buffer, record)
				bufferMu.Unlock()
			}()
		}
		wg.Wait()

		bufferMu.Lock()
		if len(buffer)-lastNotify >= progressThreshold {
			snapshot := append([]PeerRecord(nil), buffer...)
			lastNotify = len(buffer)
			bufferMu.Unlock()
			cctx.notify(snapshot)
		} else {
			bufferMu.Unlock()
		}

		discovered, crawled, failed := reg.Counts()
		cctx.logf("batch complete: %d discovered, %d crawled, %d failed", discovered, crawled, failed)

		select {
		case <-time.After(batchSleep):
		case <-ctx.Done():
			bufferMu.Lock()
			result := append([]PeerRecord(nil), buffer...)
			bufferMu.Unlock()
			return result, ctx.Err()
		}
	}

	bufferMu.Lock()
	defer bufferMu.Unlock()

	if len(buffer) > lastNotify {
		snapshot := append([]PeerRecord(nil), buffer...)
		cctx.notify(snapshot)
	}

	return buffer, nil
}
