package core

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bitcrawl/core/protocol"
	"github.com/bitcrawl/core/session"
)

// testNode starts a listener that completes the handshake and hands
// back peers, so Crawl can chain discovery across generations without
// a real Bitcoin network.
type testNode struct {
	ln    net.Listener
	peers []protocol.AddrEntry
}

func startTestNode(t *testing.T, peers []protocol.AddrEntry) *testNode {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	node := &testNode{ln: ln, peers: peers}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go node.serve(conn)
		}
	}()

	return node
}

func (n *testNode) serve(conn net.Conn) {
	defer conn.Close()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	readFrame := func() (protocol.Frame, bool) {
		for {
			read, err := conn.Read(chunk)
			if read > 0 {
				buf = append(buf, chunk[:read]...)
				frame, next, decodeErr := protocol.DecodeFrame(buf, 0, protocol.MagicMainnet)
				if decodeErr == nil {
					buf = buf[next:]
					return frame, true
				}
			}
			if err != nil {
				return protocol.Frame{}, false
			}
		}
	}

	if _, ok := readFrame(); !ok {
		return
	}
	conn.Write(protocol.BuildVersion(protocol.MagicMainnet, protocol.VersionOptions{UserAgent: "/testnode/"}))

	if _, ok := readFrame(); !ok {
		return
	}
	conn.Write(protocol.BuildVerack(protocol.MagicMainnet))

	if _, ok := readFrame(); !ok {
		return
	}
	conn.Write(protocol.EncodeFrame(protocol.MagicMainnet, protocol.CmdAddr, protocol.BuildAddr(n.peers)))
}

func (n *testNode) endpoint() ResolvedSeed {
	addr := n.ln.Addr().(*net.TCPAddr)
	return ResolvedSeed{IP: "127.0.0.1", Port: uint16(addr.Port)}
}

// redirectDialer lets the crawl use routable documentation-range
// addresses (the registry drops loopback ones) while the test nodes
// listen on loopback: a dial to a registered alias goes to 127.0.0.1
// on the same port, any other dial goes out unchanged.
type redirectDialer struct {
	routes map[string]string
}

func newRedirectDialer() *redirectDialer {
	return &redirectDialer{routes: make(map[string]string)}
}

// alias registers ip:port as a routable name for 127.0.0.1:port and
// returns it as a seed. Call it before the crawl starts.
func (d *redirectDialer) alias(ip string, port uint16) ResolvedSeed {
	d.routes[net.JoinHostPort(ip, fmt.Sprint(port))] = net.JoinHostPort("127.0.0.1", fmt.Sprint(port))
	return ResolvedSeed{IP: ip, Port: port}
}

func (d *redirectDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if target, ok := d.routes[address]; ok {
		address = target
	}
	var dialer net.Dialer
	return dialer.DialContext(ctx, network, address)
}

func TestCrawlTerminatesWhenFrontierExhausted(t *testing.T) {
	dialer := newRedirectDialer()

	leaf := startTestNode(t, nil)
	defer leaf.ln.Close()
	leafSeed := dialer.alias("203.0.113.20", leaf.endpoint().Port)

	root := startTestNode(t, []protocol.AddrEntry{{IP: leafSeed.IP, Port: leafSeed.Port}})
	defer root.ln.Close()
	rootSeed := dialer.alias("203.0.113.10", root.endpoint().Port)

	records, err := Crawl(context.Background(), DefaultContext(), []ResolvedSeed{rootSeed}, Options{
		MaxNodes:      100,
		MaxConcurrent: 4,
		Network:       protocol.MagicMainnet,
		SessionConfig: session.Config{Dialer: dialer},
	})

	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestCrawlRespectsMaxNodesOvershootBound(t *testing.T) {
	// A hub that advertises many peers, none of which are reachable,
	// exercises the scheduler's batch-granularity overshoot: a whole
	// batch of MaxConcurrent selections can push |crawled| past
	// MaxNodes before the loop condition is rechecked, so the record
	// count (a subset of crawled) must never exceed that same bound.
	var unreachablePeers []protocol.AddrEntry
	for i := 0; i < 50; i++ {
		unreachablePeers = append(unreachablePeers, protocol.AddrEntry{IP: "203.0.113.1", Port: uint16(9000 + i)})
	}

	dialer := newRedirectDialer()

	hub := startTestNode(t, unreachablePeers)
	defer hub.ln.Close()
	hubSeed := dialer.alias("203.0.113.10", hub.endpoint().Port)

	maxNodes := 2
	maxConcurrent := 3

	sessionCfg := sessionConfigWithShortTimeouts()
	sessionCfg.Dialer = dialer

	records, err := Crawl(context.Background(), DefaultContext(), []ResolvedSeed{hubSeed}, Options{
		MaxNodes:      maxNodes,
		MaxConcurrent: maxConcurrent,
		Network:       protocol.MagicMainnet,
		SessionConfig: sessionCfg,
	})

	require.NoError(t, err)
	require.LessOrEqual(t, len(records), maxNodes+maxConcurrent-1)
}

func TestCrawlInvokesProgressCallback(t *testing.T) {
	var mu sync.Mutex
	var calls int

	dialer := newRedirectDialer()

	hub := startTestNode(t, nil)
	defer hub.ln.Close()
	hubSeed := dialer.alias("203.0.113.10", hub.endpoint().Port)

	cctx := Context{
		Progress: func(snapshot []PeerRecord) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	}

	_, err := Crawl(context.Background(), cctx, []ResolvedSeed{hubSeed}, Options{
		MaxNodes:      10,
		MaxConcurrent: 1,
		Network:       protocol.MagicMainnet,
		SessionConfig: session.Config{Dialer: dialer},
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, calls, 1)
}

func TestCrawlIsolatesPerSessionFailure(t *testing.T) {
	// One endpoint with nothing listening must not abort the whole crawl.
	deadListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := deadListener.Addr().(*net.TCPAddr)
	deadListener.Close()

	dialer := newRedirectDialer()

	hub := startTestNode(t, nil)
	defer hub.ln.Close()

	seeds := []ResolvedSeed{
		dialer.alias("203.0.113.30", uint16(deadAddr.Port)),
		dialer.alias("203.0.113.10", hub.endpoint().Port),
	}

	sessionCfg := sessionConfigWithShortTimeouts()
	sessionCfg.Dialer = dialer

	records, err := Crawl(context.Background(), DefaultContext(), seeds, Options{
		MaxNodes:      10,
		MaxConcurrent: 2,
		Network:       protocol.MagicMainnet,
		SessionConfig: sessionCfg,
	})

	require.NoError(t, err)
	require.Len(t, records, 1)
}

func sessionConfigWithShortTimeouts() (cfg session.Config) {
	cfg.ConnectTimeout = 500 * time.Millisecond
	cfg.DrainReadTimeout = 200 * time.Millisecond
	cfg.InitialDrainDelay = 10 * time.Millisecond
	cfg.DrainAttempts = 2
	cfg.EarlyExitMinAttempts = 1
	return cfg
}
