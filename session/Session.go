/*
File Name:  Session.go

A peer session (C2) is the full sequence of message exchanges against
a single remote endpoint: CONNECTING -> VERSION_SENT -> VERSION_RCVD
-> VERACK_EXCHANGED -> ADDR_COLLECTING -> DONE | FAILED. It owns
exactly one TCP socket and guarantees its closure on every exit path.
*/

package session

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bitcrawl/core/protocol"
)

// Config bounds the timeouts and drain policy for one session. Zero
// values fall back to the defaults below.
type Config struct {
	Network Magic

	// ConnectTimeout governs every TCP operation (dial, handshake writes
	// and reads) except the per-read timeout used during the addr drain
	// loop.
	ConnectTimeout time.Duration

	// DrainReadTimeout is the per-attempt read timeout during the addr
	// drain loop (spec default: 1.5s).
	DrainReadTimeout time.Duration

	// DrainAttempts bounds how many reads the drain loop performs
	// (spec default: 8).
	DrainAttempts int

	// DrainReadSize is the byte count requested per read during drain
	// (spec default: 16 KiB).
	DrainReadSize int

	// InitialDrainDelay is slept once after sending getaddr, before the
	// first drain read (spec default: 300ms).
	InitialDrainDelay time.Duration

	// EarlyExitMinAttempts is the minimum number of elapsed drain
	// attempts before the loop may terminate early once an addr frame
	// has been seen (spec default: 2).
	EarlyExitMinAttempts int

	// Dialer is used to open the TCP connection; defaults to
	// &net.Dialer{} when nil. Tests substitute a dialer pointed at a
	// local listener.
	Dialer interface {
		DialContext(ctx context.Context, network, address string) (net.Conn, error)
	}
}

// Magic re-exports protocol.Magic so callers of this package do not
// need to import protocol just to build a Config.
type Magic = protocol.Magic

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 8 * time.Second
	}
	if c.DrainReadTimeout == 0 {
		c.DrainReadTimeout = 1500 * time.Millisecond
	}
	if c.DrainAttempts == 0 {
		c.DrainAttempts = 8
	}
	if c.DrainReadSize == 0 {
		c.DrainReadSize = 16 * 1024
	}
	if c.InitialDrainDelay == 0 {
		c.InitialDrainDelay = 300 * time.Millisecond
	}
	if c.EarlyExitMinAttempts == 0 {
		c.EarlyExitMinAttempts = 2
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	return c
}

// Result is what a successful session emits.
type Result struct {
	IP              string
	Port            uint16
	Version         int32
	Services        uint64
	UserAgent       string
	Timestamp       time.Time
	NewPeers        []protocol.AddrEntry
	PeersDiscovered int
}

// State names the session's position in its state machine, exposed
// mainly for logging and tests.
type State int

const (
	StateConnecting State = iota
	StateVersionSent
	StateVersionReceived
	StateVerackExchanged
	StateAddrCollecting
	StateDone
	StateFailed
)

// Run executes one full session against (ip, port) and returns its
// result. A non-nil error means the session failed (transport or
// protocol error); the caller is responsible for recording the
// endpoint in the failed set. Run never panics and always closes its
// socket before returning, on every exit path.
func Run(ctx context.Context, ip string, port uint16, cfg Config) (Result, error) {
	cfg = cfg.withDefaults()

	address := net.JoinHostPort(ip, fmt.Sprintf("%d", port))

	dialCtx, cancelDial := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancelDial()

	conn, err := cfg.Dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return Result{}, fmt.Errorf("session: connect %s: %w", address, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(cfg.ConnectTimeout)); err != nil {
		return Result{}, fmt.Errorf("session: set deadline: %w", err)
	}

	if _, err := conn.Write(protocol.BuildVersion(cfg.Network, protocol.VersionOptions{Relay: true})); err != nil {
		return Result{}, fmt.Errorf("session: send version: %w", err)
	}

	versionFrame, err := readFrame(conn, cfg.Network, cfg.ConnectTimeout)
	if err != nil {
		return Result{}, fmt.Errorf("session: read version: %w", err)
	}
	if versionFrame.Command != protocol.CmdVersion {
		return Result{}, fmt.Errorf("session: expected version, got %q", versionFrame.Command)
	}
	versionInfo := protocol.ParseVersion(versionFrame.Payload)

	if _, err := conn.Write(protocol.BuildVerack(cfg.Network)); err != nil {
		return Result{}, fmt.Errorf("session: send verack: %w", err)
	}

	verackFrame, err := readFrame(conn, cfg.Network, cfg.ConnectTimeout)
	if err != nil {
		return Result{}, fmt.Errorf("session: read verack: %w", err)
	}
	if verackFrame.Command != protocol.CmdVerack {
		return Result{}, fmt.Errorf("session: expected verack, got %q", verackFrame.Command)
	}

	if _, err := conn.Write(protocol.BuildGetAddr(cfg.Network)); err != nil {
		return Result{}, fmt.Errorf("session: send getaddr: %w", err)
	}

	newPeers := drainAddr(ctx, conn, cfg)

	return Result{
		IP:              ip,
		Port:            port,
		Version:         versionInfo.Version,
		Services:        versionInfo.Services,
		UserAgent:       versionInfo.UserAgent,
		Timestamp:       time.Now(),
		NewPeers:        newPeers,
		PeersDiscovered: len(newPeers),
	}, nil
}

// readFrame reads until one full frame has been decoded or the
// timeout/EOF is hit. It is used for the version/verack exchange,
// where exactly one frame is expected per read phase.
func readFrame(conn net.Conn, network protocol.Magic, timeout time.Duration) (protocol.Frame, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Frame{}, err
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			frame, _, decodeErr := protocol.DecodeFrame(buf, 0, network)
			if decodeErr == nil {
				return frame, nil
			}
			if decodeErr != nil && decodeErr != protocol.ErrIncomplete {
				return protocol.Frame{}, decodeErr
			}
		}
		if err != nil {
			if n == 0 {
				return protocol.Frame{}, fmt.Errorf("session: connection closed before handshake completed: %w", err)
			}
			return protocol.Frame{}, err
		}
	}
}

// drainAddr implements the bounded read loop after getaddr (spec
// §4.2 "Drain policy"): an initial 300ms wait, up to DrainAttempts
// reads at DrainReadTimeout/DrainReadSize, early exit once an addr
// frame has been seen and at least EarlyExitMinAttempts have elapsed,
// and a salvage pass at fixed offsets if nothing was found.
func drainAddr(ctx context.Context, conn net.Conn, cfg Config) []protocol.AddrEntry {
	select {
	case <-time.After(cfg.InitialDrainDelay):
	case <-ctx.Done():
		return nil
	}

	var (
		buf        []byte
		peers      []protocol.AddrEntry
		offset     int
		attempts   int
		addrFrames int
	)
	chunk := make([]byte, cfg.DrainReadSize)

	for attempts < cfg.DrainAttempts {
		if err := conn.SetReadDeadline(time.Now().Add(cfg.DrainReadTimeout)); err != nil {
			break
		}

		n, err := conn.Read(chunk)
		attempts++

		if n > 0 {
			buf = append(buf, chunk[:n]...)

			for {
				frame, next, decodeErr := protocol.DecodeFrame(buf, offset, cfg.Network)
				if decodeErr != nil {
					break
				}
				if frame.Command == protocol.CmdAddr {
					addrFrames++
					peers = append(peers, protocol.ParseAddr(frame.Payload)...)
				}
				offset = next
			}
		}

		if addrFrames > 0 && attempts >= cfg.EarlyExitMinAttempts {
			break
		}

		if err != nil && n == 0 {
			// Read timed out or the remote closed; either way, count the
			// attempt and keep trying until the budget is exhausted.
			continue
		}
	}

	if addrFrames == 0 && len(buf) > 0 {
		peers = salvageAddr(buf, cfg.Network)
	}

	return peers
}

// salvageAddr tries decoding an addr frame at a few fixed offsets when
// the regular drain loop exhausted its attempt budget without finding
// one. This is heuristic and of marginal value; see DESIGN.md.
func salvageAddr(buf []byte, network protocol.Magic) []protocol.AddrEntry {
	for _, start := range []int{0, 24, 48} {
		if start >= len(buf) {
			continue
		}
		frame, _, err := protocol.DecodeFrame(buf, start, network)
		if err != nil {
			continue
		}
		if frame.Command == protocol.CmdAddr {
			if peers := protocol.ParseAddr(frame.Payload); len(peers) > 0 {
				return peers
			}
		}
	}
	return nil
}
