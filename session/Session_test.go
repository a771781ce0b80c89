package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bitcrawl/core/protocol"
)

// emulatedPeer starts a listener that plays the server side of the
// handshake one round trip at a time: reply to version with version,
// reply to verack with verack, then on getaddr reply with one addr
// frame carrying peers. Each reply is withheld until its trigger has
// been read, so phases never coalesce on the wire.
func emulatedPeer(t *testing.T, peers []protocol.AddrEntry) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, 0, 4096)
		chunk := make([]byte, 4096)
		readFrame := func() (protocol.Frame, bool) {
			for {
				n, err := conn.Read(chunk)
				if n > 0 {
					buf = append(buf, chunk[:n]...)
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
		conn.Write(protocol.BuildVersion(protocol.MagicMainnet, protocol.VersionOptions{UserAgent: "/peer:1.0/"}))

		if _, ok := readFrame(); !ok {
			return
		}
		conn.Write(protocol.BuildVerack(protocol.MagicMainnet))

		if _, ok := readFrame(); !ok {
			return
		}
		conn.Write(protocol.EncodeFrame(protocol.MagicMainnet, protocol.CmdAddr, protocol.BuildAddr(peers)))
	}()

	return ln
}

func TestRunHappyPath(t *testing.T) {
	peers := []protocol.AddrEntry{
		{IP: "203.0.113.10", Port: 8333},
		{IP: "203.0.113.11", Port: 8333},
	}
	ln := emulatedPeer(t, peers)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)

	cfg := Config{
		Network:           protocol.MagicMainnet,
		ConnectTimeout:    2 * time.Second,
		DrainReadTimeout:  500 * time.Millisecond,
		InitialDrainDelay: 10 * time.Millisecond,
	}

	result, err := Run(context.Background(), "127.0.0.1", uint16(addr.Port), cfg)
	require.NoError(t, err)
	require.Equal(t, "/peer:1.0/", result.UserAgent)
	require.Len(t, result.NewPeers, 2)
	require.Equal(t, 2, result.PeersDiscovered)
}

func TestRunConnectFailureReturnsError(t *testing.T) {
	cfg := Config{
		Network:        protocol.MagicMainnet,
		ConnectTimeout: 200 * time.Millisecond,
	}

	// The closed listener's ephemeral port: nothing listens there any more.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	ln.Close()

	_, err = Run(context.Background(), "127.0.0.1", uint16(addr.Port), cfg)
	require.Error(t, err)
}

func TestRunUnexpectedCommandFails(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write(protocol.BuildGetAddr(protocol.MagicMainnet)) // wrong reply
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := Config{Network: protocol.MagicMainnet, ConnectTimeout: time.Second}

	_, err = Run(context.Background(), "127.0.0.1", uint16(addr.Port), cfg)
	require.Error(t, err)
}
