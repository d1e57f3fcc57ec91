// Package network implements the node to node sync protocol. Every inbound
// connection is handled by its own goroutine and every outbound message is
// sent over a fresh connection that carries a single frame.
package network

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wire"
	"github.com/google/uuid"
)

// ErrNetwork is returned when a message could not be delivered to a peer.
var ErrNetwork = errors.New("network failure")

// Default timeouts applied when the configuration leaves them empty.
const (
	defaultDialTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second
)

// =============================================================================

// Config represents the configuration of the sync server.
type Config struct {
	Host         string
	State        *state.State
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	EvHandler    state.EventHandler
}

// Server accepts connections from peers and drives the sync protocol.
type Server struct {
	host         string
	state        *state.State
	evHandler    state.EventHandler
	dialTimeout  time.Duration
	writeTimeout time.Duration
	readTimeout  time.Duration

	listener net.Listener
	wg       sync.WaitGroup
	shut     chan struct{}
	once     sync.Once

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	pendingMu sync.Mutex
	pending   map[string][][]byte
}

// New constructs a server for use.
func New(cfg Config) *Server {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	s := Server{
		host:         cfg.Host,
		state:        cfg.State,
		evHandler:    ev,
		dialTimeout:  orDefault(cfg.DialTimeout, defaultDialTimeout),
		writeTimeout: orDefault(cfg.WriteTimeout, defaultWriteTimeout),
		readTimeout:  orDefault(cfg.ReadTimeout, defaultReadTimeout),
		shut:         make(chan struct{}),
		conns:        make(map[net.Conn]struct{}),
		pending:      make(map[string][][]byte),
	}

	return &s
}

// Start begins listening for peers and announces the local height to every
// known peer. When the configured host uses port 0 the host is updated to
// the address the listener was given.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.host)
	if err != nil {
		return fmt.Errorf("listen[%s]: %w: %w", s.host, ErrNetwork, err)
	}
	s.listener = listener
	s.host = listener.Addr().String()

	s.evHandler("network: Start: listening: host[%s]", s.host)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()

	for _, pr := range s.state.RetrieveKnownPeers() {
		if pr.Match(s.host) {
			continue
		}

		if err := s.SendHeight(pr.Host); err != nil {
			s.evHandler("network: Start: WARNING: %s", err)
		}
	}

	return nil
}

// Host returns the address peers use to reach this server.
func (s *Server) Host() string {
	return s.host
}

// Shutdown stops accepting connections, closes the open ones and waits for
// every connection goroutine to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	s.evHandler("network: shutdown: started")
	defer s.evHandler("network: shutdown: completed")

	s.once.Do(func() {
		close(s.shut)
		if s.listener != nil {
			s.listener.Close()
		}

		s.connMu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.connMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================

// acceptLoop hands every accepted connection to its own goroutine.
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.isShutdown() {
				return
			}
			s.evHandler("network: accept: ERROR: %s", err)
			continue
		}

		s.connMu.Lock()
		s.conns[conn] = struct{}{}
		s.connMu.Unlock()

		s.wg.Add(1)
		go func() {
			defer func() {
				s.connMu.Lock()
				delete(s.conns, conn)
				s.connMu.Unlock()

				conn.Close()
				s.wg.Done()
			}()

			s.handleConn(conn)
		}()
	}
}

// handleConn processes the frames of one connection in order. A frame that
// fails to decode is logged and skipped. A broken stream ends the
// connection.
func (s *Server) handleConn(conn net.Conn) {
	traceID := uuid.NewString()

	s.evHandler("network: conn[%s]: opened: remote[%s]", traceID, conn.RemoteAddr())
	defer s.evHandler("network: conn[%s]: closed", traceID)

	dec := wire.NewDecoder(conn)
	for {
		if s.isShutdown() {
			return
		}

		conn.SetReadDeadline(time.Now().Add(s.readTimeout))

		frame, err := dec.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.isShutdown() {
				s.evHandler("network: conn[%s]: read: ERROR: %s", traceID, err)
			}
			return
		}

		msg, err := wire.Decode(frame)
		if err != nil {
			s.evHandler("network: conn[%s]: decode: WARNING: %s", traceID, err)
			continue
		}

		if err := s.process(traceID, msg); err != nil {
			s.evHandler("network: conn[%s]: %s: ERROR: %s", traceID, msg.Command(), err)
		}
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (s *Server) isShutdown() bool {
	select {
	case <-s.shut:
		return true
	default:
		return false
	}
}

// orDefault returns d when v is zero.
func orDefault(v time.Duration, d time.Duration) time.Duration {
	if v == 0 {
		return d
	}
	return v
}

// addSender records the sender of a message as a known peer.
func (s *Server) addSender(addr string) {
	if addr == "" || addr == s.host {
		return
	}

	if s.state.AddKnownPeer(peer.New(addr)) {
		s.evHandler("network: new known peer[%s]", addr)
	}
}

// cloneIDs copies a list of ids.
func cloneIDs(ids [][]byte) [][]byte {
	out := make([][]byte, len(ids))
	for i, id := range ids {
		out[i] = bytes.Clone(id)
	}
	return out
}
