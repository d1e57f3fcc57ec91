package network

import (
	"fmt"
	"net"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/wire"
)

// Send dials the peer, writes a single frame and closes the connection.
// Failed sends are not retried.
func (s *Server) Send(addr string, msg wire.Message) error {
	conn, err := net.DialTimeout("tcp", addr, s.dialTimeout)
	if err != nil {
		return fmt.Errorf("send %s to %s: %w: %w", msg.Command(), addr, ErrNetwork, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))

	if err := wire.WriteFrame(conn, msg); err != nil {
		return fmt.Errorf("send %s to %s: %w: %w", msg.Command(), addr, ErrNetwork, err)
	}

	s.evHandler("network: sent %s to[%s]", msg.Command(), addr)

	return nil
}

// SendHeight announces the local height to the peer.
func (s *Server) SendHeight(addr string) error {
	return s.Send(addr, wire.Height{AddrFrom: s.host, Height: s.state.Height()})
}

// BroadcastInv advertises ids to every known peer. Failures are logged and
// the broadcast carries on with the next peer.
func (s *Server) BroadcastInv(kind wire.Kind, ids [][]byte) {
	for _, pr := range s.state.RetrieveKnownPeers() {
		if pr.Match(s.host) {
			continue
		}

		if err := s.Send(pr.Host, wire.Inv{AddrFrom: s.host, Kind: kind, IDs: ids}); err != nil {
			s.evHandler("network: BroadcastInv: WARNING: %s", err)
		}
	}
}

// BroadcastTx advertises a transaction accepted by this node to every
// known peer.
func (s *Server) BroadcastTx(txID []byte) {
	s.BroadcastInv(wire.KindTx, [][]byte{txID})
}
