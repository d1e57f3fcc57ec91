package network

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wire"
)

// process routes a decoded message to its handler.
func (s *Server) process(traceID string, msg wire.Message) error {
	s.evHandler("network: conn[%s]: received %s from[%s]", traceID, msg.Command(), msg.From())

	s.addSender(msg.From())

	switch m := msg.(type) {
	case wire.Height:
		return s.handleHeight(m)
	case wire.GetBlocks:
		return s.handleGetBlocks(m)
	case wire.Inv:
		return s.handleInv(m)
	case wire.GetData:
		return s.handleGetData(traceID, m)
	case wire.Block:
		return s.handleBlock(m)
	case wire.Tx:
		return s.handleTx(m)
	}

	return fmt.Errorf("no handler for %s", msg.Command())
}

// handleHeight answers with our height when we are ahead, otherwise asks
// the peer for its blocks.
func (s *Server) handleHeight(m wire.Height) error {
	if s.state.Height() > m.Height {
		return s.SendHeight(m.AddrFrom)
	}

	return s.Send(m.AddrFrom, wire.GetBlocks{AddrFrom: s.host})
}

// handleGetBlocks advertises every local block, tip first.
func (s *Server) handleGetBlocks(m wire.GetBlocks) error {
	hashes, err := s.state.BlockHashes()
	if err != nil {
		return err
	}

	return s.Send(m.AddrFrom, wire.Inv{AddrFrom: s.host, Kind: wire.KindBlock, IDs: hashes})
}

// handleInv requests the first advertised block and queues the rest, or
// requests every advertised transaction not already pending.
func (s *Server) handleInv(m wire.Inv) error {
	switch m.Kind {
	case wire.KindBlock:
		if len(m.IDs) == 0 {
			return nil
		}

		s.pendingMu.Lock()
		s.pending[m.AddrFrom] = cloneIDs(m.IDs[1:])
		s.pendingMu.Unlock()

		return s.Send(m.AddrFrom, wire.GetData{AddrFrom: s.host, Kind: wire.KindBlock, ID: m.IDs[0]})

	case wire.KindTx:
		var errs []error
		for _, id := range m.IDs {
			if _, exists := s.state.QueryMempool(hex.EncodeToString(id)); exists {
				continue
			}

			if err := s.Send(m.AddrFrom, wire.GetData{AddrFrom: s.host, Kind: wire.KindTx, ID: id}); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return fmt.Errorf("inv of unknown kind %d", m.Kind)
}

// handleGetData replies with the requested block or pending transaction.
// Unknown ids are logged and ignored.
func (s *Server) handleGetData(traceID string, m wire.GetData) error {
	switch m.Kind {
	case wire.KindBlock:
		block, err := s.state.QueryBlock(m.ID)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				s.evHandler("network: conn[%s]: GETDATA: block[%x] not found", traceID, m.ID)
				return nil
			}
			return err
		}

		return s.Send(m.AddrFrom, wire.Block{AddrFrom: s.host, Block: block})

	case wire.KindTx:
		tx, exists := s.state.QueryMempool(hex.EncodeToString(m.ID))
		if !exists {
			s.evHandler("network: conn[%s]: GETDATA: tx[%x] not found", traceID, m.ID)
			return nil
		}

		return s.Send(m.AddrFrom, wire.Tx{AddrFrom: s.host, Tx: tx})
	}

	return fmt.Errorf("getdata of unknown kind %d", m.Kind)
}

// handleBlock validates the proof of work of a block, stores it and asks
// for the next queued block. Once the queue is drained the unspent output
// index is rebuilt.
func (s *Server) handleBlock(m wire.Block) error {
	block := m.Block

	if err := block.ValidatePOW(s.state.RetrieveGenesis().Difficulty); err != nil {
		s.dropPending(m.AddrFrom)
		return fmt.Errorf("dropping block from[%s]: %w", m.AddrFrom, err)
	}

	if err := s.state.AddBlock(block); err != nil {
		return err
	}

	if next, ok := s.popPending(m.AddrFrom); ok {
		return s.Send(m.AddrFrom, wire.GetData{AddrFrom: s.host, Kind: wire.KindBlock, ID: next})
	}

	return s.state.RebuildUTXO(context.Background())
}

// handleTx adds a verified transaction to the mempool and relays its id to
// the other known peers.
func (s *Server) handleTx(m wire.Tx) error {
	tx := m.Tx

	if _, exists := s.state.QueryMempool(tx.IDHex()); exists {
		return nil
	}

	if err := s.state.UpsertNodeTransaction(tx); err != nil {
		return fmt.Errorf("tx[%x]: %w", []byte(tx.ID), err)
	}

	for _, pr := range s.state.RetrieveKnownPeers() {
		if pr.Match(m.AddrFrom) || pr.Match(s.host) {
			continue
		}

		if err := s.Send(pr.Host, wire.Inv{AddrFrom: s.host, Kind: wire.KindTx, IDs: [][]byte{tx.ID}}); err != nil {
			s.evHandler("network: TX: relay: WARNING: %s", err)
		}
	}

	return nil
}

// =============================================================================

// popPending removes and returns the next queued block id for the peer.
func (s *Server) popPending(addr string) ([]byte, bool) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	queue := s.pending[addr]
	if len(queue) == 0 {
		delete(s.pending, addr)
		return nil, false
	}

	s.pending[addr] = queue[1:]
	return queue[0], true
}

// dropPending forgets the queue of a peer that sent an invalid block.
func (s *Server) dropPending(addr string) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()

	delete(s.pending, addr)
}
