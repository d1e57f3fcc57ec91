package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// ErrEndOfChain is returned by an iterator that has walked past genesis.
var ErrEndOfChain = errors.New("end of chain")

// =============================================================================

// Iterator walks the chain backwards from the tip it was created at to the
// genesis block. Blocks are read lazily from storage.
type Iterator struct {
	storage database.Storage
	current []byte
}

// Next retrieves the next block walking towards genesis.
func (it *Iterator) Next() (database.Block, error) {
	if it.Done() {
		return database.Block{}, ErrEndOfChain
	}

	data, err := it.storage.Get(database.BlockKey(it.current))
	if err != nil {
		return database.Block{}, fmt.Errorf("block[%x]: %w", it.current, err)
	}

	block, err := database.DecodeBlock(data)
	if err != nil {
		return database.Block{}, err
	}

	it.current = block.PrevHash

	return block, nil
}

// Done returns the end of chain value.
func (it *Iterator) Done() bool {
	return len(it.current) == 0
}

// =============================================================================

// Iterator returns an iterator starting at the current tip. Each call
// starts a fresh walk.
func (s *State) Iterator() *Iterator {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.iterator()
}

// Height returns the height of the current tip.
func (s *State) Height() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.height
}

// LatestHash returns the hash of the current tip.
func (s *State) LatestHash() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return bytes.Clone(s.tip)
}

// LatestBlock returns the block at the current tip.
func (s *State) LatestBlock() (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryBlock(s.tip)
}

// QueryBlock returns the block with the specified hash.
func (s *State) QueryBlock(hash []byte) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryBlock(hash)
}

// BlockHashes returns the hash of every block from the tip back to genesis.
func (s *State) BlockHashes() ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hashes [][]byte
	iter := s.iterator()
	for !iter.Done() {
		block, err := iter.Next()
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, block.Hash)
	}

	return hashes, nil
}

// Blocks returns every block from the tip back to genesis.
func (s *State) Blocks() ([]database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blocks []database.Block
	iter := s.iterator()
	for !iter.Done() {
		block, err := iter.Next()
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

// AddBlock stores a block received from a peer. Adding a block that is
// already stored does nothing. The tip only moves when the block is higher
// than the current tip. The caller is responsible for validating the block.
func (s *State) AddBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch _, err := s.storage.Get(database.BlockKey(block.Hash)); {
	case err == nil:
		s.evHandler("state: AddBlock: block[%x] already stored", []byte(block.Hash))
		return nil
	case !errors.Is(err, database.ErrNotFound):
		return err
	}

	advance := block.Height > s.height
	if err := s.persistBlock(block, advance); err != nil {
		return err
	}

	for _, tx := range block.Transactions {
		s.mempool.Delete(tx)
	}

	s.evHandler("state: AddBlock: block[%x]: height[%d]: tip moved[%v]", []byte(block.Hash), block.Height, advance)

	return nil
}

// MineBlock verifies the transactions, mines a block holding them on top of
// the current tip and stores it as the new tip. The proof of work runs
// without holding the lock.
func (s *State) MineBlock(ctx context.Context, txs []database.Tx) (database.Block, error) {
	s.evHandler("state: MineBlock: MINING: verify %d transactions", len(txs))

	s.mu.Lock()
	if err := s.verifyBlockTransactions(txs); err != nil {
		s.mu.Unlock()
		return database.Block{}, err
	}
	prevHash := bytes.Clone(s.tip)
	height := s.height + 1
	s.mu.Unlock()

	s.evHandler("state: MineBlock: MINING: perform POW: height[%d]", height)

	block, err := database.POW(ctx, database.POWArgs{
		PrevHash:     prevHash,
		Height:       height,
		Transactions: txs,
		Difficulty:   s.genesis.Difficulty,
		EvHandler:    s.evHandler,
	})
	if err != nil {
		return database.Block{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: MineBlock: MINING: update local state")

	moved := !bytes.Equal(prevHash, s.tip)

	if err := s.persistBlock(block, true); err != nil {
		return database.Block{}, err
	}

	// The index follows the old tip when another block landed while the
	// nonce was searched, so it is recomputed from the new tip instead.
	if moved {
		s.evHandler("state: MineBlock: MINING: tip moved: rebuild utxo index")
		if err := s.utxo.Rebuild(context.WithoutCancel(ctx), s.iterator()); err != nil {
			return database.Block{}, err
		}
	} else {
		if err := s.utxo.Update(block); err != nil {
			return database.Block{}, err
		}
	}

	for _, tx := range txs {
		s.mempool.Delete(tx)
	}

	return block, nil
}

// =============================================================================

// verifyBlockTransactions checks the transactions of a block about to be
// mined. Only the first transaction may be a coinbase and no two inputs of
// the block may spend the same output. The caller must hold the lock.
func (s *State) verifyBlockTransactions(txs []database.Tx) error {
	spent := make(map[string]bool)

	for i, tx := range txs {
		if tx.IsCoinbase() {
			if i != 0 {
				return fmt.Errorf("tx[%x]: position[%d]: %w", []byte(tx.ID), i, ErrUnexpectedMint)
			}
			continue
		}

		if err := s.verifyTransaction(tx); err != nil {
			return err
		}

		if err := s.validateSpend(tx); err != nil {
			return err
		}

		for _, in := range tx.Inputs {
			key := fmt.Sprintf("%x:%d", []byte(in.TxID), in.OutIdx)
			if spent[key] {
				return fmt.Errorf("tx[%x]: input[%s]: %w", []byte(tx.ID), key, ErrDuplicateInput)
			}
			spent[key] = true
		}
	}

	return nil
}

// iterator constructs an iterator at the tip. The caller must hold the lock.
func (s *State) iterator() *Iterator {
	return &Iterator{
		storage: s.storage,
		current: bytes.Clone(s.tip),
	}
}

// queryBlock reads a block from storage. The caller must hold the lock.
func (s *State) queryBlock(hash []byte) (database.Block, error) {
	data, err := s.storage.Get(database.BlockKey(hash))
	if err != nil {
		return database.Block{}, err
	}

	return database.DecodeBlock(data)
}
