package state

import (
	"context"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/utxo"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
)

// Balance returns the sum of the unspent outputs owned by the address.
func (s *State) Balance(address string) (uint64, error) {
	pkh, err := wallet.DecodeAddress(address)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.utxo.Balance(pkh)
}

// FindUTXOs walks the chain from the tip back to genesis and returns the
// unspent outputs keyed by the hex encoded transaction id. The index is not
// consulted.
func (s *State) FindUTXOs(ctx context.Context) (map[string]database.TxOutputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return utxo.Scan(ctx, s.iterator())
}

// QueryUTXOIndex returns every record of the unspent output index keyed by
// the hex encoded transaction id.
func (s *State) QueryUTXOIndex() (map[string]database.TxOutputs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.utxo.All()
}

// CountUTXOTransactions returns the number of transactions that still hold
// unspent outputs.
func (s *State) CountUTXOTransactions() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.utxo.CountTransactions()
}

// RebuildUTXO recomputes the unspent output index from the chain.
func (s *State) RebuildUTXO(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: RebuildUTXO: started: tip[%x]", s.tip)
	defer s.evHandler("state: RebuildUTXO: completed")

	return s.utxo.Rebuild(ctx, s.iterator())
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryMempool returns the pending transaction with the hex encoded id.
func (s *State) QueryMempool(txID string) (database.Tx, bool) {
	return s.mempool.Query(txID)
}

// RemoveFromMempool drops a pending transaction that can no longer be mined.
func (s *State) RemoveFromMempool(tx database.Tx) {
	s.mempool.Delete(tx)
}
