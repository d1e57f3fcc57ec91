// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"sort"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Mempool represents a cache of transactions waiting to be mined, keyed by
// the hex encoded transaction id.
type Mempool struct {
	pool map[string]database.Tx
	mu   sync.RWMutex
}

// New constructs a new mempool.
func New() *Mempool {
	return &Mempool{
		pool: make(map[string]database.Tx),
	}
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction from the mempool.
func (mp *Mempool) Upsert(tx database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[tx.IDHex()] = tx

	return len(mp.pool)
}

// Delete removed a transaction from the mempool.
func (mp *Mempool) Delete(tx database.Tx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, tx.IDHex())
}

// Query returns the transaction with the hex encoded id.
func (mp *Mempool) Query(txID string) (database.Tx, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	tx, exists := mp.pool[txID]
	return tx, exists
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.Tx)
}

// PickAll returns every transaction in the pool ordered by id.
func (mp *Mempool) PickAll() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	keys := make([]string, 0, len(mp.pool))
	for key := range mp.pool {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	txs := make([]database.Tx, len(keys))
	for i, key := range keys {
		txs[i] = mp.pool[key]
	}

	return txs
}
