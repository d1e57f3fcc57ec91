// Package utxo maintains the index of unspent transaction outputs. The index
// is derived from the chain and can be rebuilt from it at any time.
package utxo

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// ErrInsufficientFunds is returned when the spendable outputs of an owner
// do not cover the requested amount.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Set provides access to the unspent output index kept in storage. Set does
// not synchronize access, the ledger serializes every call.
type Set struct {
	storage database.Storage
}

// New constructs a set over the specified storage.
func New(storage database.Storage) *Set {
	return &Set{storage: storage}
}

// =============================================================================

// FindSpendableOutputs accumulates outputs locked to the pub-key-hash until
// the amount is covered. The outputs are returned keyed by the hex encoded
// id of the transaction holding them.
func (s *Set) FindSpendableOutputs(pubKeyHash []byte, amount uint64) (uint64, map[string][]uint32, error) {
	unspent := make(map[string][]uint32)
	var accumulated uint64
	var decodeErr error

	fn := func(key []byte, value []byte) bool {
		txID, outs, err := decodeRecord(key, value)
		if err != nil {
			decodeErr = err
			return false
		}

		for _, idx := range sortedIndexes(outs) {
			out := outs.Outputs[idx]
			if !out.IsLockedWithKey(pubKeyHash) {
				continue
			}

			accumulated += out.Amount
			unspent[txID] = append(unspent[txID], idx)

			if accumulated >= amount {
				return false
			}
		}

		return true
	}

	if err := s.storage.ScanPrefix(database.UTXOPrefix(), fn); err != nil {
		return 0, nil, err
	}
	if decodeErr != nil {
		return 0, nil, decodeErr
	}

	if accumulated < amount {
		return accumulated, nil, fmt.Errorf("have %d, need %d: %w", accumulated, amount, ErrInsufficientFunds)
	}

	return accumulated, unspent, nil
}

// FindUTXO returns every unspent output locked to the pub-key-hash.
func (s *Set) FindUTXO(pubKeyHash []byte) ([]database.TxOutput, error) {
	var found []database.TxOutput

	err := s.scan(func(txID string, outs database.TxOutputs) {
		for _, idx := range sortedIndexes(outs) {
			if out := outs.Outputs[idx]; out.IsLockedWithKey(pubKeyHash) {
				found = append(found, out)
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// Balance returns the sum of the unspent outputs locked to the
// pub-key-hash.
func (s *Set) Balance(pubKeyHash []byte) (uint64, error) {
	outs, err := s.FindUTXO(pubKeyHash)
	if err != nil {
		return 0, err
	}

	var balance uint64
	for _, out := range outs {
		balance += out.Amount
	}

	return balance, nil
}

// Output returns the unspent output at the index of the transaction. The
// boolean is false when the output is not in the index.
func (s *Set) Output(txID []byte, idx uint32) (database.TxOutput, bool, error) {
	data, err := s.storage.Get(database.UTXOKey(txID))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.TxOutput{}, false, nil
		}
		return database.TxOutput{}, false, err
	}

	outs, err := database.DecodeTxOutputs(data)
	if err != nil {
		return database.TxOutput{}, false, err
	}

	out, exists := outs.Outputs[idx]
	return out, exists, nil
}

// All returns every record in the index keyed by the hex encoded
// transaction id.
func (s *Set) All() (map[string]database.TxOutputs, error) {
	all := make(map[string]database.TxOutputs)

	err := s.scan(func(txID string, outs database.TxOutputs) {
		all[txID] = outs
	})
	if err != nil {
		return nil, err
	}

	return all, nil
}

// CountTransactions returns the number of transactions that still hold at
// least one unspent output.
func (s *Set) CountTransactions() (int, error) {
	var count int
	fn := func(key []byte, value []byte) bool {
		count++
		return true
	}

	if err := s.storage.ScanPrefix(database.UTXOPrefix(), fn); err != nil {
		return 0, err
	}

	return count, nil
}

// Update applies a block to the index. Outputs spent by the block's inputs
// are removed and the outputs the block creates are added. Every change is
// written in one atomic batch.
func (s *Set) Update(block database.Block) error {
	pending := make(map[string]*database.TxOutputs)

	load := func(txID []byte) (*database.TxOutputs, error) {
		key := hex.EncodeToString(txID)
		if outs, exists := pending[key]; exists {
			return outs, nil
		}

		data, err := s.storage.Get(database.UTXOKey(txID))
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				pending[key] = nil
				return nil, nil
			}
			return nil, err
		}

		outs, err := database.DecodeTxOutputs(data)
		if err != nil {
			return nil, err
		}

		pending[key] = &outs
		return &outs, nil
	}

	for _, tx := range block.Transactions {
		if !tx.IsCoinbase() {
			for _, in := range tx.Inputs {
				outs, err := load(in.TxID)
				if err != nil {
					return err
				}

				if outs == nil {
					continue
				}

				delete(outs.Outputs, in.OutIdx)
			}
		}

		outs := database.TxOutputs{Outputs: make(map[uint32]database.TxOutput, len(tx.Outputs))}
		for i, out := range tx.Outputs {
			outs.Outputs[uint32(i)] = out
		}
		pending[tx.IDHex()] = &outs
	}

	var batch database.Batch
	for txIDHex, outs := range pending {
		txID, err := hex.DecodeString(txIDHex)
		if err != nil {
			return err
		}

		if err := stage(&batch, txID, outs); err != nil {
			return err
		}
	}

	return s.storage.Write(&batch)
}

// Rebuild discards the index and recomputes it by walking the chain from
// the tip back to genesis. The old index is replaced in one atomic batch.
func (s *Set) Rebuild(ctx context.Context, iter database.Iterator) error {
	unspent, err := Scan(ctx, iter)
	if err != nil {
		return err
	}

	var batch database.Batch
	fn := func(key []byte, value []byte) bool {
		batch.Delete(append([]byte(nil), key...))
		return true
	}
	if err := s.storage.ScanPrefix(database.UTXOPrefix(), fn); err != nil {
		return err
	}

	for txIDHex, outs := range unspent {
		txID, err := hex.DecodeString(txIDHex)
		if err != nil {
			return err
		}

		if err := stage(&batch, txID, &outs); err != nil {
			return err
		}
	}

	return s.storage.Write(&batch)
}

// Scan walks the chain from the tip back to genesis and returns the
// outputs no later transaction spends, keyed by the hex encoded id of the
// transaction holding them. Transactions with nothing left are omitted.
func Scan(ctx context.Context, iter database.Iterator) (map[string]database.TxOutputs, error) {
	unspent := make(map[string]database.TxOutputs)
	spent := make(map[string]map[uint32]bool)

	for !iter.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		block, err := iter.Next()
		if err != nil {
			return nil, err
		}

		// Walk the transactions backwards so a spend inside the block is
		// seen before the output it consumes.
		for i := len(block.Transactions) - 1; i >= 0; i-- {
			tx := block.Transactions[i]
			txID := tx.IDHex()

			outs := database.TxOutputs{Outputs: make(map[uint32]database.TxOutput)}
			for i, out := range tx.Outputs {
				if spent[txID][uint32(i)] {
					continue
				}
				outs.Outputs[uint32(i)] = out
			}
			if len(outs.Outputs) > 0 {
				unspent[txID] = outs
			}

			if tx.IsCoinbase() {
				continue
			}

			for _, in := range tx.Inputs {
				inID := hex.EncodeToString(in.TxID)
				if spent[inID] == nil {
					spent[inID] = make(map[uint32]bool)
				}
				spent[inID][in.OutIdx] = true
			}
		}
	}

	return unspent, nil
}

// =============================================================================

// stage records the write of a record, or its removal when no outputs
// are left.
func stage(batch *database.Batch, txID []byte, outs *database.TxOutputs) error {
	if outs == nil {
		return nil
	}

	key := database.UTXOKey(txID)
	if len(outs.Outputs) == 0 {
		batch.Delete(key)
		return nil
	}

	data, err := outs.Encode()
	if err != nil {
		return err
	}
	batch.Put(key, data)

	return nil
}

// scan decodes every record in the index.
func (s *Set) scan(fn func(txID string, outs database.TxOutputs)) error {
	var decodeErr error

	f := func(key []byte, value []byte) bool {
		txID, outs, err := decodeRecord(key, value)
		if err != nil {
			decodeErr = err
			return false
		}

		fn(txID, outs)
		return true
	}

	if err := s.storage.ScanPrefix(database.UTXOPrefix(), f); err != nil {
		return err
	}

	return decodeErr
}

// decodeRecord turns a stored key value pair into a record.
func decodeRecord(key []byte, value []byte) (string, database.TxOutputs, error) {
	txID, err := database.TxIDFromUTXOKey(key)
	if err != nil {
		return "", database.TxOutputs{}, err
	}

	outs, err := database.DecodeTxOutputs(value)
	if err != nil {
		return "", database.TxOutputs{}, err
	}

	return hex.EncodeToString(txID), outs, nil
}

// sortedIndexes returns the output positions of a record in order so
// selection is deterministic.
func sortedIndexes(outs database.TxOutputs) []uint32 {
	idxs := make([]uint32, 0, len(outs.Outputs))
	for idx := range outs.Outputs {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	return idxs
}
