// Package database defines the data model of the blockchain and the key value
// storage contract used to persist blocks, the chain tip and the unspent
// transaction output index.
package database

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Set of errors owned by the data layer.
var (
	ErrNotFound                = errors.New("not found")
	ErrStore                   = errors.New("store failure")
	ErrUnknownPriorTransaction = errors.New("unknown prior transaction")
	ErrInvalidSignature        = errors.New("invalid transaction signature")
	ErrInvalidPOW              = errors.New("invalid proof of work")
)

// =============================================================================

// Storage interface represents the behavior required to be implemented by any
// package providing support for persisting the blockchain. Get must return
// ErrNotFound when the key is absent.
type Storage interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	ScanPrefix(prefix []byte, fn func(key []byte, value []byte) bool) error
	Write(batch *Batch) error
	Flush() error
	Close() error
}

// Iterator interface represents the behavior required to be implemented by any
// package providing support to iterate over the blocks.
type Iterator interface {
	Next() (Block, error)
	Done() bool
}

// =============================================================================

// BatchOp is a single put or delete recorded in a batch.
type BatchOp struct {
	Key    []byte
	Value  []byte
	Delete bool
}

// Batch collects a set of writes that must be applied atomically.
type Batch struct {
	ops []BatchOp
}

// Put records a write of the value under the key.
func (b *Batch) Put(key []byte, value []byte) {
	b.ops = append(b.ops, BatchOp{Key: key, Value: value})
}

// Delete records the removal of the key.
func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, BatchOp{Key: key, Delete: true})
}

// Ops returns the recorded operations in the order they were added.
func (b *Batch) Ops() []BatchOp {
	return b.ops
}

// Len returns the number of recorded operations.
func (b *Batch) Len() int {
	return len(b.ops)
}

// =============================================================================

// Key layout of the store.
const (
	lastHashKey = "lsh"
	utxoPrefix  = "utxo-"
)

// LastHashKey returns the key holding the hash of the chain tip.
func LastHashKey() []byte {
	return []byte(lastHashKey)
}

// BlockKey returns the key a block is stored under.
func BlockKey(hash []byte) []byte {
	return []byte(hex.EncodeToString(hash))
}

// UTXOPrefix returns the prefix shared by every unspent output record.
func UTXOPrefix() []byte {
	return []byte(utxoPrefix)
}

// UTXOKey returns the key the unspent outputs of a transaction are
// stored under.
func UTXOKey(txID []byte) []byte {
	return []byte(utxoPrefix + hex.EncodeToString(txID))
}

// TxIDFromUTXOKey extracts the transaction id from an unspent output key.
func TxIDFromUTXOKey(key []byte) ([]byte, error) {
	s, found := strings.CutPrefix(string(key), utxoPrefix)
	if !found {
		return nil, fmt.Errorf("key %q is not a utxo key", key)
	}

	id, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode utxo key %q: %w", key, err)
	}

	return id, nil
}
