// Package memory implements the database Storage interface using a map.
package memory

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
)

// Memory represents the storage implementation for reading and storing
// keys in memory. This implements the database.Storage interface.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New constructs an Memory value for use.
func New() *Memory {
	return &Memory{
		data: make(map[string][]byte),
	}
}

// Get retrieves the value stored under the key.
func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.data[string(key)]
	if !exists {
		return nil, database.ErrNotFound
	}

	return bytes.Clone(value), nil
}

// Put stores the value under the key.
func (m *Memory) Put(key []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[string(key)] = bytes.Clone(value)
	return nil
}

// Delete removes the key.
func (m *Memory) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, string(key))
	return nil
}

// ScanPrefix calls fn for every key that starts with the prefix in key
// order. Returning false from fn stops the scan.
func (m *Memory) ScanPrefix(prefix []byte, fn func(key []byte, value []byte) bool) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = bytes.Clone(m.data[k])
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if !fn([]byte(k), values[i]) {
			break
		}
	}

	return nil
}

// Write applies every operation of the batch under one lock.
func (m *Memory) Write(batch *database.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range batch.Ops() {
		switch {
		case op.Delete:
			delete(m.data, string(op.Key))
		default:
			m.data[string(op.Key)] = bytes.Clone(op.Value)
		}
	}

	return nil
}

// Flush in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Flush() error {
	return nil
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}
