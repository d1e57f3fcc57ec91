// Package disk implements the database Storage interface on top of a LevelDB
// key value store kept on disk.
package disk

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Disk represents the LevelDB backed storage for the blockchain. This
// implements the database.Storage interface.
type Disk struct {
	once sync.Once
	db   *leveldb.DB
}

// New opens, creating if needed, the LevelDB database at the path.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("create db path: %w", err)
	}

	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb[%s]: %w: %w", dbPath, database.ErrStore, err)
	}

	return &Disk{db: db}, nil
}

// NewMem opens a LevelDB database that lives in memory. Nothing is written
// to disk which makes it useful for tests.
func NewMem() (*Disk, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb memory: %w: %w", database.ErrStore, err)
	}

	return &Disk{db: db}, nil
}

// Get retrieves the value stored under the key.
func (d *Disk) Get(key []byte) ([]byte, error) {
	value, err := d.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("get[%s]: %w: %w", key, database.ErrStore, err)
	}

	return value, nil
}

// Put stores the value under the key.
func (d *Disk) Put(key []byte, value []byte) error {
	if err := d.db.Put(key, value, nil); err != nil {
		return fmt.Errorf("put[%s]: %w: %w", key, database.ErrStore, err)
	}

	return nil
}

// Delete removes the key.
func (d *Disk) Delete(key []byte) error {
	if err := d.db.Delete(key, nil); err != nil {
		return fmt.Errorf("delete[%s]: %w: %w", key, database.ErrStore, err)
	}

	return nil
}

// ScanPrefix calls fn for every key that starts with the prefix in key
// order. Returning false from fn stops the scan. The slices handed to fn
// are only valid for the duration of the call.
func (d *Disk) ScanPrefix(prefix []byte, fn func(key []byte, value []byte) bool) error {
	iter := d.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	for iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}

	if err := iter.Error(); err != nil {
		return fmt.Errorf("scan[%s]: %w: %w", prefix, database.ErrStore, err)
	}

	return nil
}

// Write applies every operation of the batch atomically.
func (d *Disk) Write(batch *database.Batch) error {
	var b leveldb.Batch
	for _, op := range batch.Ops() {
		switch {
		case op.Delete:
			b.Delete(op.Key)
		default:
			b.Put(op.Key, op.Value)
		}
	}

	if err := d.db.Write(&b, nil); err != nil {
		return fmt.Errorf("write batch: %w: %w", database.ErrStore, err)
	}

	return nil
}

// Flush forces the journal to be synced to disk.
func (d *Disk) Flush() error {
	if err := d.db.Write(new(leveldb.Batch), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("flush: %w: %w", database.ErrStore, err)
	}

	return nil
}

// Close closes the database. Calling Close more than once is safe.
func (d *Disk) Close() error {
	var err error
	d.once.Do(func() {
		err = d.db.Close()
	})

	return err
}
