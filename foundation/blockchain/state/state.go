// Package state is the core API for the blockchain and implements all the
// business rules and processing. A single mutex serializes every access to
// the chain and the unspent output index.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/mempool"
	"github.com/ardanlabs/utxochain/foundation/blockchain/peer"
	"github.com/ardanlabs/utxochain/foundation/blockchain/utxo"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
)

// Set of errors returned when opening a ledger.
var (
	ErrLedgerExists = errors.New("ledger already exists")
	ErrNoLedger     = errors.New("no existing ledger found, create one first")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
}

// =============================================================================

// Config represents the configuration required to open the ledger.
type Config struct {
	Storage      database.Storage
	Genesis      genesis.Genesis
	Host         string
	MinerAddress string
	KnownPeers   *peer.PeerSet
	EvHandler    EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	host         string
	minerAddress string
	evHandler    EventHandler
	genesis      genesis.Genesis

	storage    database.Storage
	utxo       *utxo.Set
	mempool    *mempool.Mempool
	knownPeers *peer.PeerSet

	tip    []byte
	height uint64

	shutdownOnce sync.Once

	Worker Worker
}

// Init creates a brand new ledger. The genesis block pays the mining reward
// to the founder address. ErrLedgerExists is returned when the storage
// already holds a ledger.
func Init(ctx context.Context, cfg Config, founderAddress string) (*State, error) {
	founder, err := wallet.DecodeAddress(founderAddress)
	if err != nil {
		return nil, fmt.Errorf("founder address: %w", err)
	}

	s := newState(cfg)

	switch _, err := s.storage.Get(database.LastHashKey()); {
	case err == nil:
		return nil, ErrLedgerExists
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	s.evHandler("state: Init: mining genesis block: founder[%s]", founderAddress)

	coinbase, err := database.NewCoinbaseTx(founder, s.genesis.MiningReward)
	if err != nil {
		return nil, err
	}

	block, err := database.POW(ctx, database.POWArgs{
		Height:       0,
		Transactions: []database.Tx{coinbase},
		Difficulty:   s.genesis.Difficulty,
		EvHandler:    s.evHandler,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistBlock(block, true); err != nil {
		return nil, err
	}

	if err := s.utxo.Rebuild(ctx, s.iterator()); err != nil {
		return nil, err
	}

	s.evHandler("state: Init: genesis block[%x]", []byte(block.Hash))

	return s, nil
}

// Continue opens an existing ledger. ErrNoLedger is returned when the
// storage holds no ledger.
func Continue(cfg Config) (*State, error) {
	s := newState(cfg)

	tip, err := s.storage.Get(database.LastHashKey())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrNoLedger
		}
		return nil, err
	}

	block, err := s.queryBlock(tip)
	if err != nil {
		return nil, fmt.Errorf("load tip block[%x]: %w", tip, err)
	}

	s.tip = tip
	s.height = block.Height

	s.evHandler("state: Continue: tip[%x]: height[%d]", tip, block.Height)

	return s, nil
}

// newState applies the configuration to a new State value.
func newState(cfg Config) *State {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	gen := cfg.Genesis
	if gen.Difficulty == 0 {
		gen = genesis.Default()
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &State{
		host:         cfg.Host,
		minerAddress: cfg.MinerAddress,
		evHandler:    ev,
		genesis:      gen,
		storage:      cfg.Storage,
		utxo:         utxo.New(cfg.Storage),
		mempool:      mempool.New(),
		knownPeers:   knownPeers,
	}
}

// Shutdown cleanly brings the node down. The storage is flushed and closed
// exactly once.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	var err error
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		if ferr := s.storage.Flush(); ferr != nil {
			err = ferr
		}

		if cerr := s.storage.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})

	return err
}

// =============================================================================

// persistBlock writes the block and, when requested, moves the chain tip to
// it in one batch. The caller must hold the lock.
func (s *State) persistBlock(block database.Block, advance bool) error {
	data, err := block.Encode()
	if err != nil {
		return err
	}

	var batch database.Batch
	batch.Put(database.BlockKey(block.Hash), data)
	if advance {
		batch.Put(database.LastHashKey(), block.Hash)
	}

	if err := s.storage.Write(&batch); err != nil {
		return err
	}

	if advance {
		s.tip = append([]byte(nil), block.Hash...)
		s.height = block.Height
	}

	return nil
}
