package worker

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wire"
)

// miningOperations handles mining.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation takes the transactions from the mempool, mines them
// into a new block paying the reward to the miner and announces the block.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	minerAddress := w.state.RetrieveMinerAddress()
	if minerAddress == "" {
		w.evHandler("worker: runMiningOperation: MINING: node is not a miner")
		return
	}

	// Make sure there are enough transactions in the mempool.
	length := w.state.QueryMempoolLength()
	if length < int(w.state.RetrieveGenesis().MinTxPerBlock) {
		w.evHandler("worker: runMiningOperation: MINING: not enough transactions to mine: Txs[%d]", length)
		return
	}

	// Create a context so mining can be cancelled by a shutdown.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	block, err := w.mine(ctx, minerAddress)
	if err != nil {
		if ctx.Err() != nil {
			w.evHandler("worker: runMiningOperation: MINING: CANCELLED")
			return
		}
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
		return
	}

	w.evHandler("worker: runMiningOperation: MINING: block[%x]: height[%d]: txs[%d]", []byte(block.Hash), block.Height, len(block.Transactions))

	if w.broadcaster != nil {
		w.broadcaster.BroadcastInv(wire.KindBlock, [][]byte{block.Hash})
	}
}

// mine selects the pending transactions that still verify and do not spend
// the same output twice, and mines them behind a coinbase for the miner.
func (w *Worker) mine(ctx context.Context, minerAddress string) (database.Block, error) {
	pkh, err := wallet.DecodeAddress(minerAddress)
	if err != nil {
		return database.Block{}, fmt.Errorf("miner address: %w", err)
	}

	spent := make(map[string]bool)
	var txs []database.Tx

	for _, tx := range w.state.RetrieveMempool() {
		if err := w.state.VerifyTransaction(tx); err != nil {
			w.evHandler("worker: mine: dropping tx[%x]: %s", []byte(tx.ID), err)
			w.state.RemoveFromMempool(tx)
			continue
		}

		if conflicts(spent, tx) {
			w.evHandler("worker: mine: dropping tx[%x]: double spend", []byte(tx.ID))
			w.state.RemoveFromMempool(tx)
			continue
		}

		txs = append(txs, tx)
	}

	if len(txs) == 0 {
		return database.Block{}, fmt.Errorf("no valid transactions to mine")
	}

	coinbase, err := database.NewCoinbaseTx(pkh, w.state.RetrieveGenesis().MiningReward)
	if err != nil {
		return database.Block{}, err
	}

	return w.state.MineBlock(ctx, append([]database.Tx{coinbase}, txs...))
}

// conflicts reports whether the transaction spends an output already spent
// by a selected transaction, and marks its outputs as spent otherwise.
func conflicts(spent map[string]bool, tx database.Tx) bool {
	keys := make([]string, len(tx.Inputs))
	for i, in := range tx.Inputs {
		keys[i] = fmt.Sprintf("%s:%d", hex.EncodeToString(in.TxID), in.OutIdx)
		if spent[keys[i]] {
			return true
		}
	}

	for _, key := range keys {
		spent[key] = true
	}

	return false
}
