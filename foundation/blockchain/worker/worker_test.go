package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wire"
	"github.com/ardanlabs/utxochain/foundation/blockchain/worker"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	invs [][]byte
}

func (r *recorder) BroadcastInv(kind wire.Kind, ids [][]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if kind == wire.KindBlock {
		r.invs = append(r.invs, ids...)
	}
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.invs)
}

func newLedger(t *testing.T, founder, miner wallet.Wallet) *state.State {
	gen := genesis.Default()
	gen.Difficulty = 6

	st, err := state.Init(context.Background(), state.Config{
		Storage:      memory.New(),
		Genesis:      gen,
		MinerAddress: miner.Address(),
	}, founder.Address())
	require.NoError(t, err)

	return st
}

func newWallet(t *testing.T) wallet.Wallet {
	w, err := wallet.New()
	require.NoError(t, err)
	return w
}

// =============================================================================

func Test_MinesMempool(t *testing.T) {
	a, b, m := newWallet(t), newWallet(t), newWallet(t)

	st := newLedger(t, a, m)
	defer st.Shutdown()

	rec := &recorder{}
	worker.Run(st, rec, nil)

	tx, err := st.NewTransaction(a, b.Address(), 30)
	require.NoError(t, err)
	require.NoError(t, st.UpsertNodeTransaction(tx))

	require.Eventually(t, func() bool {
		return st.Height() == 1 && st.QueryMempoolLength() == 0
	}, 10*time.Second, 10*time.Millisecond, "should mine the pending transaction")

	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 10*time.Millisecond, "should announce the block")

	block, err := st.LatestBlock()
	require.NoError(t, err)
	require.Len(t, block.Transactions, 2)
	require.True(t, block.Transactions[0].IsCoinbase())
	require.Equal(t, []byte(block.Hash), rec.invs[0])

	balA, err := st.Balance(a.Address())
	require.NoError(t, err)
	balB, err := st.Balance(b.Address())
	require.NoError(t, err)
	balM, err := st.Balance(m.Address())
	require.NoError(t, err)

	require.Equal(t, uint64(70), balA)
	require.Equal(t, uint64(30), balB)
	require.Equal(t, uint64(100), balM)
}

func Test_DropsDoubleSpend(t *testing.T) {
	a, b, m := newWallet(t), newWallet(t), newWallet(t)

	st := newLedger(t, a, m)
	defer st.Shutdown()

	// Both transactions spend the founder's genesis output.
	tx1, err := st.NewTransaction(a, b.Address(), 10)
	require.NoError(t, err)
	tx2, err := st.NewTransaction(a, b.Address(), 20)
	require.NoError(t, err)

	require.NoError(t, st.UpsertNodeTransaction(tx1))
	require.NoError(t, st.UpsertNodeTransaction(tx2))
	require.Equal(t, 2, st.QueryMempoolLength())

	worker.Run(st, nil, nil)

	require.Eventually(t, func() bool {
		return st.Height() == 1 && st.QueryMempoolLength() == 0
	}, 10*time.Second, 10*time.Millisecond, "should mine one of the transactions")

	block, err := st.LatestBlock()
	require.NoError(t, err)
	require.Len(t, block.Transactions, 2)

	balB, err := st.Balance(b.Address())
	require.NoError(t, err)
	require.Contains(t, []uint64{10, 20}, balB)
}

func Test_DropsSpentByChain(t *testing.T) {
	a, b, m := newWallet(t), newWallet(t), newWallet(t)

	st := newLedger(t, a, m)
	defer st.Shutdown()

	pending, err := st.NewTransaction(a, b.Address(), 10)
	require.NoError(t, err)
	require.NoError(t, st.UpsertNodeTransaction(pending))

	// Mine a conflicting spend so the pending transaction now spends an
	// output that is gone from the index.
	_, _, err = st.Send(context.Background(), a, m.Address(), 20)
	require.NoError(t, err)
	require.Equal(t, uint64(1), st.Height())
	require.ErrorIs(t, st.VerifyTransaction(pending), state.ErrSpentOutput)

	worker.Run(st, nil, nil)

	require.Eventually(t, func() bool {
		return st.QueryMempoolLength() == 0
	}, 10*time.Second, 10*time.Millisecond, "should drop the transaction spending a spent output")

	require.Equal(t, uint64(1), st.Height(), "should not mine a block without valid transactions")

	balA, err := st.Balance(a.Address())
	require.NoError(t, err)
	balB, err := st.Balance(b.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(80), balA)
	require.Equal(t, uint64(0), balB)
}

func Test_ShutdownIdle(t *testing.T) {
	a, m := newWallet(t), newWallet(t)

	st := newLedger(t, a, m)

	w := worker.Run(st, nil, nil)
	w.Shutdown()
	w.Shutdown()

	require.NoError(t, st.Shutdown())
	require.Equal(t, uint64(0), st.Height())
}
