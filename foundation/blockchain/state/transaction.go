package state

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
)

// Set of errors returned when a transaction is checked against the ledger.
var (
	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrSpentOutput    = errors.New("input spends an unknown or spent output")
	ErrDuplicateInput = errors.New("input spends the same output twice")
	ErrOutputsExceed  = errors.New("outputs exceed inputs")
	ErrUnexpectedMint = errors.New("coinbase transaction not allowed")
)

// =============================================================================

// NewTransaction builds and signs a transaction moving the amount from the
// wallet to the address. Any value left over from the selected outputs is
// returned to the wallet as change.
func (s *State) NewTransaction(w wallet.Wallet, to string, amount uint64) (database.Tx, error) {
	if amount == 0 {
		return database.Tx{}, ErrInvalidAmount
	}

	toOutput, err := database.NewTxOutput(amount, to)
	if err != nil {
		return database.Tx{}, fmt.Errorf("to address: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	from := w.PubKeyHash()
	accumulated, spendable, err := s.utxo.FindSpendableOutputs(from, amount)
	if err != nil {
		return database.Tx{}, err
	}

	txIDs := make([]string, 0, len(spendable))
	for txID := range spendable {
		txIDs = append(txIDs, txID)
	}
	sort.Strings(txIDs)

	pubKey := signature.PublicKeyBytes(w.PrivateKey.PublicKey)

	var inputs []database.TxInput
	for _, txID := range txIDs {
		id, err := hex.DecodeString(txID)
		if err != nil {
			return database.Tx{}, err
		}

		for _, idx := range spendable[txID] {
			inputs = append(inputs, database.TxInput{TxID: id, OutIdx: idx, PubKey: pubKey})
		}
	}

	outputs := []database.TxOutput{toOutput}
	if accumulated > amount {
		outputs = append(outputs, database.TxOutput{Amount: accumulated - amount, PubKeyHash: from})
	}

	tx := database.Tx{
		Inputs:  inputs,
		Outputs: outputs,
	}

	if err := tx.SetID(); err != nil {
		return database.Tx{}, err
	}

	prevTXs, err := s.findTransactions(tx.Inputs)
	if err != nil {
		return database.Tx{}, err
	}

	if err := tx.Sign(w.PrivateKey, prevTXs); err != nil {
		return database.Tx{}, err
	}

	s.evHandler("state: NewTransaction: tx[%x]: from[%s]: to[%s]: amount[%d]: change[%d]", []byte(tx.ID), w.Address(), to, amount, accumulated-amount)

	return tx, nil
}

// Send builds a transaction and mines it into a new block on this node.
func (s *State) Send(ctx context.Context, w wallet.Wallet, to string, amount uint64) (database.Tx, database.Block, error) {
	tx, err := s.NewTransaction(w, to, amount)
	if err != nil {
		return database.Tx{}, database.Block{}, err
	}

	block, err := s.MineBlock(ctx, []database.Tx{tx})
	if err != nil {
		return database.Tx{}, database.Block{}, err
	}

	return tx, block, nil
}

// FindTransaction walks the chain looking for the transaction with the
// specified id.
func (s *State) FindTransaction(id []byte) (database.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found, err := s.findTransactions([]database.TxInput{{TxID: id}})
	if err != nil {
		if errors.Is(err, database.ErrUnknownPriorTransaction) {
			return database.Tx{}, fmt.Errorf("tx[%x]: %w", id, database.ErrNotFound)
		}
		return database.Tx{}, err
	}

	return found[hex.EncodeToString(id)], nil
}

// VerifyTransaction checks the transaction is signed by the owners of the
// outputs it spends and that those outputs are still unspent.
func (s *State) VerifyTransaction(tx database.Tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.IsCoinbase() {
		return fmt.Errorf("tx[%x]: %w", []byte(tx.ID), ErrUnexpectedMint)
	}

	if err := s.verifyTransaction(tx); err != nil {
		return err
	}

	return s.validateSpend(tx)
}

// UpsertNodeTransaction accepts a transaction from a peer or a wallet for
// inclusion in a future block.
func (s *State) UpsertNodeTransaction(tx database.Tx) error {
	if err := s.VerifyTransaction(tx); err != nil {
		return err
	}

	n := s.mempool.Upsert(tx)
	s.evHandler("state: UpsertNodeTransaction: tx[%x]: mempool[%d]", []byte(tx.ID), n)

	if s.Worker != nil && s.minerAddress != "" && n >= int(s.genesis.MinTxPerBlock) {
		s.Worker.SignalStartMining()
	}

	return nil
}

// =============================================================================

// verifyTransaction performs the checks of VerifyTransaction. The caller
// must hold the lock.
func (s *State) verifyTransaction(tx database.Tx) error {
	if tx.IsCoinbase() {
		return nil
	}

	prevTXs, err := s.findTransactions(tx.Inputs)
	if err != nil {
		return err
	}

	if !tx.Verify(prevTXs) {
		return fmt.Errorf("tx[%x]: %w", []byte(tx.ID), database.ErrInvalidSignature)
	}

	return nil
}

// validateSpend checks every input against the unspent output index and
// that the outputs do not create value. The caller must hold the lock.
func (s *State) validateSpend(tx database.Tx) error {
	if tx.IsCoinbase() {
		return nil
	}

	seen := make(map[string]bool, len(tx.Inputs))
	var in uint64

	for _, input := range tx.Inputs {
		key := fmt.Sprintf("%x:%d", []byte(input.TxID), input.OutIdx)
		if seen[key] {
			return fmt.Errorf("tx[%x]: input[%s]: %w", []byte(tx.ID), key, ErrDuplicateInput)
		}
		seen[key] = true

		out, exists, err := s.utxo.Output(input.TxID, input.OutIdx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("tx[%x]: input[%s]: %w", []byte(tx.ID), key, ErrSpentOutput)
		}

		if in+out.Amount < in {
			return fmt.Errorf("tx[%x]: input amount overflow: %w", []byte(tx.ID), ErrOutputsExceed)
		}
		in += out.Amount
	}

	var out uint64
	for _, output := range tx.Outputs {
		if out+output.Amount < out {
			return fmt.Errorf("tx[%x]: output amount overflow: %w", []byte(tx.ID), ErrOutputsExceed)
		}
		out += output.Amount
	}

	if out > in {
		return fmt.Errorf("tx[%x]: in[%d]: out[%d]: %w", []byte(tx.ID), in, out, ErrOutputsExceed)
	}

	return nil
}

// findTransactions walks the chain once collecting the transactions
// referenced by the inputs. The caller must hold the lock.
func (s *State) findTransactions(inputs []database.TxInput) (map[string]database.Tx, error) {
	want := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		want[hex.EncodeToString(in.TxID)] = true
	}

	found := make(map[string]database.Tx, len(want))

	iter := s.iterator()
	for !iter.Done() && len(found) < len(want) {
		block, err := iter.Next()
		if err != nil {
			return nil, err
		}

		for _, tx := range block.Transactions {
			if id := tx.IDHex(); want[id] {
				found[id] = tx
			}
		}
	}

	for id := range want {
		if _, exists := found[id]; !exists {
			return nil, fmt.Errorf("tx[%s]: %w", id, database.ErrUnknownPriorTransaction)
		}
	}

	return found, nil
}
