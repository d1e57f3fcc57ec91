package database

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// coinbaseEntropy is the number of random bytes placed in a coinbase input
// so two coinbases paying the same address never share an id.
const coinbaseEntropy = 20

// =============================================================================

// TxInput references an output of a prior transaction being spent.
type TxInput struct {
	TxID      hexutil.Bytes `json:"txid"`      // Id of the transaction holding the output.
	OutIdx    uint32        `json:"out_idx"`   // Position of the output in that transaction.
	Signature hexutil.Bytes `json:"signature"` // [R || S] signature of the spender.
	PubKey    hexutil.Bytes `json:"pub_key"`   // Compressed public key of the spender.
}

// UsesKey reports whether the input was created by the owner of the
// specified pub-key-hash.
func (in TxInput) UsesKey(pubKeyHash []byte) bool {
	return bytes.Equal(signature.HashPubKey(in.PubKey), pubKeyHash)
}

// TxOutput carries an amount locked to a pub-key-hash.
type TxOutput struct {
	Amount     uint64        `json:"amount"`
	PubKeyHash hexutil.Bytes `json:"pub_key_hash"`
}

// NewTxOutput constructs an output locked to the specified address.
func NewTxOutput(amount uint64, address string) (TxOutput, error) {
	pkh, err := wallet.DecodeAddress(address)
	if err != nil {
		return TxOutput{}, err
	}

	return TxOutput{Amount: amount, PubKeyHash: pkh}, nil
}

// IsLockedWithKey reports whether the output can be spent by the owner of
// the pub-key-hash.
func (out TxOutput) IsLockedWithKey(pubKeyHash []byte) bool {
	return bytes.Equal(out.PubKeyHash, pubKeyHash)
}

// TxOutputs is the record kept in the unspent output index for one
// transaction. Outputs are keyed by their position in the transaction so
// removing one never shifts the others.
type TxOutputs struct {
	Outputs map[uint32]TxOutput `json:"outputs"`
}

// Encode returns the canonical encoding of the record.
func (outs TxOutputs) Encode() ([]byte, error) {
	return json.Marshal(outs)
}

// DecodeTxOutputs decodes a record produced by Encode.
func DecodeTxOutputs(data []byte) (TxOutputs, error) {
	var outs TxOutputs
	if err := json.Unmarshal(data, &outs); err != nil {
		return TxOutputs{}, fmt.Errorf("decode outputs: %w", err)
	}

	if outs.Outputs == nil {
		outs.Outputs = make(map[uint32]TxOutput)
	}

	return outs, nil
}

// =============================================================================

// Tx is a transfer of value that consumes prior outputs and creates
// new ones.
type Tx struct {
	ID      hexutil.Bytes `json:"id"`
	Inputs  []TxInput     `json:"inputs"`
	Outputs []TxOutput    `json:"outputs"`
}

// NewCoinbaseTx constructs the transaction that mints the reward for a
// block to the owner of the pub-key-hash.
func NewCoinbaseTx(to []byte, reward uint64) (Tx, error) {
	entropy := make([]byte, coinbaseEntropy)
	if _, err := rand.Read(entropy); err != nil {
		return Tx{}, fmt.Errorf("coinbase entropy: %w", err)
	}

	tx := Tx{
		Inputs: []TxInput{
			{OutIdx: 0, PubKey: entropy},
		},
		Outputs: []TxOutput{
			{Amount: reward, PubKeyHash: to},
		},
	}

	if err := tx.SetID(); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// IsCoinbase reports whether the transaction mints new value.
func (tx Tx) IsCoinbase() bool {
	return len(tx.Inputs) == 1 && len(tx.Inputs[0].TxID) == 0 && tx.Inputs[0].OutIdx == 0
}

// SetID computes the id of the transaction as the hash of its encoding
// with the id cleared. It must be called once the inputs and outputs are
// final and before the inputs are signed.
func (tx *Tx) SetID() error {
	cpy := *tx
	cpy.ID = nil

	data, err := cpy.Encode()
	if err != nil {
		return err
	}

	tx.ID = signature.Hash(data)

	return nil
}

// IDHex returns the id as a hex string, the form used to key prior
// transaction maps.
func (tx Tx) IDHex() string {
	return hex.EncodeToString(tx.ID)
}

// TrimmedCopy returns a copy of the transaction with every input signature
// and public key removed. This is the form that gets signed.
func (tx Tx) TrimmedCopy() Tx {
	inputs := make([]TxInput, len(tx.Inputs))
	for i, in := range tx.Inputs {
		inputs[i] = TxInput{TxID: in.TxID, OutIdx: in.OutIdx}
	}

	outputs := make([]TxOutput, len(tx.Outputs))
	copy(outputs, tx.Outputs)

	return Tx{
		ID:      tx.ID,
		Inputs:  inputs,
		Outputs: outputs,
	}
}

// Sign signs every input of the transaction with the private key. The
// prior transactions referenced by the inputs must be provided keyed by
// their hex encoded id.
func (tx *Tx) Sign(privateKey *ecdsa.PrivateKey, prevTXs map[string]Tx) error {
	if tx.IsCoinbase() {
		return nil
	}

	if err := checkPriorTransactions(*tx, prevTXs); err != nil {
		return err
	}

	trimmed := tx.TrimmedCopy()
	for i, in := range tx.Inputs {
		prev := prevTXs[hex.EncodeToString(in.TxID)]

		digest, err := trimmed.inputDigest(i, prev.Outputs[in.OutIdx].PubKeyHash)
		if err != nil {
			return err
		}

		sig, err := signature.Sign(digest, privateKey)
		if err != nil {
			return fmt.Errorf("sign input %d: %w", i, err)
		}

		tx.Inputs[i].Signature = sig
	}

	return nil
}

// Verify reports whether every input carries a valid signature from the
// owner of the output it spends. Coinbase transactions always verify.
func (tx Tx) Verify(prevTXs map[string]Tx) bool {
	if tx.IsCoinbase() {
		return true
	}

	if checkPriorTransactions(tx, prevTXs) != nil {
		return false
	}

	trimmed := tx.TrimmedCopy()
	for i, in := range tx.Inputs {
		prevOut := prevTXs[hex.EncodeToString(in.TxID)].Outputs[in.OutIdx]

		if !in.UsesKey(prevOut.PubKeyHash) {
			return false
		}

		digest, err := trimmed.inputDigest(i, prevOut.PubKeyHash)
		if err != nil {
			return false
		}

		if !signature.Verify(in.PubKey, digest, in.Signature) {
			return false
		}
	}

	return true
}

// Hash implements the merkle Hashable interface. The leaf of a transaction
// is the hash of its full encoding.
func (tx Tx) Hash() ([]byte, error) {
	data, err := tx.Encode()
	if err != nil {
		return nil, err
	}

	return signature.Hash(data), nil
}

// Equals implements the merkle Hashable interface.
func (tx Tx) Equals(otherTx Tx) bool {
	return bytes.Equal(tx.ID, otherTx.ID)
}

// Encode returns the canonical encoding of the transaction.
func (tx Tx) Encode() ([]byte, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, fmt.Errorf("encode tx: %w", err)
	}

	return data, nil
}

// DecodeTx decodes a transaction produced by Encode.
func DecodeTx(data []byte) (Tx, error) {
	var tx Tx
	if err := json.Unmarshal(data, &tx); err != nil {
		return Tx{}, fmt.Errorf("decode tx: %w", err)
	}

	return tx, nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "--- Transaction %x:\n", []byte(tx.ID))
	for i, in := range tx.Inputs {
		fmt.Fprintf(&b, "     Input %d:\n", i)
		fmt.Fprintf(&b, "       TXID:      %x\n", []byte(in.TxID))
		fmt.Fprintf(&b, "       Out:       %d\n", in.OutIdx)
		fmt.Fprintf(&b, "       Signature: %x\n", []byte(in.Signature))
		fmt.Fprintf(&b, "       PubKey:    %x\n", []byte(in.PubKey))
	}
	for i, out := range tx.Outputs {
		fmt.Fprintf(&b, "     Output %d:\n", i)
		fmt.Fprintf(&b, "       Value:  %d\n", out.Amount)
		fmt.Fprintf(&b, "       Script: %x\n", []byte(out.PubKeyHash))
	}

	return b.String()
}

// =============================================================================

// inputDigest places the pub-key-hash of the referenced output into the
// input being signed, hashes the encoding and clears the field again.
func (tx Tx) inputDigest(idx int, pubKeyHash []byte) ([]byte, error) {
	tx.Inputs[idx].PubKey = pubKeyHash
	defer func() { tx.Inputs[idx].PubKey = nil }()

	data, err := tx.Encode()
	if err != nil {
		return nil, err
	}

	return signature.Hash(data), nil
}

// checkPriorTransactions makes sure every input references a known output.
func checkPriorTransactions(tx Tx, prevTXs map[string]Tx) error {
	for i, in := range tx.Inputs {
		prev, exists := prevTXs[hex.EncodeToString(in.TxID)]
		if !exists || len(prev.ID) == 0 {
			return fmt.Errorf("input %d txid[%x]: %w", i, []byte(in.TxID), ErrUnknownPriorTransaction)
		}

		if int(in.OutIdx) >= len(prev.Outputs) {
			return fmt.Errorf("input %d txid[%x] out[%d]: %w", i, []byte(in.TxID), in.OutIdx, ErrUnknownPriorTransaction)
		}
	}

	return nil
}
