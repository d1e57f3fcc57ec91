package public

import (
	"encoding/hex"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/merkle"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ardanlabs/utxochain/foundation/nameservice"
)

type status struct {
	Host         string   `json:"host"`
	MinerAddress string   `json:"miner_address,omitempty"`
	Height       uint64   `json:"height"`
	LatestHash   string   `json:"latest_hash"`
	Mempool      int      `json:"mempool"`
	KnownPeers   []string `json:"known_peers"`
}

type balance struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Balance uint64 `json:"balance"`
}

type input struct {
	TxID   string `json:"tx_id"`
	OutIdx uint32 `json:"out_idx"`
}

type output struct {
	Index   uint32 `json:"index"`
	Amount  uint64 `json:"amount"`
	Address string `json:"address"`
	Name    string `json:"name"`
}

type tx struct {
	ID       string   `json:"id"`
	Coinbase bool     `json:"coinbase"`
	Inputs   []input  `json:"inputs,omitempty"`
	Outputs  []output `json:"outputs"`
}

type block struct {
	Height       uint64 `json:"height"`
	Hash         string `json:"hash"`
	PrevHash     string `json:"prev_hash"`
	TimeStamp    uint64 `json:"timestamp"`
	Nonce        uint32 `json:"nonce"`
	MerkleRoot   string `json:"merkle_root"`
	Transactions []tx   `json:"transactions"`
}

type txProof struct {
	BlockHash  string   `json:"block_hash"`
	TxID       string   `json:"tx_id"`
	MerkleRoot string   `json:"merkle_root"`
	Proof      []string `json:"proof"`
	Order      []int64  `json:"order"`
	Verified   bool     `json:"verified"`
}

type utxoRecord struct {
	TxID    string   `json:"tx_id"`
	Outputs []output `json:"outputs"`
}

// SendRequest is the document accepted to move value from a wallet held by
// the node.
type SendRequest struct {
	From   string `json:"from" validate:"required,address"`
	To     string `json:"to" validate:"required,address"`
	Amount uint64 `json:"amount" validate:"gt=0"`
}

type sendResponse struct {
	Status string `json:"status"`
	TxID   string `json:"tx_id"`
}

// =============================================================================

func toTx(t database.Tx, ns *nameservice.NameService) tx {
	v := tx{
		ID:       t.IDHex(),
		Coinbase: t.IsCoinbase(),
		Outputs:  make([]output, len(t.Outputs)),
	}

	if !v.Coinbase {
		for _, in := range t.Inputs {
			v.Inputs = append(v.Inputs, input{TxID: hex.EncodeToString(in.TxID), OutIdx: in.OutIdx})
		}
	}

	for i, out := range t.Outputs {
		v.Outputs[i] = toOutput(uint32(i), out, ns)
	}

	return v
}

func toBlock(b database.Block, ns *nameservice.NameService) (block, error) {
	tree, err := merkle.NewTree(b.Transactions)
	if err != nil {
		return block{}, err
	}

	v := block{
		Height:       b.Height,
		Hash:         hex.EncodeToString(b.Hash),
		PrevHash:     hex.EncodeToString(b.PrevHash),
		TimeStamp:    b.TimeStamp,
		Nonce:        b.Nonce,
		MerkleRoot:   tree.RootHex(),
		Transactions: make([]tx, len(b.Transactions)),
	}

	for i, t := range b.Transactions {
		v.Transactions[i] = toTx(t, ns)
	}

	return v, nil
}

// toTxProof builds the merkle path proving the transaction is part of the
// block and checks it against the root.
func toTxProof(b database.Block, t database.Tx) (txProof, error) {
	tree, err := merkle.NewTree(b.Transactions)
	if err != nil {
		return txProof{}, err
	}

	hashes, order, err := tree.Proof(t)
	if err != nil {
		return txProof{}, err
	}

	v := txProof{
		BlockHash:  hex.EncodeToString(b.Hash),
		TxID:       t.IDHex(),
		MerkleRoot: tree.RootHex(),
		Proof:      make([]string, len(hashes)),
		Order:      order,
		Verified:   tree.VerifyData(t) == nil,
	}

	for i, h := range hashes {
		v.Proof[i] = hex.EncodeToString(h)
	}

	return v, nil
}

func toOutput(idx uint32, out database.TxOutput, ns *nameservice.NameService) output {
	address := wallet.EncodeAddress(out.PubKeyHash)

	return output{
		Index:   idx,
		Amount:  out.Amount,
		Address: address,
		Name:    ns.Lookup(address),
	}
}
