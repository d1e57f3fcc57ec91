package database

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/merkle"
	"github.com/ardanlabs/utxochain/foundation/blockchain/pow"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block represents a group of transactions batched together and linked to
// its parent through the parent's hash.
type Block struct {
	TimeStamp    uint64        `json:"timestamp"`    // Time the block was mined in unix milliseconds.
	PrevHash     hexutil.Bytes `json:"prev_hash"`    // Hash of the parent block, empty for genesis.
	Hash         hexutil.Bytes `json:"hash"`         // Proof of work digest that solved the puzzle.
	Transactions []Tx          `json:"transactions"` // Transactions batched into this block.
	Nonce        uint32        `json:"nonce"`        // Value identified to solve the hash solution.
	Height       uint64        `json:"height"`       // Position of the block in the chain, genesis is 0.
}

// POWArgs represents the set of arguments required to run POW.
type POWArgs struct {
	PrevHash     []byte
	Height       uint64
	Transactions []Tx
	Difficulty   uint8
	EvHandler    func(v string, args ...any)
}

// POW constructs a new Block and performs the work to find a nonce that
// solves the cryptographic POW puzzle.
func POW(ctx context.Context, args POWArgs) (Block, error) {
	nb := Block{
		TimeStamp:    uint64(time.Now().UTC().UnixMilli()),
		PrevHash:     args.PrevHash,
		Transactions: args.Transactions,
		Height:       args.Height,
	}

	// Construct a merkle tree from the transaction for this block. The root
	// of this tree will be part of the block to be mined.
	root, err := nb.MerkleRoot()
	if err != nil {
		return Block{}, err
	}

	p, err := pow.New(nb.PrevHash, root, args.Difficulty)
	if err != nil {
		return Block{}, err
	}

	// Peform the proof of work mining operation.
	nonce, hash, err := p.Mine(ctx, args.EvHandler)
	if err != nil {
		return Block{}, err
	}

	nb.Nonce = nonce
	nb.Hash = hash

	return nb, nil
}

// MerkleRoot returns the root of the merkle tree built over the
// block's transactions.
func (b Block) MerkleRoot() ([]byte, error) {
	tree, err := merkle.NewTree(b.Transactions)
	if err != nil {
		return nil, fmt.Errorf("merkle tree: %w", err)
	}

	return tree.MerkleRoot, nil
}

// ValidatePOW recomputes the proof of work for the block and checks the
// stored nonce solves the puzzle and the stored hash is the digest.
func (b Block) ValidatePOW(difficulty uint8) error {
	root, err := b.MerkleRoot()
	if err != nil {
		return err
	}

	p, err := pow.New(b.PrevHash, root, difficulty)
	if err != nil {
		return err
	}

	if !p.Validate(b.Nonce) {
		return fmt.Errorf("block[%x] nonce[%d]: %w", []byte(b.Hash), b.Nonce, ErrInvalidPOW)
	}

	if !bytes.Equal(p.Digest(b.Nonce), b.Hash) {
		return fmt.Errorf("block[%x] hash does not match digest: %w", []byte(b.Hash), ErrInvalidPOW)
	}

	return nil
}

// IsGenesis reports whether the block starts the chain.
func (b Block) IsGenesis() bool {
	return len(b.PrevHash) == 0
}

// Encode returns the canonical encoding of the block.
func (b Block) Encode() ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode block: %w", err)
	}

	return data, nil
}

// DecodeBlock decodes a block produced by Encode.
func DecodeBlock(data []byte) (Block, error) {
	var b Block
	if err := json.Unmarshal(data, &b); err != nil {
		return Block{}, fmt.Errorf("decode block: %w", err)
	}

	return b, nil
}

// String implements the fmt.Stringer interface for printing the chain.
func (b Block) String() string {
	var s strings.Builder

	fmt.Fprintf(&s, "============ Block %x ============\n", []byte(b.Hash))
	fmt.Fprintf(&s, "Height: %d\n", b.Height)
	fmt.Fprintf(&s, "Prev. block: %x\n", []byte(b.PrevHash))
	fmt.Fprintf(&s, "Nonce: %d\n", b.Nonce)
	fmt.Fprintf(&s, "Created at: %s\n", time.UnixMilli(int64(b.TimeStamp)).UTC().Format(time.RFC3339))
	for _, tx := range b.Transactions {
		s.WriteString(tx.String())
	}

	return s.String()
}
