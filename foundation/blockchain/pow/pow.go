// Package pow implements the proof of work puzzle used to mint blocks. A
// nonce solves the puzzle when the sha256 digest of the block preimage,
// read as a big endian 256 bit number, is less than 2^(256-difficulty).
package pow

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/holiman/uint256"
)

// ErrConsensusExhausted is returned when every 32 bit nonce has been tried
// without finding a solution.
var ErrConsensusExhausted = errors.New("proof of work nonce space exhausted")

// ErrInvalidDifficulty is returned for a difficulty outside of 1-255.
var ErrInvalidDifficulty = errors.New("difficulty must be between 1 and 255")

// EventHandler defines a function that is called when events
// occur in the processing of mining.
type EventHandler func(v string, args ...any)

// attemptsPerReport is how often mining progress is reported.
const attemptsPerReport = 1_000_000

// =============================================================================

// ProofOfWork holds the inputs of the puzzle for one block.
type ProofOfWork struct {
	prevHash   []byte
	merkleRoot []byte
	difficulty uint8
	target     *uint256.Int
}

// New constructs the puzzle for a block with the specified parent hash and
// merkle root.
func New(prevHash []byte, merkleRoot []byte, difficulty uint8) (ProofOfWork, error) {
	if difficulty == 0 {
		return ProofOfWork{}, ErrInvalidDifficulty
	}

	p := ProofOfWork{
		prevHash:   prevHash,
		merkleRoot: merkleRoot,
		difficulty: difficulty,
		target:     Target(difficulty),
	}

	return p, nil
}

// Target returns 2^(256-difficulty).
func Target(difficulty uint8) *uint256.Int {
	return new(uint256.Int).Lsh(uint256.NewInt(1), uint(256-int(difficulty)))
}

// Preimage returns prev_hash || merkle_root || big_endian(nonce) || difficulty.
func (p ProofOfWork) Preimage(nonce uint32) []byte {
	data := make([]byte, 0, len(p.prevHash)+len(p.merkleRoot)+5)
	data = append(data, p.prevHash...)
	data = append(data, p.merkleRoot...)
	data = binary.BigEndian.AppendUint32(data, nonce)
	data = append(data, p.difficulty)

	return data
}

// Digest returns the sha256 of the preimage for the nonce.
func (p ProofOfWork) Digest(nonce uint32) []byte {
	sum := sha256.Sum256(p.Preimage(nonce))
	return sum[:]
}

// IsSolved checks the digest is below the target.
func (p ProofOfWork) IsSolved(digest []byte) bool {
	if len(digest) != 32 {
		return false
	}

	return new(uint256.Int).SetBytes32(digest).Lt(p.target)
}

// Validate recomputes the digest for the nonce and checks it against
// the target.
func (p ProofOfWork) Validate(nonce uint32) bool {
	return p.IsSolved(p.Digest(nonce))
}

// Mine searches the nonce space starting at 1 for the first nonce that solves
// the puzzle. Mining can be cancelled through the context.
func (p ProofOfWork) Mine(ctx context.Context, ev EventHandler) (uint32, []byte, error) {
	if ev == nil {
		ev = func(string, ...any) {}
	}

	ev("pow: Mine: MINING: started: difficulty[%d]", p.difficulty)
	defer ev("pow: Mine: MINING: completed")

	var attempts uint64
	for nonce := uint32(1); nonce < math.MaxUint32; nonce++ {
		attempts++
		if attempts%attemptsPerReport == 0 {
			ev("pow: Mine: MINING: attempts[%d]", attempts)
		}

		// Did we timeout trying to solve the problem.
		if attempts%1024 == 0 && ctx.Err() != nil {
			ev("pow: Mine: MINING: CANCELLED")
			return 0, nil, ctx.Err()
		}

		digest := p.Digest(nonce)
		if !p.IsSolved(digest) {
			continue
		}

		ev("pow: Mine: MINING: SOLVED: nonce[%d]: hash[%x]: attempts[%d]", nonce, digest, attempts)

		return nonce, digest, nil
	}

	return 0, nil, fmt.Errorf("difficulty %d: %w", p.difficulty, ErrConsensusExhausted)
}
