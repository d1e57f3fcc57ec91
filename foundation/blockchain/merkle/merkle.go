// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, turned into generics and
// flattened into a level by level array of hashes.

// Package merkle provides an implementation of a merkle tree for validation
// support for the blockchain.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrNoContent is returned when a tree is requested for an empty list.
var ErrNoContent = errors.New("cannot construct tree with no content")

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree that uses data of some type T that exhibits the
// behavior defined by the Hashable constraint. The tree is stored as a list of
// levels. Levels[0] holds the leaf hashes and the last level holds the root.
// Every level except the root holds an even number of hashes, an odd level
// gets its last hash duplicated before pairing.
type Tree[T Hashable[T]] struct {
	Levels       [][][]byte
	MerkleRoot   []byte
	values       []T
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a new merkle tree that uses data of some type T that
// exhibits the behavior defined by the Hashable interface.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the levels of the tree from the specified data. If the
// tree has been generated previously, the tree is re-generated from scratch.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		return ErrNoContent
	}

	leafs := make([][]byte, 0, len(values)+1)
	for _, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}
		leafs = append(leafs, hash)
	}

	levels := [][][]byte{leafs}
	for level := leafs; len(level) > 1; {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
			levels[len(levels)-1] = level
		}

		next := make([][]byte, 0, len(level)/2+1)
		for i := 0; i < len(level); i += 2 {
			h, err := t.hashPair(level[i], level[i+1])
			if err != nil {
				return err
			}
			next = append(next, h)
		}

		levels = append(levels, next)
		level = next
	}

	t.values = append([]T(nil), values...)
	t.Levels = levels
	t.MerkleRoot = levels[len(levels)-1][0]

	return nil
}

// Rebuild is a helper function that will rebuild the tree reusing only the
// data that it currently holds.
func (t *Tree[T]) Rebuild() error {
	return t.Generate(t.values)
}

// Proof returns the set of hashes and the order of concatenating those
// hashes for proving a value is in the tree. An order of 0 says the proof
// hash comes first, an order of 1 says it comes second.
func (t *Tree[T]) Proof(data T) ([][]byte, []int64, error) {
	idx := t.indexOf(data)
	if idx < 0 {
		return nil, nil, errors.New("unable to find data in tree")
	}

	var merkleProof [][]byte
	var order []int64

	for l := 0; l < len(t.Levels)-1; l++ {
		sibling := idx ^ 1
		merkleProof = append(merkleProof, t.Levels[l][sibling])

		switch {
		case idx%2 == 0:
			order = append(order, 1) // right sibling, concat second.
		default:
			order = append(order, 0) // left sibling, concat first.
		}

		idx /= 2
	}

	return merkleProof, order, nil
}

// Verify recalculates every level of the tree from the values and returns an
// error if the resulting root doesn't match the stored root.
func (t *Tree[T]) Verify() error {
	calc := Tree[T]{hashStrategy: t.hashStrategy}
	if err := calc.Generate(t.values); err != nil {
		return err
	}

	if !bytes.Equal(t.MerkleRoot, calc.MerkleRoot) {
		return errors.New("root hash invalid")
	}

	return nil
}

// VerifyData indicates whether a given piece of data is in the tree and if the
// hashes on its path are valid. The root calculated on the critical path for
// the data must match the stored merkle root.
func (t *Tree[T]) VerifyData(data T) error {
	proof, order, err := t.Proof(data)
	if err != nil {
		return err
	}

	hash, err := data.Hash()
	if err != nil {
		return err
	}

	for i, p := range proof {
		switch order[i] {
		case 0:
			hash, err = t.hashPair(p, hash)
		default:
			hash, err = t.hashPair(hash, p)
		}
		if err != nil {
			return err
		}
	}

	if !bytes.Equal(hash, t.MerkleRoot) {
		return errors.New("merkle root is not equivalent to the merkle root calculated on the critical path")
	}

	return nil
}

// Values returns a slice of the values stored in the tree in their
// original order.
func (t *Tree[T]) Values() []T {
	return append([]T(nil), t.values...)
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// String returns a string representation of the tree, one line per level.
func (t *Tree[T]) String() string {
	var b bytes.Buffer
	for i, level := range t.Levels {
		fmt.Fprintf(&b, "%d:", i)
		for _, h := range level {
			fmt.Fprintf(&b, " %x", h)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the Merkle tree. I don't want this to happen.
// Use the Values function to return a slice that can be marshaled.
func (t *Tree[T]) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}

// =============================================================================

// hashPair returns H(left || right) using the tree's hash strategy.
func (t *Tree[T]) hashPair(left []byte, right []byte) ([]byte, error) {
	h := t.hashStrategy()

	chash := make([]byte, 0, len(left)+len(right))
	chash = append(chash, left...)
	chash = append(chash, right...)
	if _, err := h.Write(chash); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// indexOf returns the leaf position of the data or -1.
func (t *Tree[T]) indexOf(data T) int {
	for i, v := range t.values {
		if v.Equals(data) {
			return i
		}
	}

	return -1
}
