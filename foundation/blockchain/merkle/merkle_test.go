// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.

package merkle_test

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"errors"
	"hash"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/merkle"
)

// Data uses the sha256 hashing algorithm for the merkle tree.
type Data struct {
	x string
}

// Hash hashes the values using sha256.
func (d Data) Hash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(d.x)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Equals tests for equality of two piece of data.
func (d Data) Equals(other Data) bool {
	return d.x == other.x
}

// =============================================================================

func Test_NewTreeWithDefault(t *testing.T) {
	for i := 0; i < len(table); i++ {
		tree, err := merkle.NewTree(table[i].data)
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", table[i].testCaseId, err)
		}
		if !bytes.Equal(tree.MerkleRoot, table[i].expectedHash) {
			t.Errorf("[case:%d] error: expected hash equal to %v got %v", table[i].testCaseId, table[i].expectedHash, tree.MerkleRoot)
		}
	}
}

func Test_NewTreeWithHashingStrategy(t *testing.T) {
	data := table[0].data

	def, err := merkle.NewTree(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tree, err := merkle.NewTree(data, merkle.WithHashStrategy[Data](md5.New))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(tree.MerkleRoot) != md5.Size {
		t.Fatalf("expected a root of %d bytes got %d", md5.Size, len(tree.MerkleRoot))
	}

	if bytes.Equal(def.MerkleRoot, tree.MerkleRoot) {
		t.Fatalf("expected a different root with a different strategy")
	}
}

func Test_RebuildTree(t *testing.T) {
	for i := 0; i < len(table); i++ {
		tree, err := merkle.NewTree(table[i].data, merkle.WithHashStrategy[Data](table[i].hashStrategy))
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", table[i].testCaseId, err)
		}
		if err := tree.Rebuild(); err != nil {
			t.Errorf("[case:%d] error: unexpected error:  %v", table[i].testCaseId, err)
		}
		if !bytes.Equal(tree.MerkleRoot, table[i].expectedHash) {
			t.Errorf("[case:%d] error: expected hash equal to %v got %v", table[i].testCaseId, table[i].expectedHash, tree.MerkleRoot)
		}
	}
}

func Test_RebuildTreeWith(t *testing.T) {
	for i := 0; i < len(table)-1; i++ {
		tree, err := merkle.NewTree(table[i].data, merkle.WithHashStrategy[Data](table[i].hashStrategy))
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", table[i].testCaseId, err)
		}
		if err := tree.Generate(table[i+1].data); err != nil {
			t.Errorf("[case:%d] error: unexpected error: %v", table[i].testCaseId, err)
		}
		if !bytes.Equal(tree.MerkleRoot, table[i+1].expectedHash) {
			t.Errorf("[case:%d] error: expected hash equal to %v got %v", table[i].testCaseId, table[i+1].expectedHash, tree.MerkleRoot)
		}
	}
}

func Test_VerifyTree(t *testing.T) {
	for i := 0; i < len(table); i++ {
		tree, err := merkle.NewTree(table[i].data, merkle.WithHashStrategy[Data](table[i].hashStrategy))
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", table[i].testCaseId, err)
		}
		if err := tree.Verify(); err != nil {
			t.Errorf("[case:%d] error: expected tree to be valid: %v", table[i].testCaseId, err)
		}
		tree.MerkleRoot = []byte{1}
		if err := tree.Verify(); err == nil {
			t.Errorf("[case:%d] error: expected tree to be invalid", table[i].testCaseId)
		}
	}
}

func Test_VerifyData(t *testing.T) {
	for i := 0; i < len(table); i++ {
		tree, err := merkle.NewTree(table[i].data, merkle.WithHashStrategy[Data](table[i].hashStrategy))
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", table[i].testCaseId, err)
		}
		for _, d := range table[i].data {
			if err := tree.VerifyData(d); err != nil {
				t.Errorf("[case:%d] error: expected valid content %q: %v", table[i].testCaseId, d.x, err)
			}
		}

		if err := tree.VerifyData(table[i].notInContents); err == nil {
			t.Errorf("[case:%d] error: expected invalid content", table[i].testCaseId)
		}

		tree.MerkleRoot = []byte{1}
		if err := tree.VerifyData(table[i].data[0]); err == nil {
			t.Errorf("[case:%d] error: expected invalid content", table[i].testCaseId)
		}
	}
}

func Test_String(t *testing.T) {
	for i := 0; i < len(table); i++ {
		tree, err := merkle.NewTree(table[i].data, merkle.WithHashStrategy[Data](table[i].hashStrategy))
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", table[i].testCaseId, err)
		}
		if tree.String() == "" {
			t.Errorf("[case:%d] error: expected not empty string", table[i].testCaseId)
		}
	}
}

func Test_MerklePath(t *testing.T) {
	for i := 0; i < len(table); i++ {
		tree, err := merkle.NewTree(table[i].data, merkle.WithHashStrategy[Data](table[i].hashStrategy))
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", table[i].testCaseId, err)
		}
		for j := 0; j < len(table[i].data); j++ {
			merklePath, index, err := tree.Proof(table[i].data[j])
			if err != nil {
				t.Fatalf("[case:%d] error: proof error: %v", table[i].testCaseId, err)
			}

			hash, err := table[i].data[j].Hash()
			if err != nil {
				t.Fatalf("[case:%d] error: hash error: %v", table[i].testCaseId, err)
			}
			for k := 0; k < len(merklePath); k++ {
				if index[k] == 1 {
					hash = append(hash, merklePath[k]...)
				} else {
					hash = append(append([]byte{}, merklePath[k]...), hash...)
				}
				hash, err = calHash(hash, table[i].hashStrategy)
				if err != nil {
					t.Errorf("[case:%d] error: calHash error: %v", table[i].testCaseId, err)
				}
			}
			if !bytes.Equal(tree.MerkleRoot, hash) {
				t.Errorf("[case:%d] error: expected hash equal to %v got %v", table[i].testCaseId, hash, tree.MerkleRoot)
			}
		}
	}
}

func Test_SingleLeaf(t *testing.T) {
	d := Data{x: "coinbase"}

	tree, err := merkle.NewTree([]Data{d})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exp, _ := d.Hash()
	if !bytes.Equal(tree.MerkleRoot, exp) {
		t.Fatalf("expected a single leaf to be its own root")
	}
}

func Test_OddPadding(t *testing.T) {
	odd, err := merkle.NewTree([]Data{{x: "a"}, {x: "b"}, {x: "c"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	even, err := merkle.NewTree([]Data{{x: "a"}, {x: "b"}, {x: "c"}, {x: "c"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(odd.MerkleRoot, even.MerkleRoot) {
		t.Fatalf("expected the last element to be duplicated before pairing")
	}

	if len(odd.Values()) != 3 {
		t.Fatalf("expected the duplicate not to show up in the values, got %d", len(odd.Values()))
	}
}

func Test_Avalanche(t *testing.T) {
	base := []Data{{x: "tx-one"}, {x: "tx-two"}, {x: "tx-three"}}

	tree, err := merkle.NewTree(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := range base {
		changed := append([]Data(nil), base...)
		changed[i] = Data{x: changed[i].x[:len(changed[i].x)-1] + "X"}

		other, err := merkle.NewTree(changed)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if bytes.Equal(tree.MerkleRoot, other.MerkleRoot) {
			t.Errorf("expected the root to change when element %d changes", i)
		}
	}

	swapped := []Data{base[1], base[0], base[2]}
	other, err := merkle.NewTree(swapped)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bytes.Equal(tree.MerkleRoot, other.MerkleRoot) {
		t.Errorf("expected the root to depend on the order of the elements")
	}
}

func Test_Empty(t *testing.T) {
	if _, err := merkle.NewTree([]Data{}); !errors.Is(err, merkle.ErrNoContent) {
		t.Fatalf("expected an error for no content, got %v", err)
	}
}

// =============================================================================

func calHash(hash []byte, hashStrategy func() hash.Hash) ([]byte, error) {
	h := hashStrategy()
	if _, err := h.Write(hash); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// =============================================================================

var table = []struct {
	testCaseId    int
	hashStrategy  func() hash.Hash
	data          []Data
	expectedHash  []byte
	notInContents Data
}{
	{
		testCaseId:   1,
		hashStrategy: sha256.New,
		data: []Data{
			{x: "Hello"}, {x: "Hi"}, {x: "Hey"}, {x: "Hola"},
		},
		notInContents: Data{x: "NotInTestTable"},
		expectedHash:  []byte{95, 48, 204, 128, 19, 59, 147, 148, 21, 110, 36, 178, 51, 240, 196, 190, 50, 178, 78, 68, 187, 51, 129, 240, 44, 123, 165, 38, 25, 208, 254, 188},
	},
	{
		testCaseId:   2,
		hashStrategy: sha256.New,
		data: []Data{
			{x: "Hello"}, {x: "Hi"}, {x: "Hey"},
		},
		notInContents: Data{x: "NotInTestTable"},
		expectedHash:  []byte{189, 214, 55, 197, 35, 237, 92, 14, 171, 121, 43, 152, 109, 177, 136, 80, 194, 57, 162, 226, 56, 2, 179, 106, 255, 38, 187, 104, 251, 63, 224, 8},
	},
	{
		testCaseId:   3,
		hashStrategy: sha256.New,
		data: []Data{
			{x: "Hello"}, {x: "Hi"}, {x: "Hey"}, {x: "Greetings"}, {x: "Hola"},
		},
		notInContents: Data{x: "NotInTestTable"},
		expectedHash:  []byte{46, 216, 115, 174, 13, 210, 55, 39, 119, 197, 122, 104, 93, 144, 112, 131, 202, 151, 41, 14, 80, 143, 21, 71, 140, 169, 139, 173, 50, 37, 235, 188},
	},
	{
		testCaseId:   4,
		hashStrategy: sha256.New,
		data: []Data{
			{x: "123"}, {x: "234"}, {x: "345"}, {x: "456"}, {x: "1123"}, {x: "2234"}, {x: "3345"}, {x: "4456"},
		},
		notInContents: Data{x: "NotInTestTable"},
		expectedHash:  []byte{30, 76, 61, 40, 106, 173, 169, 183, 149, 2, 157, 246, 162, 218, 4, 70, 153, 148, 62, 162, 90, 24, 173, 250, 41, 149, 173, 121, 141, 187, 146, 43},
	},
	{
		testCaseId:   5,
		hashStrategy: sha256.New,
		data: []Data{
			{x: "123"}, {x: "234"}, {x: "345"}, {x: "456"}, {x: "1123"}, {x: "2234"}, {x: "3345"}, {x: "4456"}, {x: "5567"},
		},
		notInContents: Data{x: "NotInTestTable"},
		expectedHash:  []byte{143, 37, 161, 192, 69, 241, 248, 56, 169, 87, 79, 145, 37, 155, 51, 159, 209, 129, 164, 140, 130, 167, 16, 182, 133, 205, 126, 55, 237, 188, 89, 236},
	},
}
