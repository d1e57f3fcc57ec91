package pow_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/pow"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Target(t *testing.T) {
	type table struct {
		difficulty uint8
		exp        *big.Int
	}

	tt := []table{
		{difficulty: 1, exp: new(big.Int).Lsh(big.NewInt(1), 255)},
		{difficulty: 8, exp: new(big.Int).Lsh(big.NewInt(1), 248)},
		{difficulty: 255, exp: big.NewInt(2)},
	}

	t.Log("Given the need to compute the proof of work target.")
	{
		for testID, tst := range tt {
			got := pow.Target(tst.difficulty).ToBig()
			if got.Cmp(tst.exp) != 0 {
				t.Logf("\t\tTest %d:\tgot: %s", testID, got)
				t.Logf("\t\tTest %d:\texp: %s", testID, tst.exp)
				t.Fatalf("\t%s\tTest %d:\tShould get back 2^(256-%d).", failed, testID, tst.difficulty)
			}
			t.Logf("\t%s\tTest %d:\tShould get back 2^(256-%d).", success, testID, tst.difficulty)
		}
	}
}

func Test_MineAndValidate(t *testing.T) {
	prev := bytes.Repeat([]byte{0xAB}, 32)
	root := bytes.Repeat([]byte{0xCD}, 32)

	for _, difficulty := range []uint8{1, 4, 8, 12} {
		p, err := pow.New(prev, root, difficulty)
		if err != nil {
			t.Fatalf("Should be able to construct the puzzle: %s", err)
		}

		nonce, digest, err := p.Mine(context.Background(), nil)
		if err != nil {
			t.Fatalf("Should be able to mine at difficulty %d: %s", difficulty, err)
		}

		if nonce == 0 {
			t.Fatalf("Should start the nonce search at 1.")
		}

		if !p.Validate(nonce) {
			t.Fatalf("Should validate the mined nonce at difficulty %d.", difficulty)
		}

		if !bytes.Equal(p.Digest(nonce), digest) {
			t.Fatalf("Should get back the digest of the mined nonce.")
		}

		// Every nonce before the solution must fail.
		for n := uint32(1); n < nonce; n++ {
			if p.Validate(n) {
				t.Fatalf("Should stop at the first solving nonce, %d solves before %d.", n, nonce)
			}
		}
	}
}

func Test_ValidateMatchesInequality(t *testing.T) {
	prev := []byte("prev")
	root := []byte("root")

	for _, difficulty := range []uint8{1, 2, 3, 6} {
		p, err := pow.New(prev, root, difficulty)
		if err != nil {
			t.Fatalf("Should be able to construct the puzzle: %s", err)
		}

		target := new(big.Int).Lsh(big.NewInt(1), uint(256-int(difficulty)))
		for nonce := uint32(0); nonce < 500; nonce++ {
			digest := new(big.Int).SetBytes(p.Digest(nonce))
			exp := digest.Cmp(target) < 0
			if got := p.Validate(nonce); got != exp {
				t.Fatalf("Should validate iff digest < target, nonce %d difficulty %d: got %v exp %v", nonce, difficulty, got, exp)
			}
		}
	}
}

func Test_Preimage(t *testing.T) {
	p, err := pow.New([]byte{1, 2}, []byte{3}, 7)
	if err != nil {
		t.Fatalf("Should be able to construct the puzzle: %s", err)
	}

	exp := []byte{1, 2, 3, 0x00, 0x00, 0x01, 0x02, 7}
	if got := p.Preimage(258); !bytes.Equal(got, exp) {
		t.Logf("got: %v", got)
		t.Logf("exp: %v", exp)
		t.Fatalf("Should lay out prev || root || be32(nonce) || difficulty.")
	}
}

func Test_Cancel(t *testing.T) {
	p, err := pow.New([]byte("prev"), []byte("root"), 255)
	if err != nil {
		t.Fatalf("Should be able to construct the puzzle: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := p.Mine(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Should stop mining when cancelled, got %v", err)
	}
}

func Test_InvalidDifficulty(t *testing.T) {
	if _, err := pow.New(nil, nil, 0); !errors.Is(err, pow.ErrInvalidDifficulty) {
		t.Fatalf("Should reject a difficulty of zero, got %v", err)
	}
}
