package signature_test

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	digest := signature.Hash([]byte("Bill"))

	sig, err := signature.Sign(digest, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	if len(sig) != signature.SignatureLength {
		t.Logf("got: %d", len(sig))
		t.Logf("exp: %d", signature.SignatureLength)
		t.Fatalf("Should get back a signature of the right length.")
	}

	pub := signature.PublicKeyBytes(pk.PublicKey)
	if !signature.Verify(pub, digest, sig) {
		t.Fatalf("Should be able to verify the signature.")
	}

	if !signature.Verify(crypto.FromECDSAPub(&pk.PublicKey), digest, sig) {
		t.Fatalf("Should be able to verify the signature with the uncompressed key.")
	}
}

func Test_SignatureTamper(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}
	pub := signature.PublicKeyBytes(pk.PublicKey)

	digest := signature.Hash([]byte("Bill"))
	sig, err := signature.Sign(digest, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	for i := range sig {
		bad := bytes.Clone(sig)
		bad[i] ^= 0x01
		if signature.Verify(pub, digest, bad) {
			t.Fatalf("Should not verify a signature with byte %d flipped.", i)
		}
	}

	other := signature.Hash([]byte("Jill"))
	if signature.Verify(pub, other, sig) {
		t.Fatalf("Should not verify the signature against a different digest.")
	}
}

func Test_Hash(t *testing.T) {
	const exp = "0x9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

	h := signature.HashHex([]byte("test"))
	if h != exp {
		t.Logf("got: %s", h)
		t.Logf("exp: %s", exp)
		t.Fatalf("Should get back the right hash.")
	}

	joined := signature.Hash([]byte("te"), []byte("st"))
	if hex.EncodeToString(joined) != exp[2:] {
		t.Fatalf("Should hash the concatenation of the parts.")
	}
}

func Test_HashPubKey(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	pkh := signature.HashPubKey(signature.PublicKeyBytes(pk.PublicKey))
	if len(pkh) != 20 {
		t.Fatalf("Should get back a 20 byte pub-key-hash, got %d.", len(pkh))
	}

	again := signature.HashPubKey(signature.PublicKeyBytes(pk.PublicKey))
	if !bytes.Equal(pkh, again) {
		t.Fatalf("Should get back the same pub-key-hash twice.")
	}
}
