// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160"
)

// SignatureLength is the size of a signature stored in a transaction input.
// It is the [R || S] form without the recovery id.
const SignatureLength = crypto.RecoveryIDOffset

// ErrInvalidSignature is returned when a freshly produced signature does
// not verify against the key that produced it.
var ErrInvalidSignature = errors.New("invalid signature")

// =============================================================================

// Hash returns the sha256 digest of the concatenation of the specified data.
func Hash(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}

	return h.Sum(nil)
}

// HashHex returns the sha256 digest of the data as a hex encoded string.
func HashHex(data ...[]byte) string {
	return hexutil.Encode(Hash(data...))
}

// Sign uses the specified private key to sign the 32 byte digest. The
// signature is returned in the [R || S] format.
func Sign(digest []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {

	// Sign the digest with the private key to produce a signature.
	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign digest: %w", err)
	}

	// Extract the public key from the data and the signature.
	publicKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return nil, fmt.Errorf("recover public key: %w", err)
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), digest, rs) {
		return nil, ErrInvalidSignature
	}

	return rs, nil
}

// Verify reports whether the [R || S] signature was produced over the digest
// by the owner of the specified public key. The public key can be in the
// compressed or uncompressed form.
func Verify(publicKey []byte, digest []byte, sig []byte) bool {
	if len(sig) != SignatureLength || len(digest) != 32 || len(publicKey) == 0 {
		return false
	}

	return crypto.VerifySignature(publicKey, digest, sig)
}

// PublicKeyBytes returns the 33 byte compressed form of the public key.
// This is the form carried inside transaction inputs.
func PublicKeyBytes(publicKey ecdsa.PublicKey) []byte {
	return crypto.CompressPubkey(&publicKey)
}

// HashPubKey derives the pub-key-hash used to identify the owner of an
// output: RIPEMD160(SHA256(publicKey)).
func HashPubKey(publicKey []byte) []byte {
	sha := sha256.Sum256(publicKey)

	h := ripemd160.New()
	h.Write(sha[:])

	return h.Sum(nil)
}
