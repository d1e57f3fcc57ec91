package wallet

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// ErrInvalidAddress is returned when an address fails to decode or its
// checksum does not match.
var ErrInvalidAddress = errors.New("invalid address")

const (
	version        = byte(0x00)
	checksumLength = 4
	pubKeyHashLen  = 20
)

// =============================================================================

// EncodeAddress produces the base58 address for the pub-key-hash:
// base58(version || pubKeyHash || checksum).
func EncodeAddress(pubKeyHash []byte) string {
	payload := make([]byte, 0, 1+len(pubKeyHash)+checksumLength)
	payload = append(payload, version)
	payload = append(payload, pubKeyHash...)
	payload = append(payload, checksum(payload)...)

	return base58.Encode(payload)
}

// DecodeAddress validates the address and returns the pub-key-hash it
// carries.
func DecodeAddress(address string) ([]byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %s", ErrInvalidAddress, address, err)
	}

	if len(raw) != 1+pubKeyHashLen+checksumLength {
		return nil, fmt.Errorf("%w: %q: wrong length %d", ErrInvalidAddress, address, len(raw))
	}

	if raw[0] != version {
		return nil, fmt.Errorf("%w: %q: unknown version %d", ErrInvalidAddress, address, raw[0])
	}

	payload := raw[:len(raw)-checksumLength]
	sum := raw[len(raw)-checksumLength:]
	if !bytes.Equal(sum, checksum(payload)) {
		return nil, fmt.Errorf("%w: %q: checksum mismatch", ErrInvalidAddress, address)
	}

	return payload[1:], nil
}

// ValidateAddress reports whether the address decodes with a valid checksum.
func ValidateAddress(address string) bool {
	_, err := DecodeAddress(address)
	return err == nil
}

// checksum is the first four bytes of a double sha256 of the payload.
func checksum(payload []byte) []byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])

	return second[:checksumLength]
}
