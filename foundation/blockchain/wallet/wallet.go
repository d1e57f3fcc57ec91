// Package wallet manages the private keys held by a node or a user and the
// base58 addresses derived from them.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrWalletNotFound is returned when no key is held for an address.
var ErrWalletNotFound = errors.New("wallet not found")

const keyExtension = ".ecdsa"

// =============================================================================

// Wallet represents a single key pair.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
}

// New generates a new key pair.
func New() (Wallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return Wallet{}, err
	}

	return Wallet{PrivateKey: privateKey}, nil
}

// PublicKey returns the compressed public key carried by transaction inputs.
func (w Wallet) PublicKey() []byte {
	return signature.PublicKeyBytes(w.PrivateKey.PublicKey)
}

// PubKeyHash returns the hash identifying this wallet inside outputs.
func (w Wallet) PubKeyHash() []byte {
	return signature.HashPubKey(w.PublicKey())
}

// Address returns the base58 address for this wallet.
func (w Wallet) Address() string {
	return EncodeAddress(w.PubKeyHash())
}

// =============================================================================

// Wallets maintains the set of key files found in a folder. Each file is
// named after the address of the key it holds.
type Wallets struct {
	root    string
	mu      sync.RWMutex
	wallets map[string]Wallet
}

// Load reads every key file in the root folder. The folder is created when
// it doesn't exist.
func Load(root string) (*Wallets, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating wallet folder: %w", err)
	}

	ws := Wallets{
		root:    root,
		wallets: make(map[string]Wallet),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if filepath.Ext(fileName) != keyExtension {
			return nil
		}

		privateKey, err := crypto.LoadECDSA(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		w := Wallet{PrivateKey: privateKey}
		ws.wallets[w.Address()] = w

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ws, nil
}

// Create generates a new key, saves it to the wallet folder and returns
// its address.
func (ws *Wallets) Create() (string, error) {
	w, err := New()
	if err != nil {
		return "", err
	}

	address := w.Address()
	path := filepath.Join(ws.root, address+keyExtension)
	if err := crypto.SaveECDSA(path, w.PrivateKey); err != nil {
		return "", fmt.Errorf("saving key: %w", err)
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.wallets[address] = w

	return address, nil
}

// Lookup returns the wallet for the specified address.
func (ws *Wallets) Lookup(address string) (Wallet, error) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	w, exists := ws.wallets[strings.TrimSpace(address)]
	if !exists {
		return Wallet{}, fmt.Errorf("%w: %s", ErrWalletNotFound, address)
	}

	return w, nil
}

// Addresses returns the sorted list of addresses held.
func (ws *Wallets) Addresses() []string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	addrs := make([]string, 0, len(ws.wallets))
	for address := range ws.wallets {
		addrs = append(addrs, address)
	}
	sort.Strings(addrs)

	return addrs
}
