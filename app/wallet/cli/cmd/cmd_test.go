package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/utxochain/foundation/blockchain/utxo"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_CommandErrorsReleaseLedger(t *testing.T) {
	root := t.TempDir()

	dbRoot = root
	nodeID = "test"
	walletPath = filepath.Join(root, "wallets")
	genesisPath = filepath.Join(root, "genesis.json")
	verbose = false

	gen := `{"date":"2024-01-01T00:00:00Z","difficulty":6,"mining_reward":100,"min_tx_per_block":1}`
	if err := os.WriteFile(genesisPath, []byte(gen), 0644); err != nil {
		t.Fatalf("Should be able to write the genesis file: %s", err)
	}

	t.Log("Given the need to release the ledger when a command fails.")
	{
		for i := 0; i < 2; i++ {
			if err := generateRun(); err != nil {
				t.Fatalf("\t%s\tShould be able to generate a wallet: %s", failed, err)
			}
		}

		ws, err := wallet.Load(walletPath)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load the wallets: %s", failed, err)
		}
		addrs := ws.Addresses()
		if len(addrs) != 2 {
			t.Fatalf("\t%s\tShould hold two wallets, got %d.", failed, len(addrs))
		}
		t.Logf("\t%s\tShould be able to generate two wallets.", success)

		createAddress = addrs[0]
		if err := createLedgerRun(); err != nil {
			t.Fatalf("\t%s\tShould be able to create the ledger: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to create the ledger.", success)

		from, to, amount, mine = addrs[1], addrs[0], 1, true
		if err := sendRun(); !errors.Is(err, utxo.ErrInsufficientFunds) {
			t.Fatalf("\t%s\tShould fail to send from an empty wallet, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould fail to send from an empty wallet.", success)

		st, err := continueLedger()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to reopen the ledger after a failed command: %s", failed, err)
		}
		if err := st.Shutdown(); err != nil {
			t.Fatalf("\t%s\tShould be able to close the reopened ledger: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to reopen the ledger after a failed command.", success)

		balanceAddress = "bogus"
		if err := balanceRun(); !errors.Is(err, wallet.ErrInvalidAddress) {
			t.Fatalf("\t%s\tShould reject an invalid address, got %v.", failed, err)
		}
		t.Logf("\t%s\tShould reject an invalid address.", success)

		from, to, amount = addrs[0], addrs[1], 40
		if err := sendRun(); err != nil {
			t.Fatalf("\t%s\tShould be able to mine a send: %s", failed, err)
		}
		if err := rebuildUTXORun(); err != nil {
			t.Fatalf("\t%s\tShould be able to rebuild the index: %s", failed, err)
		}
		if err := printChainRun(); err != nil {
			t.Fatalf("\t%s\tShould be able to print the chain: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to run the ledger commands in turn.", success)
	}
}
