// Package cmd contains the wallet and ledger command line tool.
package cmd

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database/storage/disk"
	"github.com/ardanlabs/utxochain/foundation/blockchain/genesis"
	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

var (
	dbRoot      string
	nodeID      string
	walletPath  string
	genesisPath string
	verbose     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "utxo",
	Short: "Wallet and ledger tool for the utxo chain",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	defNodeID := os.Getenv("NODE_ID")
	if defNodeID == "" {
		defNodeID = "3000"
	}

	rootCmd.PersistentFlags().StringVarP(&dbRoot, "db-root", "d", "zblock", "Path to the directory holding the ledgers.")
	rootCmd.PersistentFlags().StringVarP(&nodeID, "node-id", "n", defNodeID, "Id of the node whose ledger is used.")
	rootCmd.PersistentFlags().StringVarP(&walletPath, "wallet-path", "p", "zblock/wallets", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&genesisPath, "genesis", "g", "zblock/genesis.json", "Path to the genesis file.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print ledger events.")
}

// =============================================================================

func dbPath() string {
	return filepath.Join(dbRoot, "blocks_"+nodeID)
}

func evHandler() state.EventHandler {
	if !verbose {
		return nil
	}

	return func(v string, args ...any) {
		log.Printf(v, args...)
	}
}

// run adapts a command body returning an error to cobra. The error is
// reported once the body has returned so its deferred cleanup has run.
func run(fn func() error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := fn(); err != nil {
			log.Fatal(err)
		}
	}
}

func stateConfig() (state.Config, error) {
	gen, err := genesis.Load(genesisPath)
	if err != nil {
		return state.Config{}, err
	}

	store, err := disk.New(dbPath())
	if err != nil {
		return state.Config{}, err
	}

	cfg := state.Config{
		Storage:   store,
		Genesis:   gen,
		Host:      "localhost:" + nodeID,
		EvHandler: evHandler(),
	}

	return cfg, nil
}

// continueLedger opens the existing ledger of the node.
func continueLedger() (*state.State, error) {
	cfg, err := stateConfig()
	if err != nil {
		return nil, err
	}

	st, err := state.Continue(cfg)
	if err != nil {
		cfg.Storage.Close()
		return nil, err
	}

	return st, nil
}

func validateAddress(address string) error {
	if !wallet.ValidateAddress(address) {
		return fmt.Errorf("address %q: %w", address, wallet.ErrInvalidAddress)
	}

	return nil
}
