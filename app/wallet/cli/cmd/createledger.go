package cmd

import (
	"context"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/state"
	"github.com/spf13/cobra"
)

var createAddress string

var createLedgerCmd = &cobra.Command{
	Use:   "create-ledger",
	Short: "Create a ledger and pay the genesis reward to the address.",
	Run:   run(createLedgerRun),
}

func init() {
	rootCmd.AddCommand(createLedgerCmd)
	createLedgerCmd.Flags().StringVarP(&createAddress, "address", "a", "", "Address receiving the genesis reward.")
	createLedgerCmd.MarkFlagRequired("address")
}

func createLedgerRun() error {
	if err := validateAddress(createAddress); err != nil {
		return err
	}

	cfg, err := stateConfig()
	if err != nil {
		return err
	}

	st, err := state.Init(context.Background(), cfg, createAddress)
	if err != nil {
		cfg.Storage.Close()
		return err
	}
	defer st.Shutdown()

	fmt.Printf("Created ledger %s: genesis %x\n", dbPath(), st.LatestHash())

	return nil
}
