package cmd

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

var addressesCmd = &cobra.Command{
	Use:   "addresses",
	Short: "List the addresses held in the wallet folder.",
	Run:   run(addressesRun),
}

func init() {
	rootCmd.AddCommand(addressesCmd)
}

func addressesRun() error {
	ws, err := wallet.Load(walletPath)
	if err != nil {
		return err
	}

	for _, address := range ws.Addresses() {
		fmt.Println("Address:", address)
	}

	return nil
}
