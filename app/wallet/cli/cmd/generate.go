package cmd

import (
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair and store it in the wallet folder.",
	Run:   run(generateRun),
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func generateRun() error {
	ws, err := wallet.Load(walletPath)
	if err != nil {
		return err
	}

	address, err := ws.Create()
	if err != nil {
		return err
	}

	fmt.Println("New wallet:", address)

	return nil
}
