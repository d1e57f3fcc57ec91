package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var balanceAddress string

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the balance of an address.",
	Run:   run(balanceRun),
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&balanceAddress, "address", "a", "", "Address to report on.")
	balanceCmd.MarkFlagRequired("address")
}

func balanceRun() error {
	if err := validateAddress(balanceAddress); err != nil {
		return err
	}

	st, err := continueLedger()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	balance, err := st.Balance(balanceAddress)
	if err != nil {
		return err
	}

	fmt.Printf("Balance of %s: %d\n", balanceAddress, balance)

	return nil
}
