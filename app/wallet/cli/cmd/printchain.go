package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var printChainCmd = &cobra.Command{
	Use:   "print-chain",
	Short: "Print every block from the tip back to genesis.",
	Run:   run(printChainRun),
}

func init() {
	rootCmd.AddCommand(printChainCmd)
}

func printChainRun() error {
	st, err := continueLedger()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	difficulty := st.RetrieveGenesis().Difficulty

	iter := st.Iterator()
	for !iter.Done() {
		block, err := iter.Next()
		if err != nil {
			return err
		}

		fmt.Print(block)
		fmt.Printf("PoW: %t\n\n", block.ValidatePOW(difficulty) == nil)
	}

	return nil
}
