package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var rebuildUTXOCmd = &cobra.Command{
	Use:   "rebuild-utxo",
	Short: "Rebuild the unspent output index from the chain.",
	Run:   run(rebuildUTXORun),
}

func init() {
	rootCmd.AddCommand(rebuildUTXOCmd)
}

func rebuildUTXORun() error {
	st, err := continueLedger()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	if err := st.RebuildUTXO(context.Background()); err != nil {
		return err
	}

	count, err := st.CountUTXOTransactions()
	if err != nil {
		return err
	}

	fmt.Printf("Done! There are %d transactions in the UTXO set.\n", count)

	return nil
}
