package cmd

import (
	"context"
	"fmt"

	"github.com/ardanlabs/utxochain/foundation/blockchain/network"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wallet"
	"github.com/ardanlabs/utxochain/foundation/blockchain/wire"
	"github.com/spf13/cobra"
)

var (
	from   string
	to     string
	amount uint64
	mine   bool
	node   string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send an amount from a wallet to an address.",
	Run:   run(sendRun),
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&from, "from", "f", "", "Address of the sending wallet.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address of the receiver.")
	sendCmd.Flags().Uint64VarP(&amount, "amount", "a", 0, "Amount to send.")
	sendCmd.Flags().BoolVarP(&mine, "mine", "m", false, "Mine the transaction into a block on this ledger.")
	sendCmd.Flags().StringVar(&node, "node", "localhost:3000", "Node receiving the transaction when not mining.")
	sendCmd.MarkFlagRequired("from")
	sendCmd.MarkFlagRequired("to")
	sendCmd.MarkFlagRequired("amount")
}

func sendRun() error {
	if err := validateAddress(from); err != nil {
		return err
	}
	if err := validateAddress(to); err != nil {
		return err
	}

	ws, err := wallet.Load(walletPath)
	if err != nil {
		return err
	}

	w, err := ws.Lookup(from)
	if err != nil {
		return err
	}

	st, err := continueLedger()
	if err != nil {
		return err
	}
	defer st.Shutdown()

	if mine {
		tx, block, err := st.Send(context.Background(), w, to, amount)
		if err != nil {
			return err
		}

		fmt.Printf("Mined tx %s into block %x at height %d\n", tx.IDHex(), []byte(block.Hash), block.Height)
		return nil
	}

	tx, err := st.NewTransaction(w, to, amount)
	if err != nil {
		return err
	}

	// The tool isn't listening, so it does not name itself as the sender.
	sender := network.New(network.Config{State: st, EvHandler: evHandler()})
	if err := sender.Send(node, wire.Tx{Tx: tx}); err != nil {
		return err
	}

	fmt.Printf("Sent tx %s to %s\n", tx.IDHex(), node)

	return nil
}
