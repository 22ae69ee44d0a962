package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herelabs/go-near/client"
	"github.com/herelabs/go-near/model/near"
)

var flagAsync bool

var sendCmd = &cobra.Command{
	Use:   "send <receiver-id> <amount-yocto>",
	Short: "Transfer native tokens to another account",
	Args:  cobra.ExactArgs(2),
	RunE:  runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolVar(&flagAsync, "async", false,
		"return after broadcast instead of waiting for execution")
}

func runSend(cmd *cobra.Command, args []string) error {
	log, account, err := setup()
	if err != nil {
		return err
	}
	receiver := near.AccountID(args[0])
	amount, err := near.ParseBalance(args[1])
	if err != nil {
		return err
	}

	mode := client.ModeAwait
	if flagAsync {
		mode = client.ModeAsync
	}
	outcome, err := account.SendMoney(cmd.Context(), receiver, amount, mode)
	if err != nil {
		return err
	}
	log.Info().
		Str("tx_hash", outcome.Hash).
		Str("receiver_id", string(receiver)).
		Msg("transfer submitted")
	fmt.Println(outcome.Hash)
	return nil
}
