package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/herelabs/go-near/model/near"
)

var keysCmd = &cobra.Command{
	Use:   "keys [account-id]",
	Short: "List the access keys of an account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	_, account, err := setup()
	if err != nil {
		return err
	}
	var target near.AccountID
	if len(args) == 1 {
		target = near.AccountID(args[0])
	}
	keys, err := account.AccessKeys(cmd.Context(), target)
	if err != nil {
		return err
	}
	for _, key := range keys {
		perm := "FullAccess"
		if fc := key.AccessKey.Permission.FunctionCall; fc != nil {
			perm = fmt.Sprintf("FunctionCall(%s)", fc.ReceiverID)
		}
		fmt.Printf("%s  nonce=%d  %s\n", key.PublicKey, key.AccessKey.Nonce, perm)
	}
	return nil
}
