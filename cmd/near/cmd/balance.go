package cmd

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"

	"github.com/herelabs/go-near/model/near"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [account-id]",
	Short: "Print the liquid balance of an account",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

// yoctoPerNEAR converts between the wire unit and the display unit.
var yoctoPerNEAR = new(big.Int).Exp(big.NewInt(10), big.NewInt(24), nil)

func runBalance(cmd *cobra.Command, args []string) error {
	_, account, err := setup()
	if err != nil {
		return err
	}
	var target near.AccountID
	if len(args) == 1 {
		target = near.AccountID(args[0])
	}
	balance, err := account.GetBalance(cmd.Context(), target)
	if err != nil {
		return err
	}
	display := new(big.Rat).SetFrac(balance, yoctoPerNEAR)
	fmt.Printf("%s yoctoNEAR (%s NEAR)\n", balance.String(), display.FloatString(5))
	return nil
}
