package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print chain id and latest block of the first healthy endpoint",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	_, account, err := setup()
	if err != nil {
		return err
	}
	status, err := account.RPC().Status(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("chain id:     %s\n", status.ChainID)
	fmt.Printf("block height: %d\n", status.SyncInfo.LatestBlockHeight)
	fmt.Printf("block hash:   %s\n", status.SyncInfo.LatestBlockHash)
	fmt.Printf("syncing:      %t\n", status.SyncInfo.Syncing)
	return nil
}
