// Package cmd implements the near command line utility: small account and
// network inspection commands on top of the client library, driven by the
// same configuration file the library consumes.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/herelabs/go-near/client"
	"github.com/herelabs/go-near/config"
	"github.com/herelabs/go-near/model/near"
	"github.com/herelabs/go-near/module/signer"
	"github.com/herelabs/go-near/rpc"
)

var (
	flagConfig  string
	flagAccount string
)

var rootCmd = &cobra.Command{
	Use:          "near",
	Short:        "Inspect accounts and submit transactions on NEAR",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "",
		"path to the configuration file")

	rootCmd.PersistentFlags().StringVar(&flagAccount, "account", "",
		"account id to operate as (overrides the configured one)")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(writer).Level(lvl).With().Timestamp().Logger(), nil
}

// setup loads configuration and builds the account pipeline shared by all
// subcommands. Accounts without configured keys still work for reads.
func setup() (zerolog.Logger, *client.Account, error) {
	conf, err := config.Load(flagConfig)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	log, err := newLogger(conf.LogLevel)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	rpcClient, err := rpc.NewClient(log, conf.RPC.Endpoints,
		rpc.WithTimeout(conf.RPC.Timeout),
		rpc.WithBroadcast(conf.RPC.Broadcast),
	)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	accountID := conf.Account.ID
	if flagAccount != "" {
		accountID = flagAccount
	}
	if accountID == "" {
		return zerolog.Nop(), nil, fmt.Errorf("no account id configured; set account.id or pass --account")
	}

	signers := make([]*signer.Signer, 0, len(conf.Account.PrivateKeys))
	for _, key := range conf.Account.PrivateKeys {
		s, err := signer.ParseKey(key)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("could not parse configured private key: %w", err)
		}
		signers = append(signers, s)
	}

	account, err := client.NewAccount(log, rpcClient, near.AccountID(accountID), signers...)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	return log, account, nil
}
