// Package ft wraps NEP-141 fungible token contracts: balance and metadata
// views, transfers, and the storage registration dance token contracts
// require before an account can hold a balance.
package ft

import (
	"context"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/herelabs/go-near/client"
	"github.com/herelabs/go-near/model/near"
	"github.com/herelabs/go-near/rpc"
)

// Token pairs a contract with its on-chain decimals.
type Token struct {
	ContractID near.AccountID
	Decimals   int
}

// Well-known mainnet tokens.
var (
	WNEAR  = Token{"wrap.near", 24}
	USDT   = Token{"usdt.tether-token.near", 6}
	StNEAR = Token{"meta-pool.near", 24}
	LiNEAR = Token{"linear-protocol.near", 24}
	Aurora = Token{"aaaaaa20d9e0e2461697782ef11675f668207961.factory.bridge.near", 18}
)

// minStorageBalance is the deposit most token contracts demand before an
// account may hold a balance.
var minStorageBalance, _ = new(big.Int).SetString("1250000000000000000000", 10)

var oneYocto = big.NewInt(1)

// ErrNotRegistered reports a transfer to an account the token contract does
// not know. Register the receiver with StorageDeposit first.
var ErrNotRegistered = errors.New("ft: receiver is not registered with the token contract")

// ErrNotEnoughBalance reports a transfer exceeding the sender's token
// balance.
var ErrNotEnoughBalance = errors.New("ft: not enough token balance")

// Metadata is the NEP-148 token metadata record.
type Metadata struct {
	Spec     string `json:"spec"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Icon     string `json:"icon"`
	Decimals int    `json:"decimals"`
}

// StorageBalance is an account's storage deposit on a token contract.
type StorageBalance struct {
	Total     string `json:"total"`
	Available string `json:"available"`
}

// Client talks to NEP-141 contracts on behalf of one account.
type Client struct {
	log     zerolog.Logger
	account *client.Account
}

func NewClient(log zerolog.Logger, account *client.Account) *Client {
	return &Client{
		log:     log.With().Str("module", "dapps_ft").Logger(),
		account: account,
	}
}

// BalanceOf returns the raw token balance of an account. An empty account id
// selects the client's own account.
func (c *Client) BalanceOf(ctx context.Context, token near.AccountID, accountID near.AccountID) (*big.Int, error) {
	if accountID == "" {
		accountID = c.account.AccountID()
	}
	view, err := c.account.ViewFunction(ctx, token, "ft_balance_of",
		map[string]interface{}{"account_id": accountID}, rpc.CallFunctionOpts{})
	if err != nil {
		return nil, err
	}
	return parseAmount(view.Result)
}

// Metadata returns the token's NEP-148 metadata.
func (c *Client) Metadata(ctx context.Context, token near.AccountID) (*Metadata, error) {
	view, err := c.account.ViewFunction(ctx, token, "ft_metadata", nil, rpc.CallFunctionOpts{})
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := view.UnmarshalInto(&meta); err != nil {
		return nil, errors.Wrap(err, "decoding ft_metadata")
	}
	return &meta, nil
}

// Transfer sends tokens to a receiver, attaching the mandatory single yocto.
// With forceRegister the receiver's storage is topped up first when missing.
func (c *Client) Transfer(ctx context.Context, token near.AccountID, receiverID near.AccountID, amount *big.Int, memo string, forceRegister bool) (*client.Outcome, error) {
	if forceRegister {
		if err := c.ensureRegistered(ctx, token, receiverID); err != nil {
			return nil, err
		}
	}
	outcome, err := c.account.FunctionCall(ctx, token, "ft_transfer",
		map[string]interface{}{
			"receiver_id": receiverID,
			"amount":      amount.String(),
			"memo":        memo,
		}, 0, oneYocto, client.ModeAwait)
	if err != nil {
		return nil, classifyTransferError(err)
	}
	return outcome, nil
}

// TransferCall sends tokens and invokes ft_on_transfer on the receiving
// contract with msg.
func (c *Client) TransferCall(ctx context.Context, token near.AccountID, receiverID near.AccountID, amount *big.Int, msg string, forceRegister bool) (*client.Outcome, error) {
	if forceRegister {
		if err := c.ensureRegistered(ctx, token, receiverID); err != nil {
			return nil, err
		}
	}
	outcome, err := c.account.FunctionCall(ctx, token, "ft_transfer_call",
		map[string]interface{}{
			"receiver_id": receiverID,
			"amount":      amount.String(),
			"msg":         msg,
		}, client.MaxGas, oneYocto, client.ModeAwait)
	if err != nil {
		return nil, classifyTransferError(err)
	}
	return outcome, nil
}

// StorageBalanceOf returns the account's storage deposit on the token
// contract, or nil when the account is not registered.
func (c *Client) StorageBalanceOf(ctx context.Context, token near.AccountID, accountID near.AccountID) (*StorageBalance, error) {
	if accountID == "" {
		accountID = c.account.AccountID()
	}
	view, err := c.account.ViewFunction(ctx, token, "storage_balance_of",
		map[string]interface{}{"account_id": accountID}, rpc.CallFunctionOpts{})
	if err != nil {
		return nil, err
	}
	if string(view.Result) == "null" {
		return nil, nil
	}
	var balance StorageBalance
	if err := view.UnmarshalInto(&balance); err != nil {
		return nil, errors.Wrap(err, "decoding storage_balance_of")
	}
	return &balance, nil
}

// StorageDeposit registers an account with the token contract by paying its
// storage deposit.
func (c *Client) StorageDeposit(ctx context.Context, token near.AccountID, accountID near.AccountID) (*client.Outcome, error) {
	if accountID == "" {
		accountID = c.account.AccountID()
	}
	return c.account.FunctionCall(ctx, token, "storage_deposit",
		map[string]interface{}{"account_id": accountID}, 0, minStorageBalance, client.ModeAwait)
}

func (c *Client) ensureRegistered(ctx context.Context, token near.AccountID, accountID near.AccountID) error {
	balance, err := c.StorageBalanceOf(ctx, token, accountID)
	if err != nil {
		return err
	}
	if balance != nil {
		return nil
	}
	c.log.Debug().
		Str("token", string(token)).
		Str("account_id", string(accountID)).
		Msg("registering token storage")
	_, err = c.StorageDeposit(ctx, token, accountID)
	return err
}

// classifyTransferError maps well-known contract panics to sentinel errors.
func classifyTransferError(err error) error {
	var callErr *near.FunctionCallErrorKind
	if !errors.As(err, &callErr) {
		return err
	}
	switch {
	case strings.Contains(callErr.ExecutionError, "The account is not registered"):
		return ErrNotRegistered
	case strings.Contains(callErr.ExecutionError, "The account doesn't have enough balance"):
		return ErrNotEnoughBalance
	}
	return err
}

func parseAmount(raw []byte) (*big.Int, error) {
	s := strings.Trim(string(raw), `"`)
	if s == "" || s == "null" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("ft: malformed amount %q", s)
	}
	return amount, nil
}
