// Package staking wraps the hNEAR liquid staking contract: deposits,
// withdrawals, staked-balance transfers, and dividend collection.
package staking

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

// contractByChain maps a chain id to its staking contract.
var contractByChain = map[string]near.AccountID{
	"mainnet": "storage.herewallet.near",
	"testnet": "storage.herewallet.testnet",
}

var oneYocto = big.NewInt(1)

// ErrNotEnoughBalance reports an operation exceeding the staked balance.
var ErrNotEnoughBalance = errors.New("staking: not enough staked balance")

// UserData is the contract's per-account staking record.
type UserData struct {
	AccountID   string `json:"account_id"`
	Deposit     string `json:"deposit"`
	Accrued     string `json:"accrued"`
	LastAccrual uint64 `json:"last_accrual_ts"`
	ApyValue    uint64 `json:"apy_value"`
}

// Client performs staking operations through one account. Startup must have
// run on the account so the chain id is known.
type Client struct {
	log     zerolog.Logger
	account *client.Account
}

func NewClient(log zerolog.Logger, account *client.Account) *Client {
	return &Client{
		log:     log.With().Str("module", "dapps_staking").Logger(),
		account: account,
	}
}

func (c *Client) contract() (near.AccountID, error) {
	contract, ok := contractByChain[c.account.ChainID()]
	if !ok {
		return "", errors.Errorf("staking: no contract for chain %q", c.account.ChainID())
	}
	return contract, nil
}

// Stake deposits yoctoNEAR into the staking contract.
func (c *Client) Stake(ctx context.Context, amount *big.Int) (*client.Outcome, error) {
	contract, err := c.contract()
	if err != nil {
		return nil, err
	}
	return c.account.FunctionCall(ctx, contract, "storage_deposit", nil, 0, amount, client.ModeAwait)
}

// Unstake withdraws yoctoNEAR from the staking contract.
func (c *Client) Unstake(ctx context.Context, amount *big.Int) (*client.Outcome, error) {
	contract, err := c.contract()
	if err != nil {
		return nil, err
	}
	outcome, err := c.account.FunctionCall(ctx, contract, "storage_withdraw",
		map[string]interface{}{"amount": amount.String()}, 0, oneYocto, client.ModeAwait)
	if err != nil {
		return nil, classifyBalanceError(err)
	}
	return outcome, nil
}

// Transfer moves staked tokens to another account.
func (c *Client) Transfer(ctx context.Context, receiverID near.AccountID, amount *big.Int, memo string) (*client.Outcome, error) {
	contract, err := c.contract()
	if err != nil {
		return nil, err
	}
	outcome, err := c.account.FunctionCall(ctx, contract, "ft_transfer",
		map[string]interface{}{
			"receiver_id": receiverID,
			"amount":      amount.String(),
			"msg":         memo,
		}, 0, oneYocto, client.ModeAwait)
	if err != nil {
		return nil, classifyBalanceError(err)
	}
	return outcome, nil
}

// TransferCall moves staked tokens and invokes ft_on_transfer on the
// receiving contract.
func (c *Client) TransferCall(ctx context.Context, receiverID near.AccountID, amount *big.Int, msg string) (*client.Outcome, error) {
	contract, err := c.contract()
	if err != nil {
		return nil, err
	}
	return c.account.FunctionCall(ctx, contract, "ft_transfer_call",
		map[string]interface{}{
			"receiver_id": receiverID,
			"amount":      amount.String(),
			"msg":         msg,
		}, client.MaxGas, oneYocto, client.ModeAwait)
}

// StakedBalance returns the account's staked balance in yoctoNEAR. An empty
// account id selects the client's own account.
func (c *Client) StakedBalance(ctx context.Context, accountID near.AccountID) (*big.Int, error) {
	contract, err := c.contract()
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		accountID = c.account.AccountID()
	}
	view, err := c.account.ViewFunction(ctx, contract, "ft_balance_of",
		map[string]interface{}{"account_id": accountID}, rpc.CallFunctionOpts{})
	if err != nil {
		return nil, err
	}
	s := strings.Trim(string(view.Result), `"`)
	if s == "" || s == "null" {
		return new(big.Int), nil
	}
	balance, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("staking: malformed balance %q", s)
	}
	return balance, nil
}

// User returns the contract's staking record for an account, or nil when the
// account has never staked.
func (c *Client) User(ctx context.Context, accountID near.AccountID) (*UserData, error) {
	contract, err := c.contract()
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		accountID = c.account.AccountID()
	}
	view, err := c.account.ViewFunction(ctx, contract, "get_user",
		map[string]interface{}{"account_id": accountID}, rpc.CallFunctionOpts{})
	if err != nil {
		return nil, err
	}
	if string(view.Result) == "null" {
		return nil, nil
	}
	var user UserData
	if err := view.UnmarshalInto(&user); err != nil {
		return nil, errors.Wrap(err, "decoding get_user")
	}
	return &user, nil
}

// ReceiveDividends collects accrued staking rewards.
func (c *Client) ReceiveDividends(ctx context.Context) (*client.Outcome, error) {
	contract, err := c.contract()
	if err != nil {
		return nil, err
	}
	return c.account.FunctionCall(ctx, contract, "receive_dividends", nil, 0, oneYocto, client.ModeAwait)
}

func classifyBalanceError(err error) error {
	var callErr *near.FunctionCallErrorKind
	if errors.As(err, &callErr) &&
		strings.Contains(callErr.ExecutionError, "The account doesn't have enough balance") {
		return ErrNotEnoughBalance
	}
	return err
}
