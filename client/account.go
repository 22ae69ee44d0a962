// Package client implements the transaction pipeline: build, sign, submit
// and optionally await execution of transactions for one account. It owns no
// persistent state beyond in-flight transaction objects; nonces live in the
// coordinator and key material in the signer pool.
package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/herelabs/go-near/model/near"
	"github.com/herelabs/go-near/module/nonce"
	"github.com/herelabs/go-near/module/signer"
	"github.com/herelabs/go-near/rpc"
)

const (
	// DefaultGas is attached to function calls that do not specify a gas
	// budget (200 TGas).
	DefaultGas uint64 = 200_000_000_000_000

	// MaxGas is the per-transaction gas ceiling enforced by the protocol
	// (300 TGas).
	MaxGas uint64 = 300_000_000_000_000

	// delegateValidityWindow is how many blocks past the current height a
	// delegate action stays valid.
	delegateValidityWindow = 1000
)

// DefaultAllowance is the function-call access key allowance used when the
// caller does not specify one (0.025 NEAR).
var DefaultAllowance = mustBalance("25000000000000000000000")

func mustBalance(s string) near.Balance {
	b, err := near.ParseBalance(s)
	if err != nil {
		panic(err)
	}
	return b
}

// SubmitMode selects how long a submission blocks.
type SubmitMode int

const (
	// ModeAwait blocks until the full execution outcome is available.
	ModeAwait SubmitMode = iota
	// ModeAsync returns immediately with the transaction hash.
	ModeAsync
	// ModeIncluded blocks until the transaction is included in a block.
	ModeIncluded
)

// Outcome is the result of one submission. Hash is always set; Result is
// set only for ModeAwait.
type Outcome struct {
	Hash   string
	Result *near.TransactionResult
}

// Logs returns the concatenated execution logs, or nil when the submission
// did not wait for execution.
func (o *Outcome) Logs() []string {
	if o.Result == nil {
		return nil
	}
	return o.Result.Logs()
}

// Account drives all on-chain operations for one account id.
type Account struct {
	log   zerolog.Logger
	rpc   *rpc.Client
	pool  *signer.KeyPool
	coord *nonce.Coordinator

	accountID near.AccountID
	chainID   string
}

// NewAccount builds the pipeline for accountID using the given signers. At
// least one signer is required for write operations; a read-only account may
// pass none, in which case submissions fail.
func NewAccount(log zerolog.Logger, rpcClient *rpc.Client, accountID near.AccountID, signers ...*signer.Signer) (*Account, error) {
	if err := accountID.Validate(); err != nil {
		return nil, err
	}
	a := &Account{
		log:       log.With().Str("module", "account").Str("account_id", string(accountID)).Logger(),
		rpc:       rpcClient,
		coord:     nonce.NewCoordinator(log, rpcClient, accountID),
		accountID: accountID,
	}
	if len(signers) > 0 {
		pool, err := signer.NewKeyPool(signers...)
		if err != nil {
			return nil, err
		}
		a.pool = pool
	}
	return a, nil
}

// Startup fetches the chain id from the network. Optional; submissions work
// without it.
func (a *Account) Startup(ctx context.Context) error {
	status, err := a.rpc.Status(ctx)
	if err != nil {
		return err
	}
	a.chainID = status.ChainID
	return nil
}

// AccountID returns the account this pipeline signs for.
func (a *Account) AccountID() near.AccountID {
	return a.accountID
}

// ChainID returns the chain id fetched at Startup, or "" before that.
func (a *Account) ChainID() string {
	return a.chainID
}

// RPC exposes the underlying transport for callers needing raw queries.
func (a *Account) RPC() *rpc.Client {
	return a.rpc
}

// SignAndSubmit builds a transaction with the given actions, signs it with a
// pooled key and submits it with the requested mode.
//
// The signer is checked out only long enough to reserve the next nonce and
// block hash; it returns to the pool before the network round-trip so that
// submission latency never blocks the next reservation. The reserved nonce
// is consumed even when submission fails.
func (a *Account) SignAndSubmit(ctx context.Context, receiverID near.AccountID, actions []near.Action, mode SubmitMode) (*Outcome, error) {
	if a.pool == nil {
		return nil, fmt.Errorf("account %s has no signing keys", a.accountID)
	}
	s, err := a.pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	publicKey := s.PublicKey()
	nextNonce, err := a.coord.Reserve(ctx, publicKey.String())
	if err != nil {
		a.pool.Put(s)
		return nil, err
	}
	blockHash, _, err := a.coord.BlockInfo(ctx)
	a.pool.Put(s)
	if err != nil {
		return nil, err
	}

	tx := near.Transaction{
		SignerID:   a.accountID,
		PublicKey:  publicKey,
		Nonce:      nextNonce,
		ReceiverID: receiverID,
		BlockHash:  blockHash,
		Actions:    actions,
	}
	txHash := tx.Hash()
	signed := near.SignedTransaction{
		Transaction: tx,
		Signature:   s.Sign(txHash[:]),
	}
	payload := base64.StdEncoding.EncodeToString(signed.Serialize())
	hashString := tx.HashString()

	log := a.log.With().
		Str("tx_hash", hashString).
		Str("receiver_id", string(receiverID)).
		Uint64("nonce", nextNonce).
		Logger()

	switch mode {
	case ModeAsync:
		hash, err := a.rpc.SendTransactionAsync(ctx, payload)
		if err != nil {
			a.resyncOnNonceError(ctx, publicKey.String(), err)
			return nil, err
		}
		log.Debug().Msg("transaction broadcast")
		return &Outcome{Hash: hash}, nil

	case ModeIncluded:
		hash, err := a.rpc.SendTransactionIncluded(ctx, payload)
		if err != nil {
			return nil, err
		}
		log.Debug().Msg("transaction included")
		return &Outcome{Hash: hash}, nil

	default:
		result, err := a.rpc.SendTransactionAwait(ctx, payload, hashString, receiverID)
		if err != nil {
			a.resyncOnNonceError(ctx, publicKey.String(), err)
			return nil, err
		}
		if err := result.Err(); err != nil {
			log.Debug().Err(err).Msg("transaction execution failed")
			return nil, err
		}
		log.Debug().Msg("transaction executed")
		return &Outcome{Hash: hashString, Result: result}, nil
	}
}

// resyncOnNonceError fast-forwards the key's nonce shadow after the chain
// rejected the reserved nonce: some other client advanced the key, and the
// next reservation would collide again without a resync.
func (a *Account) resyncOnNonceError(ctx context.Context, publicKey string, err error) {
	if !rpc.IsInvalidNonce(err) {
		return
	}
	if syncErr := a.coord.Resync(ctx, publicKey); syncErr != nil {
		a.log.Warn().Err(syncErr).Str("public_key", publicKey).Msg("nonce resync failed")
	}
}

// SendMoney transfers amount yoctoNEAR to receiverID.
func (a *Account) SendMoney(ctx context.Context, receiverID near.AccountID, amount near.Balance, mode SubmitMode) (*Outcome, error) {
	return a.SignAndSubmit(ctx, receiverID, []near.Action{near.TransferAction(amount)}, mode)
}

// FunctionCall invokes a state-changing contract method. args are JSON
// encoded; gas 0 selects DefaultGas; deposit may be nil for no deposit.
func (a *Account) FunctionCall(ctx context.Context, contractID near.AccountID, method string, args interface{}, gas uint64, deposit near.Balance, mode SubmitMode) (*Outcome, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("could not encode call arguments: %w", err)
	}
	if gas == 0 {
		gas = DefaultGas
	}
	action := near.FunctionCallAction(method, encoded, gas, deposit)
	return a.SignAndSubmit(ctx, contractID, []near.Action{action}, mode)
}

// ViewFunction calls a read-only contract method with JSON args and decodes
// the byte-array result into a ViewResult.
func (a *Account) ViewFunction(ctx context.Context, contractID near.AccountID, method string, args interface{}, opts rpc.CallFunctionOpts) (*near.ViewResult, error) {
	encoded, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("could not encode view arguments: %w", err)
	}
	return a.rpc.CallFunction(ctx, contractID, method, encoded, opts)
}

// CreateAccount creates newAccountID as a subaccount with the given full
// access key and initial balance. The three actions always travel in one
// transaction - CreateAccount, AddKey, Transfer, in that order - because the
// chain executes a transaction's actions as a single atomic unit.
func (a *Account) CreateAccount(ctx context.Context, newAccountID near.AccountID, publicKey near.PublicKey, initialBalance near.Balance, mode SubmitMode) (*Outcome, error) {
	actions := []near.Action{
		near.CreateAccountAction(),
		near.FullAccessKeyAction(publicKey),
		near.TransferAction(initialBalance),
	}
	return a.SignAndSubmit(ctx, newAccountID, actions, mode)
}

// AddPublicKey adds publicKey restricted to calling methodNames on
// receiverID. A nil allowance selects DefaultAllowance.
func (a *Account) AddPublicKey(ctx context.Context, publicKey near.PublicKey, receiverID near.AccountID, methodNames []string, allowance near.Balance, mode SubmitMode) (*Outcome, error) {
	if methodNames == nil {
		methodNames = []string{}
	}
	if allowance == nil {
		allowance = DefaultAllowance
	}
	action := near.FunctionCallAccessKeyAction(publicKey, receiverID, methodNames, allowance)
	return a.SignAndSubmit(ctx, a.accountID, []near.Action{action}, mode)
}

// AddFullAccessPublicKey adds publicKey with full access to the account.
func (a *Account) AddFullAccessPublicKey(ctx context.Context, publicKey near.PublicKey, mode SubmitMode) (*Outcome, error) {
	action := near.FullAccessKeyAction(publicKey)
	return a.SignAndSubmit(ctx, a.accountID, []near.Action{action}, mode)
}

// DeletePublicKey removes publicKey from the account.
func (a *Account) DeletePublicKey(ctx context.Context, publicKey near.PublicKey, mode SubmitMode) (*Outcome, error) {
	action := near.DeleteKeyAction(publicKey)
	return a.SignAndSubmit(ctx, a.accountID, []near.Action{action}, mode)
}

// DeleteAccount deletes the account and sends its remaining balance to
// beneficiaryID.
func (a *Account) DeleteAccount(ctx context.Context, beneficiaryID near.AccountID, mode SubmitMode) (*Outcome, error) {
	action := near.DeleteAccountAction(beneficiaryID)
	return a.SignAndSubmit(ctx, a.accountID, []near.Action{action}, mode)
}

// DeployContract deploys WASM code to the account.
func (a *Account) DeployContract(ctx context.Context, code []byte, mode SubmitMode) (*Outcome, error) {
	return a.SignAndSubmit(ctx, a.accountID, []near.Action{near.DeployContractAction(code)}, mode)
}

// Stake locks amount with validatorKey. The account must hold enough
// balance to enter the validator pool.
func (a *Account) Stake(ctx context.Context, validatorKey near.PublicKey, amount near.Balance, mode SubmitMode) (*Outcome, error) {
	return a.SignAndSubmit(ctx, a.accountID, []near.Action{near.StakeAction(amount, validatorKey)}, mode)
}

// GetBalance returns the liquid balance of accountID, or of this account
// when accountID is empty.
func (a *Account) GetBalance(ctx context.Context, accountID near.AccountID) (near.Balance, error) {
	if accountID == "" {
		accountID = a.accountID
	}
	view, err := a.rpc.ViewAccount(ctx, accountID, rpc.FinalityOptimistic)
	if err != nil {
		return nil, err
	}
	return near.ParseBalance(view.Amount)
}

// FetchState returns the full account view.
func (a *Account) FetchState(ctx context.Context) (*near.AccountView, error) {
	return a.rpc.ViewAccount(ctx, a.accountID, rpc.FinalityOptimistic)
}

// AccessKey returns the access key state for one of this account's keys.
func (a *Account) AccessKey(ctx context.Context, publicKey near.PublicKey) (*near.AccessKeyView, error) {
	return a.rpc.ViewAccessKey(ctx, a.accountID, publicKey.String(), rpc.FinalityOptimistic)
}

// AccessKeys lists all access keys of accountID, or of this account when
// accountID is empty.
func (a *Account) AccessKeys(ctx context.Context, accountID near.AccountID) ([]near.AccessKeyInfo, error) {
	if accountID == "" {
		accountID = a.accountID
	}
	list, err := a.rpc.ViewAccessKeyList(ctx, accountID, rpc.FinalityOptimistic)
	if err != nil {
		return nil, err
	}
	return list.Keys, nil
}
