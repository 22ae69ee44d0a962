package intents

import (
	"context"
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/herelabs/go-near/client"
	"github.com/herelabs/go-near/model/near"
	"github.com/herelabs/go-near/module/signer"
	"github.com/herelabs/go-near/rpc"
)

// storageDeposit covers one account's storage registration on a NEP-141
// token contract.
var storageDeposit, _ = new(big.Int).SetString("1250000000000000000000", 10)

var oneYocto = big.NewInt(1)

// Manager signs and routes intents on behalf of one account. On-chain
// operations (deposits, key registration, direct execution) go through the
// transaction pipeline; off-chain publication goes through the solver relay.
type Manager struct {
	log      zerolog.Logger
	account  *client.Account
	signer   *signer.Signer
	relay    *Relay
	contract near.AccountID
}

// Option configures a Manager.
type Option func(*Manager)

// WithContract overrides the verifying contract.
func WithContract(contract near.AccountID) Option {
	return func(m *Manager) { m.contract = contract }
}

// WithRelay overrides the solver relay client.
func WithRelay(relay *Relay) Option {
	return func(m *Manager) { m.relay = relay }
}

// NewManager builds an intent manager around an account and the signing key
// registered with the intents contract.
func NewManager(log zerolog.Logger, account *client.Account, key *signer.Signer, opts ...Option) *Manager {
	m := &Manager{
		log:      log.With().Str("module", "intents").Logger(),
		account:  account,
		signer:   key,
		contract: DefaultContract,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.relay == nil {
		m.relay = NewRelay(log, DefaultRelayURL, nil)
	}
	return m
}

// Relay exposes the underlying relay client.
func (m *Manager) Relay() *Relay { return m.relay }

// Intent starts an empty builder.
func (m *Manager) Intent() *Builder { return newBuilder(m) }

// Transfer starts a builder with a transfer intent.
func (m *Manager) Transfer(receiverID string, tokens map[string]string, memo string) *Builder {
	return newBuilder(m).Transfer(receiverID, tokens, memo)
}

// TokenDiff starts a builder with an explicit token_diff intent.
func (m *Manager) TokenDiff(diff map[string]string, referral string) *Builder {
	return newBuilder(m).TokenDiff(diff, referral)
}

// Take starts a builder accumulating an amount to receive.
func (m *Manager) Take(token string, amount *big.Int) *Builder {
	return newBuilder(m).Take(token, amount)
}

// Give starts a builder accumulating an amount to pay.
func (m *Manager) Give(token string, amount *big.Int) *Builder {
	return newBuilder(m).Give(token, amount)
}

// FtWithdraw starts a builder with a fungible-token withdrawal.
func (m *Manager) FtWithdraw(token, receiverID, amount string) *Builder {
	return newBuilder(m).FtWithdraw(token, receiverID, amount)
}

// MtWithdraw starts a builder with a multi-token withdrawal.
func (m *Manager) MtWithdraw(token, receiverID string, tokenIDs, amounts []string, msg string) *Builder {
	return newBuilder(m).MtWithdraw(token, receiverID, tokenIDs, amounts, msg)
}

// NftWithdraw starts a builder with an NFT withdrawal.
func (m *Manager) NftWithdraw(token, tokenID, receiverID, msg string) *Builder {
	return newBuilder(m).NftWithdraw(token, tokenID, receiverID, msg)
}

// NativeWithdraw starts a builder with a native NEAR withdrawal.
func (m *Manager) NativeWithdraw(receiverID, amount, memo string) *Builder {
	return newBuilder(m).NativeWithdraw(receiverID, amount, memo)
}

// AuthCall starts a builder with an authenticated contract call.
func (m *Manager) AuthCall(contractID, msg, attachedDeposit, minGas string) *Builder {
	return newBuilder(m).AuthCall(contractID, msg, attachedDeposit, minGas)
}

// SignQuote signs the payload under the raw_ed25519 standard. The signature
// covers the exact JSON serialization carried in the commitment.
func (m *Manager) SignQuote(quote *Quote) (*Commitment, error) {
	payload, err := json.Marshal(quote)
	if err != nil {
		return nil, errors.Wrap(err, "encoding quote")
	}
	sig := m.signer.Sign(payload)
	return &Commitment{
		Standard:  "raw_ed25519",
		Payload:   string(payload),
		Signature: sig.String(),
		PublicKey: m.signer.PublicKey().String(),
	}, nil
}

// PublishIntents publishes signed commitments to the relay and returns the
// assigned intent hashes.
func (m *Manager) PublishIntents(ctx context.Context, signed []*Commitment, quoteHashes []string) ([]string, error) {
	if len(signed) == 1 {
		hash, err := m.relay.PublishIntent(ctx, signed[0], quoteHashes)
		if err != nil {
			return nil, err
		}
		return []string{hash}, nil
	}
	return m.relay.PublishIntents(ctx, signed, quoteHashes)
}

// PublishAndSettle publishes signed commitments and blocks until the first
// intent settles on-chain, returning the settlement transaction hash.
func (m *Manager) PublishAndSettle(ctx context.Context, signed []*Commitment, quoteHashes []string) (string, error) {
	hashes, err := m.PublishIntents(ctx, signed, quoteHashes)
	if err != nil {
		return "", err
	}
	return m.relay.AwaitSettlement(ctx, hashes[0])
}

// ExecuteOnChain bypasses the relay and submits signed commitments straight
// to the verifying contract.
func (m *Manager) ExecuteOnChain(ctx context.Context, signed []*Commitment) (*client.Outcome, error) {
	return m.account.FunctionCall(ctx, m.contract, "execute_intents",
		map[string]interface{}{"signed": signed}, client.MaxGas, nil, client.ModeIncluded)
}

// IntentExecuted reports one intent landed during simulation.
type IntentExecuted struct {
	IntentHash string `json:"intent_hash"`
	AccountID  string `json:"account_id"`
	Nonce      string `json:"nonce"`
}

// SimulationResult is the verifying contract's dry-run verdict.
type SimulationResult struct {
	ErrorMsg        string           `json:"error_msg"`
	IntentsExecuted []IntentExecuted `json:"intents_executed"`
	Logs            []string         `json:"logs"`
	MinDeadline     string           `json:"min_deadline"`
}

// Success reports whether the dry run executed every intent.
func (r *SimulationResult) Success() bool { return r.ErrorMsg == "" }

// SimulateIntents dry-runs signed commitments against the verifying contract
// without publishing them.
func (m *Manager) SimulateIntents(ctx context.Context, signed []*Commitment) (*SimulationResult, error) {
	view, err := m.account.ViewFunction(ctx, m.contract, "simulate_intents",
		map[string]interface{}{"signed": signed}, rpc.CallFunctionOpts{})
	if err != nil {
		return nil, err
	}
	var result SimulationResult
	if err := view.UnmarshalInto(&result); err != nil {
		return nil, errors.Wrap(err, "decoding simulation result")
	}
	return &result, nil
}

// IsNonceUsed reports whether the account has already consumed the nonce on
// the verifying contract.
func (m *Manager) IsNonceUsed(ctx context.Context, nonce string, accountID near.AccountID) (bool, error) {
	if accountID == "" {
		accountID = m.account.AccountID()
	}
	view, err := m.account.ViewFunction(ctx, m.contract, "is_nonce_used",
		map[string]interface{}{"nonce": nonce, "account_id": accountID}, rpc.CallFunctionOpts{})
	if err != nil {
		return false, err
	}
	var used bool
	if err := view.UnmarshalInto(&used); err != nil {
		return false, errors.Wrap(err, "decoding is_nonce_used result")
	}
	return used, nil
}

// RegisterKey registers the manager's signing key with the verifying
// contract so relayed commitments verify.
func (m *Manager) RegisterKey(ctx context.Context) (*client.Outcome, error) {
	return m.account.FunctionCall(ctx, m.contract, "add_public_key",
		map[string]interface{}{"public_key": m.signer.PublicKey().String()},
		client.MaxGas, oneYocto, client.ModeIncluded)
}

// RemoveKey revokes the manager's signing key on the verifying contract.
func (m *Manager) RemoveKey(ctx context.Context) (*client.Outcome, error) {
	return m.account.FunctionCall(ctx, m.contract, "remove_public_key",
		map[string]interface{}{"public_key": m.signer.PublicKey().String()},
		client.MaxGas, oneYocto, client.ModeIncluded)
}

// RegisterTokenStorage ensures the account is registered with a NEP-141
// token contract, paying the storage deposit when it is not.
func (m *Manager) RegisterTokenStorage(ctx context.Context, tokenID, accountID near.AccountID) error {
	if accountID == "" {
		accountID = m.account.AccountID()
	}
	view, err := m.account.ViewFunction(ctx, tokenID, "storage_balance_of",
		map[string]interface{}{"account_id": accountID}, rpc.CallFunctionOpts{})
	if err != nil {
		return err
	}
	if string(view.Result) != "null" {
		return nil
	}
	_, err = m.account.FunctionCall(ctx, tokenID, "storage_deposit",
		map[string]interface{}{"account_id": accountID},
		client.MaxGas, storageDeposit, client.ModeAwait)
	return err
}

// DepositToken moves a fungible token into the verifying contract, where it
// becomes spendable by intents.
func (m *Manager) DepositToken(ctx context.Context, tokenID near.AccountID, amount string) error {
	if err := m.RegisterTokenStorage(ctx, tokenID, m.contract); err != nil {
		return err
	}
	outcome, err := m.account.FunctionCall(ctx, tokenID, "ft_transfer_call",
		map[string]interface{}{"receiver_id": m.contract, "amount": amount, "msg": ""},
		client.MaxGas, oneYocto, client.ModeAwait)
	if err != nil {
		return err
	}
	m.log.Info().
		Str("token", string(tokenID)).
		Str("amount", amount).
		Str("tx_hash", outcome.Hash).
		Msg("token deposited")
	return nil
}

// DepositNFT moves an NFT into the verifying contract.
func (m *Manager) DepositNFT(ctx context.Context, contractID near.AccountID, tokenID string) error {
	outcome, err := m.account.FunctionCall(ctx, contractID, "nft_transfer_call",
		map[string]interface{}{"token_id": tokenID, "receiver_id": m.contract, "msg": ""},
		client.MaxGas, oneYocto, client.ModeAwait)
	if err != nil {
		return err
	}
	m.log.Info().
		Str("contract", string(contractID)).
		Str("token_id", tokenID).
		Str("tx_hash", outcome.Hash).
		Msg("nft deposited")
	return nil
}
