// Package intents builds, signs, and routes signed intents for the NEAR
// intents contract. Intents travel off-chain through a solver relay (HTTP
// JSON-RPC plus a WebSocket quote channel) and settle on-chain via the
// verifying contract.
package intents

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"time"
)

// Well-known mainnet defaults. Both are overridable per Manager.
const (
	DefaultContract = "intents.near"
	DefaultRelayURL = "https://solver-relay-v2.chaindefuser.com/rpc"
	DefaultRelayWSS = "wss://solver-relay-v2.chaindefuser.com/ws"
	defaultMtToken  = "v2_1.omni.hot.tg"
	deadlineLayout  = "2006-01-02T15:04:05.000Z"
)

// Intent is one atomic operation inside a signed payload. Concrete variants
// marshal to the wire shape the verifying contract expects, discriminated by
// their "intent" field.
type Intent interface {
	// Kind returns the wire discriminator ("transfer", "token_diff", ...).
	Kind() string
}

// Transfer moves tokens held inside the intents contract to another account.
type Transfer struct {
	Intent     string            `json:"intent"`
	ReceiverID string            `json:"receiver_id"`
	Tokens     map[string]string `json:"tokens"`
	Memo       string            `json:"memo,omitempty"`
}

func (t *Transfer) Kind() string { return "transfer" }

// NewTransfer builds a transfer intent for the given token amounts.
func NewTransfer(receiverID string, tokens map[string]string, memo string) *Transfer {
	return &Transfer{Intent: "transfer", ReceiverID: receiverID, Tokens: tokens, Memo: memo}
}

// TokenDiff declares the balance delta the signer accepts: positive amounts
// are received, negative amounts are given up. A counterparty with the
// mirrored diff completes the swap.
type TokenDiff struct {
	Intent   string            `json:"intent"`
	Diff     map[string]string `json:"diff"`
	Referral string            `json:"referral,omitempty"`
}

func (t *TokenDiff) Kind() string { return "token_diff" }

func NewTokenDiff(diff map[string]string, referral string) *TokenDiff {
	return &TokenDiff{Intent: "token_diff", Diff: diff, Referral: referral}
}

// AddPublicKey registers an additional signing key with the intents contract.
type AddPublicKey struct {
	Intent    string `json:"intent"`
	PublicKey string `json:"public_key"`
}

func (a *AddPublicKey) Kind() string { return "add_public_key" }

func NewAddPublicKey(publicKey string) *AddPublicKey {
	return &AddPublicKey{Intent: "add_public_key", PublicKey: publicKey}
}

// AuthCall invokes a contract method with the intents contract as the
// authenticated caller.
type AuthCall struct {
	Intent          string `json:"intent"`
	ContractID      string `json:"contract_id"`
	Msg             string `json:"msg"`
	AttachedDeposit string `json:"attached_deposit"`
	MinGas          string `json:"min_gas,omitempty"`
}

func (a *AuthCall) Kind() string { return "auth_call" }

func NewAuthCall(contractID, msg, attachedDeposit, minGas string) *AuthCall {
	if attachedDeposit == "" {
		attachedDeposit = "0"
	}
	return &AuthCall{
		Intent:          "auth_call",
		ContractID:      contractID,
		Msg:             msg,
		AttachedDeposit: attachedDeposit,
		MinGas:          minGas,
	}
}

// FtWithdraw moves a fungible token out of the intents contract back to a
// NEAR account.
type FtWithdraw struct {
	Intent     string `json:"intent"`
	Token      string `json:"token"`
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo,omitempty"`
	Msg        string `json:"msg,omitempty"`
}

func (f *FtWithdraw) Kind() string { return "ft_withdraw" }

func NewFtWithdraw(token, receiverID, amount string) *FtWithdraw {
	return &FtWithdraw{Intent: "ft_withdraw", Token: token, ReceiverID: receiverID, Amount: amount}
}

// MtWithdraw withdraws one or more multi-token balances in a single intent.
type MtWithdraw struct {
	Intent     string   `json:"intent"`
	Token      string   `json:"token"`
	ReceiverID string   `json:"receiver_id"`
	TokenIDs   []string `json:"token_ids"`
	Amounts    []string `json:"amounts"`
	Memo       string   `json:"memo,omitempty"`
	Msg        string   `json:"msg,omitempty"`
}

func (m *MtWithdraw) Kind() string { return "mt_withdraw" }

func NewMtWithdraw(token, receiverID string, tokenIDs, amounts []string, msg string) *MtWithdraw {
	if token == "" {
		token = defaultMtToken
	}
	return &MtWithdraw{
		Intent:     "mt_withdraw",
		Token:      token,
		ReceiverID: receiverID,
		TokenIDs:   tokenIDs,
		Amounts:    amounts,
		Msg:        msg,
	}
}

// NftWithdraw withdraws a single NFT from the intents contract.
type NftWithdraw struct {
	Intent     string `json:"intent"`
	Token      string `json:"token"`
	TokenID    string `json:"token_id"`
	ReceiverID string `json:"receiver_id"`
	Memo       string `json:"memo,omitempty"`
	Msg        string `json:"msg,omitempty"`
}

func (n *NftWithdraw) Kind() string { return "nft_withdraw" }

func NewNftWithdraw(token, tokenID, receiverID, msg string) *NftWithdraw {
	return &NftWithdraw{Intent: "nft_withdraw", Token: token, TokenID: tokenID, ReceiverID: receiverID, Msg: msg}
}

// NativeWithdraw withdraws native NEAR back to an account.
type NativeWithdraw struct {
	Intent     string `json:"intent"`
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo,omitempty"`
}

func (n *NativeWithdraw) Kind() string { return "native_withdraw" }

func NewNativeWithdraw(receiverID, amount, memo string) *NativeWithdraw {
	return &NativeWithdraw{Intent: "native_withdraw", ReceiverID: receiverID, Amount: amount, Memo: memo}
}

// Quote is the unsigned payload: who signs, which contract verifies, the
// replay nonce, the expiry deadline, and the ordered intent list.
type Quote struct {
	SignerID          string   `json:"signer_id"`
	VerifyingContract string   `json:"verifying_contract,omitempty"`
	Deadline          string   `json:"deadline"`
	Nonce             string   `json:"nonce"`
	Intents           []Intent `json:"intents"`
}

// Commitment is a signed quote in the shape the relay and the verifying
// contract accept. Payload carries the exact JSON the signature covers.
type Commitment struct {
	Standard  string `json:"standard"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key,omitempty"`
}

// GenerateNonce returns a base64 replay nonce: SHA-256 of the seed when one
// is given, 32 random bytes otherwise. Seeded nonces let callers make intent
// submission idempotent.
func GenerateNonce(seed string) string {
	var data [32]byte
	if seed != "" {
		data = sha256.Sum256([]byte(seed))
	} else {
		if _, err := rand.Read(data[:]); err != nil {
			panic(err)
		}
	}
	return base64.StdEncoding.EncodeToString(data[:])
}

// Deadline formats an expiry the given duration from now, UTC with
// millisecond precision as the verifying contract expects.
func Deadline(d time.Duration) string {
	return time.Now().UTC().Add(d).Format(deadlineLayout)
}
