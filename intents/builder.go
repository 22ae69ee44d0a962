package intents

import (
	"context"
	"math/big"
	"time"

	"github.com/pkg/errors"
)

const (
	// defaultDeadline bounds how long a signed payload stays valid.
	defaultDeadline = 600 * time.Second

	// mtWithdrawDeadline is the tighter window applied when a payload
	// carries a multi-token withdrawal.
	mtWithdrawDeadline = 60 * time.Second
)

// Builder accumulates intents and signing options, then freezes them into a
// signed Commitment. Accumulator methods return the builder for chaining; a
// builder is not safe for concurrent use.
type Builder struct {
	manager *Manager

	intents  []Intent
	diff     map[string]*big.Int
	nonce    string
	seed     string
	deadline time.Duration
	referral string
}

func newBuilder(m *Manager) *Builder {
	return &Builder{manager: m, diff: make(map[string]*big.Int)}
}

// Transfer appends a transfer of tokens held inside the intents contract.
func (b *Builder) Transfer(receiverID string, tokens map[string]string, memo string) *Builder {
	b.intents = append(b.intents, NewTransfer(receiverID, tokens, memo))
	return b
}

// TokenDiff appends an explicit balance-delta intent.
func (b *Builder) TokenDiff(diff map[string]string, referral string) *Builder {
	b.intents = append(b.intents, NewTokenDiff(diff, referral))
	return b
}

// Take accumulates an amount the signer wants to receive. Paired Take/Give
// calls collapse into a single aggregated token_diff intent at signing time.
func (b *Builder) Take(token string, amount *big.Int) *Builder {
	b.addDiff(token, amount)
	return b
}

// Give accumulates an amount the signer offers to pay.
func (b *Builder) Give(token string, amount *big.Int) *Builder {
	b.addDiff(token, new(big.Int).Neg(amount))
	return b
}

func (b *Builder) addDiff(token string, amount *big.Int) {
	cur, ok := b.diff[token]
	if !ok {
		cur = new(big.Int)
		b.diff[token] = cur
	}
	cur.Add(cur, amount)
}

// FtWithdraw appends a fungible-token withdrawal.
func (b *Builder) FtWithdraw(token, receiverID, amount string) *Builder {
	b.intents = append(b.intents, NewFtWithdraw(token, receiverID, amount))
	return b
}

// MtWithdraw appends a multi-token withdrawal. An empty token selects the
// default multi-token contract.
func (b *Builder) MtWithdraw(token, receiverID string, tokenIDs, amounts []string, msg string) *Builder {
	b.intents = append(b.intents, NewMtWithdraw(token, receiverID, tokenIDs, amounts, msg))
	return b
}

// NftWithdraw appends an NFT withdrawal.
func (b *Builder) NftWithdraw(token, tokenID, receiverID, msg string) *Builder {
	b.intents = append(b.intents, NewNftWithdraw(token, tokenID, receiverID, msg))
	return b
}

// NativeWithdraw appends a native NEAR withdrawal.
func (b *Builder) NativeWithdraw(receiverID, amount, memo string) *Builder {
	b.intents = append(b.intents, NewNativeWithdraw(receiverID, amount, memo))
	return b
}

// AuthCall appends an authenticated contract call.
func (b *Builder) AuthCall(contractID, msg, attachedDeposit, minGas string) *Builder {
	b.intents = append(b.intents, NewAuthCall(contractID, msg, attachedDeposit, minGas))
	return b
}

// WithNonce pins the replay nonce instead of generating a random one.
func (b *Builder) WithNonce(nonce string) *Builder {
	b.nonce = nonce
	return b
}

// WithSeed derives the nonce from the seed, making the payload idempotent.
// Takes precedence over WithNonce.
func (b *Builder) WithSeed(seed string) *Builder {
	b.seed = seed
	return b
}

// WithDeadline overrides the default validity window.
func (b *Builder) WithDeadline(d time.Duration) *Builder {
	b.deadline = d
	return b
}

// WithReferral tags the aggregated token_diff intent with a referral id.
func (b *Builder) WithReferral(referral string) *Builder {
	b.referral = referral
	return b
}

// Intents returns the accumulated list, with any pending Take/Give deltas
// folded into a trailing token_diff intent. Zero deltas are dropped.
func (b *Builder) Intents() []Intent {
	intents := b.intents
	diff := make(map[string]string, len(b.diff))
	for token, amount := range b.diff {
		if amount.Sign() != 0 {
			diff[token] = amount.String()
		}
	}
	if len(diff) > 0 {
		intents = append(intents, NewTokenDiff(diff, b.referral))
	}
	return intents
}

// MatchedTokenDiff returns the mirror of the accumulated Take/Give deltas,
// the intent a counterparty signs to complete the swap.
func (b *Builder) MatchedTokenDiff() *TokenDiff {
	diff := make(map[string]string, len(b.diff))
	for token, amount := range b.diff {
		diff[token] = new(big.Int).Neg(amount).String()
	}
	return NewTokenDiff(diff, b.referral)
}

// Quote freezes the accumulated intents into an unsigned payload.
func (b *Builder) Quote() (*Quote, error) {
	intents := b.Intents()
	if len(intents) == 0 {
		return nil, errors.New("intents: nothing to sign")
	}

	nonce := b.nonce
	if b.seed != "" || nonce == "" {
		nonce = GenerateNonce(b.seed)
	}

	deadline := b.deadline
	if deadline == 0 {
		deadline = defaultDeadline
		for _, it := range intents {
			if it.Kind() == "mt_withdraw" {
				deadline = mtWithdrawDeadline
				break
			}
		}
	}

	return &Quote{
		SignerID:          string(b.manager.account.AccountID()),
		VerifyingContract: string(b.manager.contract),
		Deadline:          Deadline(deadline),
		Nonce:             nonce,
		Intents:           intents,
	}, nil
}

// Sign freezes and signs the payload.
func (b *Builder) Sign() (*Commitment, error) {
	quote, err := b.Quote()
	if err != nil {
		return nil, err
	}
	return b.manager.SignQuote(quote)
}

// Submit signs the payload and publishes it to the relay, returning the
// intent hash.
func (b *Builder) Submit(ctx context.Context) (string, error) {
	commitment, err := b.Sign()
	if err != nil {
		return "", err
	}
	hashes, err := b.manager.PublishIntents(ctx, []*Commitment{commitment}, nil)
	if err != nil {
		return "", err
	}
	return hashes[0], nil
}
