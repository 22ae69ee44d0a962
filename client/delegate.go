package client

import (
	"context"
	"fmt"

	"github.com/herelabs/go-near/model/near"
)

// Delegate (meta) transactions let a relayer pay for and broadcast a
// transaction on behalf of this account. Construction and signing are
// separate steps so the unsigned action can travel to another party.

// CreateDelegateAction builds an unsigned delegate action executing actions
// on receiverID on behalf of this account. publicKey selects the delegating
// key; empty selects the pool's first key. The action consumes a nonce from
// the coordinator and stays valid for delegateValidityWindow blocks.
func (a *Account) CreateDelegateAction(ctx context.Context, receiverID near.AccountID, actions []near.Action, publicKey string) (*near.DelegateAction, error) {
	if a.pool == nil {
		return nil, fmt.Errorf("account %s has no signing keys", a.accountID)
	}
	s := a.pool.First()
	if publicKey != "" {
		var ok bool
		s, ok = a.pool.ByPublicKey(publicKey)
		if !ok {
			return nil, fmt.Errorf("public key %s not found in signer pool", publicKey)
		}
	}

	pk := s.PublicKey()
	nextNonce, err := a.coord.Reserve(ctx, pk.String())
	if err != nil {
		return nil, err
	}
	_, height, err := a.coord.BlockInfo(ctx)
	if err != nil {
		return nil, err
	}

	return &near.DelegateAction{
		SenderID:       a.accountID,
		ReceiverID:     receiverID,
		Actions:        actions,
		Nonce:          nextNonce,
		MaxBlockHeight: height + delegateValidityWindow,
		PublicKey:      pk,
	}, nil
}

// SignDelegateAction signs a delegate action's NEP-461 hash with the pool
// signer holding the action's public key. The hash domain is distinct from
// ordinary transactions, so the signature cannot be replayed as one.
func (a *Account) SignDelegateAction(delegate *near.DelegateAction) (near.Signature, error) {
	if a.pool == nil {
		return near.Signature{}, fmt.Errorf("account %s has no signing keys", a.accountID)
	}
	s, ok := a.pool.ByPublicKey(delegate.PublicKey.String())
	if !ok {
		return near.Signature{}, fmt.Errorf("public key %s not found in signer pool", delegate.PublicKey)
	}
	hash := delegate.Hash()
	return s.Sign(hash[:]), nil
}

// SubmitDelegateAction wraps an externally signed delegate action into a
// transaction paid for by this account and submits it. This is the relayer
// side of the meta-transaction flow: the receiver of the outer transaction
// is the delegating account.
func (a *Account) SubmitDelegateAction(ctx context.Context, delegate near.DelegateAction, sig near.Signature, mode SubmitMode) (*Outcome, error) {
	action := near.SignedDelegateAction(delegate, sig)
	return a.SignAndSubmit(ctx, delegate.SenderID, []near.Action{action}, mode)
}
