// Package signer holds private key material and produces transaction
// signatures. A Signer owns exactly one ed25519 key; a KeyPool multiplexes
// several signers over one account so independent keys can submit
// transactions concurrently without nonce contention.
package signer

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/herelabs/go-near/model/near"
)

// Signer wraps one ed25519 private key. It is the only component that ever
// sees key material; everything else works with public keys and signatures.
type Signer struct {
	priv ed25519.PrivateKey
	pub  near.PublicKey
}

// FromSeed builds a signer from raw key bytes: either the 32-byte seed or
// the 64-byte expanded private key.
func FromSeed(raw []byte) (*Signer, error) {
	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("invalid private key length: got %d, want %d or %d",
			len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
	pub, err := near.PublicKeyFromBytes(priv.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}
	return &Signer{priv: priv, pub: pub}, nil
}

// ParseKey builds a signer from the "ed25519:<base58>" encoding of a private
// key. An invalid encoding is a decode error, never a silent zero key.
func ParseKey(encoded string) (*Signer, error) {
	raw, err := base58.Decode(strings.TrimPrefix(encoded, near.ED25519Prefix))
	if err != nil {
		return nil, fmt.Errorf("could not decode private key: %w", err)
	}
	return FromSeed(raw)
}

// PublicKey returns the public key derived from the held private key.
func (s *Signer) PublicKey() near.PublicKey {
	return s.pub
}

// SecretString returns the "ed25519:<base58>" encoding of the expanded
// private key, the form accepted by ParseKey and by other NEAR tooling.
func (s *Signer) SecretString() string {
	return near.ED25519Prefix + base58.Encode(s.priv)
}

// Sign signs an arbitrary byte payload. For transactions the payload is the
// SHA-256 hash of the serialized body, not the body itself.
func (s *Signer) Sign(payload []byte) near.Signature {
	raw := ed25519.Sign(s.priv, payload)
	var sig near.Signature
	sig.KeyType = near.KeyTypeED25519
	copy(sig.Data[:], raw)
	return sig
}

// Verify reports whether sig is a valid signature of payload under this
// signer's public key.
func (s *Signer) Verify(payload []byte, sig near.Signature) bool {
	return ed25519.Verify(s.priv.Public().(ed25519.PublicKey), payload, sig.Data[:])
}

// KeyPool is a fixed set of signers checked out one at a time. Get blocks
// until a signer is free; Put must return it afterwards, including on
// failed submissions.
type KeyPool struct {
	free    chan *Signer
	byPK    map[string]*Signer
	signers []*Signer
}

// NewKeyPool builds a pool over the given signers. At least one is required.
func NewKeyPool(signers ...*Signer) (*KeyPool, error) {
	if len(signers) == 0 {
		return nil, fmt.Errorf("key pool requires at least one signer")
	}
	p := &KeyPool{
		free:    make(chan *Signer, len(signers)),
		byPK:    make(map[string]*Signer, len(signers)),
		signers: signers,
	}
	for _, s := range signers {
		p.free <- s
		p.byPK[s.PublicKey().String()] = s
	}
	return p, nil
}

// Get checks out a free signer, blocking until one is available or the
// context is done.
func (p *KeyPool) Get(ctx context.Context) (*Signer, error) {
	select {
	case s := <-p.free:
		return s, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Put returns a signer to the pool.
func (p *KeyPool) Put(s *Signer) {
	p.free <- s
}

// ByPublicKey returns the signer holding the key encoded as pk, if any.
func (p *KeyPool) ByPublicKey(pk string) (*Signer, bool) {
	s, ok := p.byPK[pk]
	return s, ok
}

// First returns the pool's first signer. Used for operations that do not
// care which key signs, such as delegate actions with no explicit key.
func (p *KeyPool) First() *Signer {
	return p.signers[0]
}

// Size returns the number of signers in the pool.
func (p *KeyPool) Size() int {
	return len(p.signers)
}
