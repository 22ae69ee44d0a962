package near

import (
	"fmt"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/herelabs/go-near/model/encoding/borsh"
)

// KeyTypeED25519 is the only key type the protocol currently assigns. It is
// encoded as the key-type discriminant of public keys and signatures.
const KeyTypeED25519 uint8 = 0

// ED25519Prefix is the human-readable prefix of encoded keys and signatures.
const ED25519Prefix = "ed25519:"

const (
	PublicKeySize = 32
	SignatureSize = 64
)

// PublicKey is a key-type tag plus the raw 32-byte ed25519 public key.
type PublicKey struct {
	KeyType uint8
	Data    [PublicKeySize]byte
}

// ParsePublicKey decodes a public key from its "ed25519:<base58>" form.
// The prefix is optional; a bad base58 payload or wrong length is an error,
// never a silently zeroed key.
func ParsePublicKey(s string) (PublicKey, error) {
	raw, err := decodePrefixed(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("could not parse public key: %w", err)
	}
	return PublicKeyFromBytes(raw)
}

// PublicKeyFromBytes wraps a raw 32-byte ed25519 public key.
func PublicKeyFromBytes(raw []byte) (PublicKey, error) {
	if len(raw) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("invalid public key length: got %d, want %d", len(raw), PublicKeySize)
	}
	var pk PublicKey
	pk.KeyType = KeyTypeED25519
	copy(pk.Data[:], raw)
	return pk, nil
}

// String returns the "ed25519:<base58>" encoding used on the wire.
func (pk PublicKey) String() string {
	return ED25519Prefix + base58.Encode(pk.Data[:])
}

func (pk PublicKey) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(pk.KeyType)
	e.WriteFixedBytes(pk.Data[:])
}

// Signature is a key-type tag plus a 64-byte ed25519 signature.
type Signature struct {
	KeyType uint8
	Data    [SignatureSize]byte
}

// ParseSignature decodes a signature from its "ed25519:<base58>" form.
func ParseSignature(s string) (Signature, error) {
	raw, err := decodePrefixed(s)
	if err != nil {
		return Signature{}, fmt.Errorf("could not parse signature: %w", err)
	}
	return SignatureFromBytes(raw)
}

// SignatureFromBytes wraps a raw 64-byte ed25519 signature.
func SignatureFromBytes(raw []byte) (Signature, error) {
	if len(raw) != SignatureSize {
		return Signature{}, fmt.Errorf("invalid signature length: got %d, want %d", len(raw), SignatureSize)
	}
	var sig Signature
	sig.KeyType = KeyTypeED25519
	copy(sig.Data[:], raw)
	return sig, nil
}

func (sig Signature) String() string {
	return ED25519Prefix + base58.Encode(sig.Data[:])
}

func (sig Signature) EncodeBorsh(e *borsh.Encoder) {
	e.WriteEnumTag(sig.KeyType)
	e.WriteFixedBytes(sig.Data[:])
}

func decodePrefixed(s string) ([]byte, error) {
	raw, err := base58.Decode(strings.TrimPrefix(s, ED25519Prefix))
	if err != nil {
		return nil, fmt.Errorf("invalid base58 payload: %w", err)
	}
	return raw, nil
}
