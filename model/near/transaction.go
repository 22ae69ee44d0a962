package near

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"

	"github.com/herelabs/go-near/model/encoding/borsh"
)

// BlockHashSize is the length of a block hash referenced by a transaction.
const BlockHashSize = 32

// BlockHash references a recent block. The node rejects a transaction whose
// block hash is older than roughly 50 blocks at submission time.
type BlockHash [BlockHashSize]byte

// ParseBlockHash decodes a base58 block hash string as reported by a node.
func ParseBlockHash(s string) (BlockHash, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return BlockHash{}, fmt.Errorf("invalid block hash base58: %w", err)
	}
	if len(raw) != BlockHashSize {
		return BlockHash{}, fmt.Errorf("invalid block hash length: got %d, want %d", len(raw), BlockHashSize)
	}
	var h BlockHash
	copy(h[:], raw)
	return h, nil
}

func (h BlockHash) String() string {
	return base58.Encode(h[:])
}

// Transaction is the unsigned transaction body. The nonce must be strictly
// greater than the last nonce the chain observed for (SignerID, PublicKey).
type Transaction struct {
	SignerID   AccountID
	PublicKey  PublicKey
	Nonce      uint64
	ReceiverID AccountID
	BlockHash  BlockHash
	Actions    []Action
}

func (tx *Transaction) EncodeBorsh(e *borsh.Encoder) {
	e.WriteString(string(tx.SignerID))
	tx.PublicKey.EncodeBorsh(e)
	e.WriteU64(tx.Nonce)
	e.WriteString(string(tx.ReceiverID))
	e.WriteFixedBytes(tx.BlockHash[:])
	e.WriteLen(len(tx.Actions))
	for _, a := range tx.Actions {
		a.EncodeBorsh(e)
	}
}

// Serialize returns the deterministic borsh encoding of the unsigned body.
func (tx *Transaction) Serialize() []byte {
	return borsh.Serialize(tx)
}

// Hash is the SHA-256 of the serialized unsigned body. This is the payload
// the signer signs and the identifier used to poll for the transaction.
func (tx *Transaction) Hash() [32]byte {
	return sha256.Sum256(tx.Serialize())
}

// HashString returns the base58 form of Hash, as accepted by the tx method.
func (tx *Transaction) HashString() string {
	h := tx.Hash()
	return base58.Encode(h[:])
}

// SignedTransaction wraps a transaction with its signature. A signed
// transaction is built once per submission attempt and discarded afterwards;
// reusing one across submissions would double-spend its nonce.
type SignedTransaction struct {
	Transaction Transaction
	Signature   Signature
}

func (stx *SignedTransaction) EncodeBorsh(e *borsh.Encoder) {
	stx.Transaction.EncodeBorsh(e)
	stx.Signature.EncodeBorsh(e)
}

// Serialize returns the borsh encoding submitted to broadcast methods
// (after base64 wrapping by the transport).
func (stx *SignedTransaction) Serialize() []byte {
	return borsh.Serialize(stx)
}

// delegateActionPrefix separates the NEP-461 signable message domain from
// ordinary transactions: 2^30 + 366, serialized as a u32 before the action.
// Signing under a distinct domain prevents a delegate signature from being
// replayed as a transaction signature and vice versa.
const delegateActionPrefix uint32 = (1 << 30) + 366

// DelegateAction authorizes a relayer to execute the inner actions on behalf
// of SenderID, paying for gas itself. Valid until MaxBlockHeight.
type DelegateAction struct {
	SenderID       AccountID
	ReceiverID     AccountID
	Actions        []Action
	Nonce          uint64
	MaxBlockHeight uint64
	PublicKey      PublicKey
}

func (d *DelegateAction) EncodeBorsh(e *borsh.Encoder) {
	e.WriteString(string(d.SenderID))
	e.WriteString(string(d.ReceiverID))
	e.WriteLen(len(d.Actions))
	for _, a := range d.Actions {
		a.EncodeBorsh(e)
	}
	e.WriteU64(d.Nonce)
	e.WriteU64(d.MaxBlockHeight)
	d.PublicKey.EncodeBorsh(e)
}

// SigningPayload returns the NEP-461 signable message: the domain prefix
// followed by the borsh encoding of the delegate action.
func (d *DelegateAction) SigningPayload() []byte {
	e := borsh.NewEncoder()
	e.WriteU32(delegateActionPrefix)
	d.EncodeBorsh(e)
	return e.Bytes()
}

// Hash is the SHA-256 of SigningPayload; this is what the delegating key
// signs.
func (d *DelegateAction) Hash() [32]byte {
	return sha256.Sum256(d.SigningPayload())
}
