// Package borsh implements the subset of the Borsh binary format needed to
// serialize transactions for submission: little-endian fixed-width integers,
// u32 length-prefixed strings, byte slices and sequences, single-byte enum
// discriminants and single-byte option tags.
//
// Encoding is one-way. Nodes never return borsh payloads to a client, so no
// decoder is provided. The contract that matters is determinism: encoding the
// same value twice yields byte-identical output.
package borsh

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"
)

// Encoder accumulates a borsh-encoded payload.
//
// Write methods never fail: the underlying buffer cannot error and any
// out-of-range value is a programmer error, reported by panicking rather
// than returned, matching the fail-fast contract of the codec.
type Encoder struct {
	buf bytes.Buffer
}

func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded payload accumulated so far.
func (e *Encoder) Bytes() []byte {
	return e.buf.Bytes()
}

func (e *Encoder) WriteU8(v uint8) {
	e.buf.WriteByte(v)
}

func (e *Encoder) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *Encoder) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// WriteU128 encodes a non-negative integer as 16 little-endian bytes.
// Panics if v is negative or does not fit in 128 bits.
func (e *Encoder) WriteU128(v *big.Int) {
	if v == nil {
		v = big.NewInt(0)
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		panic(fmt.Sprintf("borsh: value out of u128 range: %s", v))
	}
	be := v.Bytes() // big-endian, no leading zeros
	var b [16]byte
	for i, x := range be {
		b[len(be)-1-i] = x
	}
	e.buf.Write(b[:])
}

// WriteString encodes a UTF-8 string with a u32 length prefix.
func (e *Encoder) WriteString(s string) {
	e.WriteU32(uint32(len(s)))
	e.buf.WriteString(s)
}

// WriteBytes encodes a variable-length byte slice with a u32 length prefix.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteU32(uint32(len(b)))
	e.buf.Write(b)
}

// WriteFixedBytes encodes b with no length prefix. The length is part of the
// schema (e.g. 32-byte hashes and keys).
func (e *Encoder) WriteFixedBytes(b []byte) {
	e.buf.Write(b)
}

// WriteEnumTag encodes a tagged-union discriminant as a single byte. Variant
// order is fixed by the on-chain schema declaration order.
func (e *Encoder) WriteEnumTag(tag uint8) {
	e.buf.WriteByte(tag)
}

// WriteOption writes the single-byte presence tag. The caller encodes the
// payload itself when present is true.
func (e *Encoder) WriteOption(present bool) {
	if present {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// WriteLen writes the u32 element count prefix for a sequence. A zero-length
// sequence still writes the prefix.
func (e *Encoder) WriteLen(n int) {
	e.WriteU32(uint32(n))
}

// Serializable is implemented by types that know their borsh layout.
type Serializable interface {
	EncodeBorsh(e *Encoder)
}

// Serialize encodes v into a fresh buffer and returns the bytes.
func Serialize(v Serializable) []byte {
	e := NewEncoder()
	v.EncodeBorsh(e)
	return e.Bytes()
}
