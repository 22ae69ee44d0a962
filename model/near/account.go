package near

import (
	"fmt"
	"math/big"
	"regexp"
)

// AccountID is a human-readable NEAR account identifier ("alice.near").
type AccountID string

// Account id rules enforced by the protocol: 2-64 characters of lowercase
// alphanumerics separated by single '-', '_' or '.'.
var accountIDPattern = regexp.MustCompile(`^(([a-z\d]+[-_])*[a-z\d]+\.)*([a-z\d]+[-_])*[a-z\d]+$`)

const (
	MinAccountIDLen = 2
	MaxAccountIDLen = 64
)

func (id AccountID) String() string {
	return string(id)
}

// Validate reports whether the account id is well-formed. The node performs
// the authoritative check; this catches obvious mistakes before a round-trip.
func (id AccountID) Validate() error {
	if len(id) < MinAccountIDLen || len(id) > MaxAccountIDLen {
		return fmt.Errorf("account id %q length out of range [%d, %d]", id, MinAccountIDLen, MaxAccountIDLen)
	}
	if !accountIDPattern.MatchString(string(id)) {
		return fmt.Errorf("account id %q is malformed", id)
	}
	return nil
}

// Balance is an amount of native tokens in yoctoNEAR (10^-24 NEAR). Amounts
// routinely exceed 64 bits, so they travel as big integers and are rendered
// as decimal strings on the wire.
type Balance = *big.Int

// Yocto returns n yoctoNEAR as a Balance.
func Yocto(n uint64) Balance {
	return new(big.Int).SetUint64(n)
}

// ParseBalance parses a decimal yoctoNEAR string as returned by RPC nodes.
func ParseBalance(s string) (Balance, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid balance string %q", s)
	}
	return v, nil
}

// AccountView is the state of an account as reported by a view_account query.
type AccountView struct {
	Amount        string `json:"amount"`
	Locked        string `json:"locked"`
	CodeHash      string `json:"code_hash"`
	StorageUsage  uint64 `json:"storage_usage"`
	StoragePaidAt uint64 `json:"storage_paid_at"`
	BlockHeight   uint64 `json:"block_height"`
	BlockHash     string `json:"block_hash"`
}
