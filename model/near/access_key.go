package near

import (
	"encoding/json"
	"fmt"

	"github.com/herelabs/go-near/model/encoding/borsh"
)

// AccessKey binds a public key to an account with a permission scope and a
// nonce counter. One access key exists per (account, public key) pair.
type AccessKey struct {
	Nonce      uint64
	Permission AccessKeyPermission
}

// AccessKeyPermission is either full access or a function-call restriction.
// Exactly one of the variants is set.
type AccessKeyPermission struct {
	FullAccess   bool
	FunctionCall *FunctionCallPermission
}

// FunctionCallPermission restricts a key to gas-only calls of the named
// methods on a single receiver. A nil Allowance means unlimited allowance.
type FunctionCallPermission struct {
	Allowance   Balance
	ReceiverID  AccountID
	MethodNames []string
}

// FullAccessKey returns a fresh access key with full permissions.
func FullAccessKey() AccessKey {
	return AccessKey{Permission: AccessKeyPermission{FullAccess: true}}
}

// FunctionCallAccessKey returns a fresh access key limited to calling the
// given methods on receiver with the given allowance.
func FunctionCallAccessKey(receiver AccountID, methodNames []string, allowance Balance) AccessKey {
	return AccessKey{
		Permission: AccessKeyPermission{
			FunctionCall: &FunctionCallPermission{
				Allowance:   allowance,
				ReceiverID:  receiver,
				MethodNames: methodNames,
			},
		},
	}
}

// Permission discriminants in schema declaration order.
const (
	permTagFunctionCall uint8 = 0
	permTagFullAccess   uint8 = 1
)

func (k AccessKey) EncodeBorsh(e *borsh.Encoder) {
	e.WriteU64(k.Nonce)
	if fc := k.Permission.FunctionCall; fc != nil {
		e.WriteEnumTag(permTagFunctionCall)
		e.WriteOption(fc.Allowance != nil)
		if fc.Allowance != nil {
			e.WriteU128(fc.Allowance)
		}
		e.WriteString(string(fc.ReceiverID))
		e.WriteLen(len(fc.MethodNames))
		for _, m := range fc.MethodNames {
			e.WriteString(m)
		}
		return
	}
	e.WriteEnumTag(permTagFullAccess)
}

// AccessKeyView is an access key as returned by a view_access_key query.
// The permission field is either the string "FullAccess" or a single-key
// object {"FunctionCall": {...}}.
type AccessKeyView struct {
	Nonce       uint64
	BlockHeight uint64
	BlockHash   string
	Permission  AccessKeyPermission
}

type functionCallPermissionJSON struct {
	Allowance   *string  `json:"allowance"`
	ReceiverID  string   `json:"receiver_id"`
	MethodNames []string `json:"method_names"`
}

func (v *AccessKeyView) UnmarshalJSON(data []byte) error {
	var raw struct {
		Nonce       uint64          `json:"nonce"`
		BlockHeight uint64          `json:"block_height"`
		BlockHash   string          `json:"block_hash"`
		Permission  json.RawMessage `json:"permission"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Nonce = raw.Nonce
	v.BlockHeight = raw.BlockHeight
	v.BlockHash = raw.BlockHash

	var s string
	if err := json.Unmarshal(raw.Permission, &s); err == nil {
		if s != "FullAccess" {
			return fmt.Errorf("unknown access key permission %q", s)
		}
		v.Permission = AccessKeyPermission{FullAccess: true}
		return nil
	}
	var obj struct {
		FunctionCall *functionCallPermissionJSON `json:"FunctionCall"`
	}
	if err := json.Unmarshal(raw.Permission, &obj); err != nil {
		return fmt.Errorf("could not decode access key permission: %w", err)
	}
	if obj.FunctionCall == nil {
		return fmt.Errorf("unknown access key permission variant: %s", raw.Permission)
	}
	fc := &FunctionCallPermission{
		ReceiverID:  AccountID(obj.FunctionCall.ReceiverID),
		MethodNames: obj.FunctionCall.MethodNames,
	}
	if obj.FunctionCall.Allowance != nil {
		allowance, err := ParseBalance(*obj.FunctionCall.Allowance)
		if err != nil {
			return fmt.Errorf("could not decode access key allowance: %w", err)
		}
		fc.Allowance = allowance
	}
	v.Permission = AccessKeyPermission{FunctionCall: fc}
	return nil
}

// AccessKeyList is the result of a view_access_key_list query.
type AccessKeyList struct {
	Keys []AccessKeyInfo `json:"keys"`
}

// AccessKeyInfo pairs a public key with its access key state.
type AccessKeyInfo struct {
	PublicKey string        `json:"public_key"`
	AccessKey AccessKeyView `json:"access_key"`
}
