package near

import (
	"encoding/json"
	"fmt"
)

// The chain reports execution failures as nested single-key objects whose
// keys name an error kind and whose values carry the kind's arguments, e.g.
//
//	{"ActionError": {"index": 0, "kind": {"AccountAlreadyExists": {"account_id": "a.near"}}}}
//
// The taxonomy below is a closed set of variants with explicitly named
// fields matching the documented argument shapes. Unknown kinds never fail
// parsing: they fall back to UnclassifiedError carrying the raw body.

// ExecutionError marks errors raised by on-chain execution, as opposed to
// transport or protocol failures.
type ExecutionError interface {
	error
	executionError()
}

// AccountAlreadyExistsError - the account a CreateAccount action targeted
// already exists. Not retryable.
type AccountAlreadyExistsError struct {
	AccountID AccountID `json:"account_id"`
}

func (e *AccountAlreadyExistsError) Error() string {
	return fmt.Sprintf("account %s already exists", e.AccountID)
}

// AccountDoesNotExistError - the referenced account has not been created or
// has been deleted.
type AccountDoesNotExistError struct {
	AccountID AccountID `json:"account_id"`
}

func (e *AccountDoesNotExistError) Error() string {
	return fmt.Sprintf("account %s does not exist", e.AccountID)
}

// CreateAccountNotAllowedError - the predecessor is not allowed to create
// the requested account id (wrong namespace).
type CreateAccountNotAllowedError struct {
	AccountID     AccountID `json:"account_id"`
	PredecessorID AccountID `json:"predecessor_id"`
}

func (e *CreateAccountNotAllowedError) Error() string {
	return fmt.Sprintf("%s is not allowed to create account %s", e.PredecessorID, e.AccountID)
}

// ActorNoPermissionError - the actor lacks permission to perform the action
// on the account.
type ActorNoPermissionError struct {
	AccountID AccountID `json:"account_id"`
	ActorID   AccountID `json:"actor_id"`
}

func (e *ActorNoPermissionError) Error() string {
	return fmt.Sprintf("actor %s has no permission on account %s", e.ActorID, e.AccountID)
}

// DeleteKeyDoesNotExistError - a DeleteKey action referenced a key the
// account does not hold.
type DeleteKeyDoesNotExistError struct {
	AccountID AccountID `json:"account_id"`
	PublicKey string    `json:"public_key"`
}

func (e *DeleteKeyDoesNotExistError) Error() string {
	return fmt.Sprintf("account %s does not hold key %s", e.AccountID, e.PublicKey)
}

// AddKeyAlreadyExistsError - an AddKey action tried to add a key the
// receiver already holds.
type AddKeyAlreadyExistsError struct {
	AccountID AccountID `json:"account_id"`
	PublicKey string    `json:"public_key"`
}

func (e *AddKeyAlreadyExistsError) Error() string {
	return fmt.Sprintf("account %s already holds key %s", e.AccountID, e.PublicKey)
}

// DeleteAccountStakingError - an account with staked balance cannot be
// deleted.
type DeleteAccountStakingError struct {
	AccountID AccountID `json:"account_id"`
}

func (e *DeleteAccountStakingError) Error() string {
	return fmt.Sprintf("account %s is staking and cannot be deleted", e.AccountID)
}

// TriesToUnstakeError - the account is not staked.
type TriesToUnstakeError struct {
	AccountID AccountID `json:"account_id"`
}

func (e *TriesToUnstakeError) Error() string {
	return fmt.Sprintf("account %s is not staked", e.AccountID)
}

// TriesToStakeError - insufficient liquid balance to cover the requested
// stake. Fix the request and retry.
type TriesToStakeError struct {
	AccountID AccountID `json:"account_id"`
	Stake     string    `json:"stake"`
	Locked    string    `json:"locked"`
	Balance   string    `json:"balance"`
}

func (e *TriesToStakeError) Error() string {
	return fmt.Sprintf("account %s has balance %s, cannot stake %s", e.AccountID, e.Balance, e.Stake)
}

// LackBalanceForStateError - the account cannot cover the storage its state
// occupies.
type LackBalanceForStateError struct {
	SignerID AccountID `json:"signer_id"`
	Amount   string    `json:"amount"`
}

func (e *LackBalanceForStateError) Error() string {
	return fmt.Sprintf("account %s lacks %s to cover its storage", e.SignerID, e.Amount)
}

// FunctionCallErrorKind - the called contract failed. The raw panic message
// is preserved verbatim for programmatic handling.
type FunctionCallErrorKind struct {
	ExecutionError string          `json:"ExecutionError"`
	Raw            json.RawMessage `json:"-"`
}

func (e *FunctionCallErrorKind) Error() string {
	if e.ExecutionError != "" {
		return fmt.Sprintf("function call failed: %s", e.ExecutionError)
	}
	return fmt.Sprintf("function call failed: %s", e.Raw)
}

// NewReceiptValidationError - a receipt spawned by the transaction failed
// validation.
type NewReceiptValidationError struct {
	Raw json.RawMessage `json:"-"`
}

func (e *NewReceiptValidationError) Error() string {
	return fmt.Sprintf("receipt validation failed: %s", e.Raw)
}

// InvalidNonceError - the transaction nonce is not strictly greater than the
// access key nonce. The local nonce cache must resync before retrying.
type InvalidNonceError struct {
	TxNonce uint64 `json:"tx_nonce"`
	AkNonce uint64 `json:"ak_nonce"`
}

func (e *InvalidNonceError) Error() string {
	return fmt.Sprintf("invalid nonce: tx nonce %d, access key nonce %d", e.TxNonce, e.AkNonce)
}

// InvalidAccessKeyError - the access key does not permit this transaction.
type InvalidAccessKeyError struct {
	Raw json.RawMessage `json:"-"`
}

func (e *InvalidAccessKeyError) Error() string {
	return fmt.Sprintf("invalid access key: %s", e.Raw)
}

// InvalidSignerIDError - the signer account id is malformed.
type InvalidSignerIDError struct {
	SignerID AccountID `json:"signer_id"`
}

func (e *InvalidSignerIDError) Error() string {
	return fmt.Sprintf("invalid signer id %q", e.SignerID)
}

// SignerDoesNotExistError - the signer account does not exist.
type SignerDoesNotExistError struct {
	SignerID AccountID `json:"signer_id"`
}

func (e *SignerDoesNotExistError) Error() string {
	return fmt.Sprintf("signer %s does not exist", e.SignerID)
}

// InvalidReceiverIDError - the receiver account id is malformed.
type InvalidReceiverIDError struct {
	ReceiverID AccountID `json:"receiver_id"`
}

func (e *InvalidReceiverIDError) Error() string {
	return fmt.Sprintf("invalid receiver id %q", e.ReceiverID)
}

// NotEnoughBalanceError - the signer cannot cover the transaction cost plus
// attached deposits. Fix the request and retry.
type NotEnoughBalanceError struct {
	SignerID AccountID `json:"signer_id"`
	Balance  string    `json:"balance"`
	Cost     string    `json:"cost"`
}

func (e *NotEnoughBalanceError) Error() string {
	return fmt.Sprintf("signer %s has balance %s, needs %s", e.SignerID, e.Balance, e.Cost)
}

// CostOverflowError - gas/cost arithmetic overflowed.
type CostOverflowError struct{}

func (e *CostOverflowError) Error() string { return "transaction cost overflow" }

// InvalidChainError - the referenced block hash does not belong to this
// chain.
type InvalidChainError struct{}

func (e *InvalidChainError) Error() string { return "transaction block hash is not on this chain" }

// ExpiredError - the referenced block hash is too old; the transaction
// expired before inclusion.
type ExpiredError struct{}

func (e *ExpiredError) Error() string { return "transaction expired" }

// ActionsValidationError - a contained action failed stateless validation.
type ActionsValidationError struct {
	Raw json.RawMessage `json:"-"`
}

func (e *ActionsValidationError) Error() string {
	return fmt.Sprintf("actions validation failed: %s", e.Raw)
}

// InvalidSignatureError - the signature does not verify against the declared
// public key.
type InvalidSignatureError struct{}

func (e *InvalidSignatureError) Error() string { return "invalid transaction signature" }

// ActionError wraps the failing action's index together with the typed kind.
type ActionError struct {
	Index *uint64
	Kind  error
}

func (e *ActionError) Error() string {
	if e.Index != nil {
		return fmt.Sprintf("action %d failed: %s", *e.Index, e.Kind)
	}
	return fmt.Sprintf("action failed: %s", e.Kind)
}

func (e *ActionError) Unwrap() error { return e.Kind }

// UnclassifiedError carries an execution failure whose kind this library
// does not recognize, with the nested body preserved verbatim.
type UnclassifiedError struct {
	Kind string
	Raw  json.RawMessage
}

func (e *UnclassifiedError) Error() string {
	return fmt.Sprintf("unclassified execution error %q: %s", e.Kind, e.Raw)
}

func (e *AccountAlreadyExistsError) executionError()    {}
func (e *AccountDoesNotExistError) executionError()     {}
func (e *CreateAccountNotAllowedError) executionError() {}
func (e *ActorNoPermissionError) executionError()       {}
func (e *DeleteKeyDoesNotExistError) executionError()   {}
func (e *AddKeyAlreadyExistsError) executionError()     {}
func (e *DeleteAccountStakingError) executionError()    {}
func (e *TriesToUnstakeError) executionError()          {}
func (e *TriesToStakeError) executionError()            {}
func (e *LackBalanceForStateError) executionError()     {}
func (e *FunctionCallErrorKind) executionError()        {}
func (e *NewReceiptValidationError) executionError()    {}
func (e *InvalidNonceError) executionError()            {}
func (e *InvalidAccessKeyError) executionError()        {}
func (e *InvalidSignerIDError) executionError()         {}
func (e *SignerDoesNotExistError) executionError()      {}
func (e *InvalidReceiverIDError) executionError()       {}
func (e *NotEnoughBalanceError) executionError()        {}
func (e *CostOverflowError) executionError()            {}
func (e *InvalidChainError) executionError()            {}
func (e *ExpiredError) executionError()                 {}
func (e *ActionsValidationError) executionError()       {}
func (e *InvalidSignatureError) executionError()        {}
func (e *ActionError) executionError()                  {}
func (e *UnclassifiedError) executionError()            {}

// errorDecoders maps error kind tags to decoders. Each decoder receives the
// kind's argument body and must not fail: malformed arguments degrade to the
// variant with zero fields rather than losing the classification.
// Populated in init to break the reference cycle through ParseFailure.
var errorDecoders map[string]func(json.RawMessage) error

func init() {
	errorDecoders = map[string]func(json.RawMessage) error{
		"AccountAlreadyExists":      decodeInto(func() error { return &AccountAlreadyExistsError{} }),
		"AccountDoesNotExist":       decodeInto(func() error { return &AccountDoesNotExistError{} }),
		"CreateAccountNotAllowed":   decodeInto(func() error { return &CreateAccountNotAllowedError{} }),
		"ActorNoPermission":         decodeInto(func() error { return &ActorNoPermissionError{} }),
		"DeleteKeyDoesNotExist":     decodeInto(func() error { return &DeleteKeyDoesNotExistError{} }),
		"AddKeyAlreadyExists":       decodeInto(func() error { return &AddKeyAlreadyExistsError{} }),
		"DeleteAccountStaking":      decodeInto(func() error { return &DeleteAccountStakingError{} }),
		"TriesToUnstake":            decodeInto(func() error { return &TriesToUnstakeError{} }),
		"TriesToStake":              decodeInto(func() error { return &TriesToStakeError{} }),
		"LackBalanceForState":       decodeInto(func() error { return &LackBalanceForStateError{} }),
		"InvalidNonce":              decodeInto(func() error { return &InvalidNonceError{} }),
		"InvalidSignerId":           decodeInto(func() error { return &InvalidSignerIDError{} }),
		"SignerDoesNotExist":        decodeInto(func() error { return &SignerDoesNotExistError{} }),
		"InvalidReceiverId":         decodeInto(func() error { return &InvalidReceiverIDError{} }),
		"NotEnoughBalance":          decodeInto(func() error { return &NotEnoughBalanceError{} }),
		"CostOverflow":              func(json.RawMessage) error { return &CostOverflowError{} },
		"InvalidChain":              func(json.RawMessage) error { return &InvalidChainError{} },
		"Expired":                   func(json.RawMessage) error { return &ExpiredError{} },
		"InvalidSignature":          func(json.RawMessage) error { return &InvalidSignatureError{} },
		"FunctionCallError":         decodeFunctionCallError,
		"NewReceiptValidationError": func(raw json.RawMessage) error { return &NewReceiptValidationError{Raw: raw} },
		"InvalidAccessKeyError":     func(raw json.RawMessage) error { return &InvalidAccessKeyError{Raw: raw} },
		"ActionsValidation":         func(raw json.RawMessage) error { return &ActionsValidationError{Raw: raw} },
		"ActionError":      decodeActionError,
		"InvalidTxError":   ParseFailure,
		"TxExecutionError": ParseFailure,
	}
}

func decodeInto(newErr func() error) func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		e := newErr()
		// malformed arguments keep the classification with empty fields
		_ = json.Unmarshal(raw, e)
		return e
	}
}

func decodeFunctionCallError(raw json.RawMessage) error {
	e := &FunctionCallErrorKind{Raw: raw}
	_ = json.Unmarshal(raw, e)
	return e
}

func decodeActionError(raw json.RawMessage) error {
	var body struct {
		Index *uint64         `json:"index"`
		Kind  json.RawMessage `json:"kind"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Kind) == 0 {
		return &UnclassifiedError{Kind: "ActionError", Raw: raw}
	}
	return &ActionError{Index: body.Index, Kind: ParseFailure(body.Kind)}
}

// ParseExecutionError maps an error kind tag and its raw argument body to
// the typed variant for that kind.
func ParseExecutionError(kind string, raw json.RawMessage) error {
	if decode, ok := errorDecoders[kind]; ok {
		return decode(raw)
	}
	return &UnclassifiedError{Kind: kind, Raw: raw}
}

// ParseFailure unwraps a nested failure body into a typed error. Bodies are
// single-key objects whose key names the kind; the value may itself nest
// another recognized kind, so unwrapping iterates until the terminal error.
// Some kinds are reported as a bare string with no arguments.
func ParseFailure(raw json.RawMessage) error {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseExecutionError(s, nil)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil || len(body) != 1 {
		return &UnclassifiedError{Raw: raw}
	}
	for kind, inner := range body {
		if _, ok := errorDecoders[kind]; !ok {
			return &UnclassifiedError{Kind: kind, Raw: raw}
		}
		return ParseExecutionError(kind, inner)
	}
	return &UnclassifiedError{Raw: raw}
}
