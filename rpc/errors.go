package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/herelabs/go-near/model/near"
)

// Transport-level sentinels. These mean the request never produced a usable
// response; callers may retry with backoff.
var (
	// ErrRPCUnavailable - every configured endpoint failed at the transport
	// level.
	ErrRPCUnavailable = errors.New("no rpc endpoint available")

	// ErrEmptyResponse - an endpoint answered 200 with no usable payload.
	ErrEmptyResponse = errors.New("rpc returned empty response")
)

// ThresholdNotReachedError - a consensus query finished without the required
// number of byte-identical responses.
type ThresholdNotReachedError struct {
	Agreed    int
	Threshold int
}

func (e *ThresholdNotReachedError) Error() string {
	return fmt.Sprintf("threshold not reached: %d/%d", e.Agreed, e.Threshold)
}

// TimeoutError - the node routed the transaction but did not observe the
// outcome within its window. The transaction's fate is unknown: re-query by
// hash, never resubmit.
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "rpc request timed out"
	}
	return fmt.Sprintf("rpc request timed out: %s", e.Message)
}

// IsTimeout reports whether err is an rpc-level timeout (ambiguous outcome).
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// ProviderError is a protocol/validation failure reported by a node: the
// request was understood and rejected. These are not retried by the library.
type ProviderError struct {
	// Code is the error cause name from the envelope, e.g. "UNKNOWN_BLOCK".
	Code string
	// Message is the provider's human-readable description, if any.
	Message string
	// Data is the nested error body verbatim.
	Data json.RawMessage
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("rpc error %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %s: %s", e.Code, e.Data)
}

// Known provider error cause names.
const (
	codeUnknownBlock          = "UNKNOWN_BLOCK"
	codeInvalidAccount        = "INVALID_ACCOUNT"
	codeUnknownAccount        = "UNKNOWN_ACCOUNT"
	codeNoContractCode        = "NO_CONTRACT_CODE"
	codeTooLargeContractState = "TOO_LARGE_CONTRACT_STATE"
	codeUnavailableShard      = "UNAVAILABLE_SHARD"
	codeNoSyncedBlocks        = "NO_SYNCED_BLOCKS"
	codeInternalError         = "INTERNAL_ERROR"
	codeNotSyncedYet          = "NOT_SYNCED_YET"
	codeInvalidTransaction    = "INVALID_TRANSACTION"
	codeTimeoutError          = "TIMEOUT_ERROR"
	codeUnknownAccessKey      = "UNKNOWN_ACCESS_KEY"
)

// errorEnvelope is the wire shape of a JSON-RPC error:
// {"error": {"cause": {"name": <code>}, "data": <nested body>}}.
type errorEnvelope struct {
	Cause struct {
		Name string          `json:"name"`
		Info json.RawMessage `json:"info,omitempty"`
	} `json:"cause"`
	Name    string          `json:"name,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// classifyError turns an error envelope into the most specific typed error
// available. The nested data body may itself be a single-key map naming a
// recognized execution error kind; unwrapping that takes precedence over the
// coarse provider-level code, matching how callers decide between "retry",
// "fix the request" and "do not retry".
func classifyError(env *errorEnvelope) error {
	code := env.Cause.Name
	if code == "" {
		code = env.Name
	}

	if len(env.Data) > 0 {
		if terminal := near.ParseFailure(env.Data); !isUnclassified(terminal) {
			return terminal
		}
	}

	switch code {
	case codeTimeoutError:
		return &TimeoutError{Message: env.Message}
	case codeUnknownBlock, codeInvalidAccount, codeUnknownAccount,
		codeNoContractCode, codeTooLargeContractState, codeUnavailableShard,
		codeNoSyncedBlocks, codeNotSyncedYet, codeInvalidTransaction,
		codeUnknownAccessKey:
		return &ProviderError{Code: code, Message: env.Message, Data: env.Data}
	default:
		return &ProviderError{Code: codeInternalError, Message: env.Message, Data: env.Data}
	}
}

func isUnclassified(err error) bool {
	var ue *near.UnclassifiedError
	return errors.As(err, &ue)
}

// IsInvalidNonce reports whether err is the chain's invalid-nonce rejection.
// Used by the inclusion-wait submission path, which treats it as non-fatal.
func IsInvalidNonce(err error) bool {
	var ne *near.InvalidNonceError
	return errors.As(err, &ne)
}
