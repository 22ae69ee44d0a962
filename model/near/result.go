package near

import (
	"encoding/base64"
	"encoding/json"
)

// ExecutionStatus is the terminal status of a transaction or receipt. At
// most one field is set; all empty means the outcome is still pending.
type ExecutionStatus struct {
	// SuccessValue is the base64 return value of the last action.
	SuccessValue *string `json:"SuccessValue,omitempty"`
	// SuccessReceiptID points at the receipt that will carry the result.
	SuccessReceiptID *string `json:"SuccessReceiptId,omitempty"`
	// Failure is the raw structured execution failure.
	Failure json.RawMessage `json:"Failure,omitempty"`
}

// Value decodes the base64 SuccessValue. Empty when absent.
func (s ExecutionStatus) Value() ([]byte, error) {
	if s.SuccessValue == nil {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(*s.SuccessValue)
}

// Err extracts the typed execution error from a Failure status, or nil for
// a non-failed status.
func (s ExecutionStatus) Err() error {
	if len(s.Failure) == 0 {
		return nil
	}
	return ParseFailure(s.Failure)
}

// ExecutionOutcome describes what one transaction or receipt burned and
// produced.
type ExecutionOutcome struct {
	Logs        []string        `json:"logs"`
	ReceiptIDs  []string        `json:"receipt_ids"`
	GasBurnt    uint64          `json:"gas_burnt"`
	TokensBurnt string          `json:"tokens_burnt"`
	ExecutorID  AccountID       `json:"executor_id"`
	Status      ExecutionStatus `json:"status"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// OutcomeWithID is an execution outcome addressed by the transaction hash or
// receipt id it belongs to.
type OutcomeWithID struct {
	ID      string           `json:"id"`
	Outcome ExecutionOutcome `json:"outcome"`
}

// TransactionView echoes the submitted transaction back from the node.
type TransactionView struct {
	Hash       string            `json:"hash"`
	SignerID   AccountID         `json:"signer_id"`
	PublicKey  string            `json:"public_key"`
	Nonce      uint64            `json:"nonce"`
	ReceiverID AccountID         `json:"receiver_id"`
	Signature  string            `json:"signature"`
	Actions    []json.RawMessage `json:"actions"`
}

// TransactionResult is the full execution outcome of a transaction: its
// final status, the transaction-level outcome and the cascade of receipt
// outcomes spawned by cross-contract calls.
type TransactionResult struct {
	Status             ExecutionStatus `json:"status"`
	Transaction        TransactionView `json:"transaction"`
	TransactionOutcome OutcomeWithID   `json:"transaction_outcome"`
	ReceiptsOutcome    []OutcomeWithID `json:"receipts_outcome"`
}

// Logs concatenates transaction-level logs and all receipt-level logs in
// execution order.
func (r *TransactionResult) Logs() []string {
	logs := make([]string, 0, len(r.TransactionOutcome.Outcome.Logs))
	logs = append(logs, r.TransactionOutcome.Outcome.Logs...)
	for _, ro := range r.ReceiptsOutcome {
		logs = append(logs, ro.Outcome.Logs...)
	}
	return logs
}

// Err returns the typed execution error for a failed transaction: the
// top-level status failure if present, otherwise the first failed receipt.
// Nil for a successful transaction.
func (r *TransactionResult) Err() error {
	if err := r.Status.Err(); err != nil {
		return err
	}
	for _, ro := range r.ReceiptsOutcome {
		if err := ro.Outcome.Status.Err(); err != nil {
			return err
		}
	}
	return nil
}

// ViewResult is the outcome of a call_function query. The node returns the
// result as an array of byte values which is reassembled into Result before
// being handed to callers; Result is usually a UTF-8 JSON document.
type ViewResult struct {
	BlockHeight uint64
	BlockHash   string
	Logs        []string
	Result      []byte
}

func (v *ViewResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		BlockHeight uint64   `json:"block_height"`
		BlockHash   string   `json:"block_hash"`
		Logs        []string `json:"logs"`
		Result      []uint16 `json:"result"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.BlockHeight = raw.BlockHeight
	v.BlockHash = raw.BlockHash
	v.Logs = raw.Logs
	v.Result = make([]byte, len(raw.Result))
	for i, b := range raw.Result {
		v.Result[i] = byte(b)
	}
	return nil
}

// UnmarshalInto JSON-decodes the view result payload into out.
func (v *ViewResult) UnmarshalInto(out interface{}) error {
	return json.Unmarshal(v.Result, out)
}
