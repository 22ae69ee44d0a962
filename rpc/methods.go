package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sethvargo/go-retry"

	"github.com/herelabs/go-near/model/near"
)

// Finality selects which chain view a query reads from.
type Finality string

const (
	FinalityOptimistic Finality = "optimistic"
	FinalityNearFinal  Finality = "near-final"
	FinalityFinal      Finality = "final"
)

func decodeResult(raw json.RawMessage, out interface{}) error {
	if len(raw) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("could not decode rpc result: %w", err)
	}
	return nil
}

// Status returns network status from the first healthy endpoint.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	raw, err := c.call(ctx, "status", map[string]string{"finality": "final"})
	if err != nil {
		return nil, err
	}
	var status StatusResponse
	if err := decodeResult(raw, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Validators returns the current validator set.
func (c *Client) Validators(ctx context.Context) (json.RawMessage, error) {
	return c.call(ctx, "validators", []interface{}{nil})
}

// ValidatorsOrdered returns the ordered validator list for a block.
func (c *Client) ValidatorsOrdered(ctx context.Context, blockHash string) (json.RawMessage, error) {
	return c.call(ctx, "EXPERIMENTAL_validators_ordered", []interface{}{blockHash})
}

// Block fetches a block by hash or height. Blocks fetched by hash are
// immutable and served from a bounded cache on repeat lookups.
func (c *Client) Block(ctx context.Context, blockID interface{}) (json.RawMessage, error) {
	hash, cacheable := blockID.(string)
	if cacheable {
		if cached, ok := c.blockCache.Get(hash); ok {
			return cached, nil
		}
	}
	raw, err := c.call(ctx, "block", []interface{}{blockID})
	if err != nil {
		return nil, err
	}
	if cacheable {
		c.blockCache.Add(hash, raw)
	}
	return raw, nil
}

// Chunk fetches a chunk by hash.
func (c *Client) Chunk(ctx context.Context, chunkID string) (json.RawMessage, error) {
	return c.call(ctx, "chunk", []interface{}{chunkID})
}

// Query performs a raw state query with caller-assembled parameters.
func (c *Client) Query(ctx context.Context, params interface{}) (json.RawMessage, error) {
	return c.call(ctx, "query", params)
}

// ViewAccount returns basic account state (balance, code hash, storage).
func (c *Client) ViewAccount(ctx context.Context, accountID near.AccountID, finality Finality) (*near.AccountView, error) {
	raw, err := c.call(ctx, "query", map[string]interface{}{
		"request_type": "view_account",
		"account_id":   accountID,
		"finality":     finality,
	})
	if err != nil {
		return nil, err
	}
	var account near.AccountView
	if err := decodeResult(raw, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// ViewAccessKey returns the access key state for (accountID, publicKey).
func (c *Client) ViewAccessKey(ctx context.Context, accountID near.AccountID, publicKey string, finality Finality) (*near.AccessKeyView, error) {
	raw, err := c.call(ctx, "query", map[string]interface{}{
		"request_type": "view_access_key",
		"account_id":   accountID,
		"public_key":   publicKey,
		"finality":     finality,
	})
	if err != nil {
		return nil, err
	}
	var key near.AccessKeyView
	if err := decodeResult(raw, &key); err != nil {
		return nil, err
	}
	return &key, nil
}

// ViewAccessKeyList returns all access keys of an account.
func (c *Client) ViewAccessKeyList(ctx context.Context, accountID near.AccountID, finality Finality) (*near.AccessKeyList, error) {
	raw, err := c.call(ctx, "query", map[string]interface{}{
		"request_type": "view_access_key_list",
		"account_id":   accountID,
		"finality":     finality,
	})
	if err != nil {
		return nil, err
	}
	var list near.AccessKeyList
	if err := decodeResult(raw, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CallFunctionOpts tunes a view call. The zero value reads optimistically
// from a single endpoint.
type CallFunctionOpts struct {
	// Finality is used when BlockID is zero.
	Finality Finality
	// BlockID pins the call to a specific block height.
	BlockID uint64
	// Threshold requires this many endpoints to agree on the response.
	Threshold int
}

// CallFunction invokes a read-only contract method. args are the serialized
// call arguments, base64-wrapped on the wire; the node's byte-array result is
// reassembled into the ViewResult's Result field.
func (c *Client) CallFunction(ctx context.Context, accountID near.AccountID, method string, args []byte, opts CallFunctionOpts) (*near.ViewResult, error) {
	params := map[string]interface{}{
		"request_type": "call_function",
		"account_id":   accountID,
		"method_name":  method,
		"args_base64":  base64.StdEncoding.EncodeToString(args),
	}
	if opts.BlockID != 0 {
		params["block_id"] = opts.BlockID
	} else {
		finality := opts.Finality
		if finality == "" {
			finality = FinalityOptimistic
		}
		params["finality"] = finality
	}

	var raw json.RawMessage
	var err error
	if opts.Threshold > 1 {
		raw, err = c.thresholdCall(ctx, "query", params, opts.Threshold)
	} else {
		raw, err = c.call(ctx, "query", params)
	}
	if err != nil {
		return nil, err
	}
	var result near.ViewResult
	if err := decodeResult(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Tx fetches the execution result of a transaction by hash.
func (c *Client) Tx(ctx context.Context, txHash string, receiverID near.AccountID) (*near.TransactionResult, error) {
	raw, err := c.call(ctx, "tx", []interface{}{txHash, receiverID})
	if err != nil {
		return nil, err
	}
	var result near.TransactionResult
	if err := decodeResult(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// TxStatus fetches the extended transaction status, including receipts that
// are still pending.
func (c *Client) TxStatus(ctx context.Context, txHash string, receiverID near.AccountID) (*near.TransactionResult, error) {
	raw, err := c.call(ctx, "EXPERIMENTAL_tx_status", []interface{}{txHash, receiverID})
	if err != nil {
		return nil, err
	}
	var result near.TransactionResult
	if err := decodeResult(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ChangesInBlock returns state changes for a block.
func (c *Client) ChangesInBlock(ctx context.Context, params interface{}) (json.RawMessage, error) {
	return c.call(ctx, "EXPERIMENTAL_changes_in_block", params)
}

// LightClientProofRequest identifies the outcome a proof is requested for:
// either a transaction (hash + sender) or a receipt (id + receiver).
type LightClientProofRequest struct {
	Type            string `json:"type"`
	TransactionHash string `json:"transaction_hash,omitempty"`
	SenderID        string `json:"sender_id,omitempty"`
	ReceiptID       string `json:"receipt_id,omitempty"`
	ReceiverID      string `json:"receiver_id,omitempty"`
	LightClientHead string `json:"light_client_head"`
}

// LightClientProof returns an execution proof for a light client.
func (c *Client) LightClientProof(ctx context.Context, req LightClientProofRequest) (json.RawMessage, error) {
	return c.call(ctx, "light_client_proof", req)
}

// NextLightClientBlock returns the next light client block after the given
// hash.
func (c *Client) NextLightClientBlock(ctx context.Context, lastBlockHash string) (json.RawMessage, error) {
	return c.call(ctx, "next_light_client_block", []interface{}{lastBlockHash})
}

// SendTransactionAsync submits a base64-encoded signed transaction without
// waiting for any confirmation and returns the transaction hash.
func (c *Client) SendTransactionAsync(ctx context.Context, signedTxBase64 string) (string, error) {
	raw, err := c.broadcastCall(ctx, "broadcast_tx_async", []interface{}{signedTxBase64})
	if err != nil {
		return "", err
	}
	var hash string
	if err := decodeResult(raw, &hash); err != nil {
		return "", err
	}
	return hash, nil
}

// SendTransactionIncluded submits a signed transaction and waits until it is
// included in a block. An invalid-nonce rejection during broadcast is
// non-fatal: with concurrent submission another key may have landed first,
// and inclusion may still happen; the caller receives an empty hash.
func (c *Client) SendTransactionIncluded(ctx context.Context, signedTxBase64 string) (string, error) {
	raw, err := c.broadcastCall(ctx, "send_tx", map[string]interface{}{
		"signed_tx_base64": signedTxBase64,
		"wait_until":       "INCLUDED",
	})
	if err != nil {
		if IsInvalidNonce(err) {
			c.log.Warn().Err(err).Msg("invalid nonce during inclusion-wait broadcast")
			return "", nil
		}
		return "", err
	}
	var result struct {
		FinalExecutionStatus string `json:"final_execution_status"`
		Transaction          struct {
			Hash string `json:"hash"`
		} `json:"transaction"`
	}
	if err := decodeResult(raw, &result); err != nil {
		return "", err
	}
	return result.Transaction.Hash, nil
}

// SendTransactionAwait submits a signed transaction and blocks until the
// full execution outcome is available. On an rpc-level timeout the fate of
// the transaction is unknown, so when the caller supplied the hash and
// receiver the client falls back to polling the tx method instead of
// resubmitting; resubmission could double-spend the nonce.
func (c *Client) SendTransactionAwait(ctx context.Context, signedTxBase64 string, txHash string, receiverID near.AccountID) (*near.TransactionResult, error) {
	raw, err := c.broadcastCall(ctx, "broadcast_tx_commit", []interface{}{signedTxBase64})
	if err != nil {
		if IsTimeout(err) && txHash != "" && receiverID != "" {
			return c.WaitForTransaction(ctx, txHash, receiverID)
		}
		return nil, err
	}
	var result near.TransactionResult
	if err := decodeResult(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// WaitForTransaction polls the tx method by hash with a fixed backoff until
// the execution outcome is available or the attempt budget is exhausted, in
// which case a timeout error surfaces and the outcome remains unknown.
func (c *Client) WaitForTransaction(ctx context.Context, txHash string, receiverID near.AccountID) (*near.TransactionResult, error) {
	backoff := retry.WithMaxRetries(uint64(c.pollAttempts), retry.NewConstant(c.pollInterval))

	var result *near.TransactionResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := c.Tx(ctx, txHash, receiverID)
		if err != nil {
			// the node has not recorded the transaction yet, or is busy
			return retry.RetryableError(err)
		}
		result = res
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &TimeoutError{Message: fmt.Sprintf("transaction %s not found after %d attempts", txHash, c.pollAttempts)}
	}
	return result, nil
}
