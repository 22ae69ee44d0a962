package intents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

const (
	relayTimeout = 10 * time.Second

	// Settlement polling cadence and bound. The relay reports PENDING
	// until a solver lands the intent on-chain.
	settlePollInterval = 2 * time.Second
	settlePollAttempts = 10
)

// SimulationError is a relay or contract rejection of a published intent,
// with the free-text reason and any structured detail the relay attached.
type SimulationError struct {
	Reason string
	Data   map[string]interface{}
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("intent rejected: %s", e.Reason)
}

// SettlementError reports an intent the relay accepted but that did not
// settle, either because a solver failed it or polling gave up.
type SettlementError struct {
	IntentHash string
	Status     string
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("intent %s not settled: %s", e.IntentHash, e.Status)
}

// Relay is the HTTP client for the solver relay's JSON-RPC surface.
type Relay struct {
	log     zerolog.Logger
	http    *http.Client
	url     string
	headers map[string]string
}

// NewRelay builds a relay client for the given URL. An empty URL selects the
// public mainnet relay.
func NewRelay(log zerolog.Logger, url string, headers map[string]string) *Relay {
	if url == "" {
		url = DefaultRelayURL
	}
	return &Relay{
		log:     log.With().Str("module", "intents_relay").Logger(),
		http:    &http.Client{Timeout: relayTimeout},
		url:     url,
		headers: headers,
	}
}

type relayRequest struct {
	ID      string        `json:"id"`
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type relayResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

func (r *Relay) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(relayRequest{
		ID:      "dontcare",
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return errors.Wrap(err, "encoding relay request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "building relay request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "relay %s", method)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("relay %s: unexpected status %d", method, resp.StatusCode)
	}

	var envelope relayResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return errors.Wrapf(err, "decoding relay %s response", method)
	}
	if len(envelope.Error) > 0 {
		return errors.Errorf("relay %s: %s", method, envelope.Error)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return errors.Wrapf(err, "decoding relay %s result", method)
		}
	}
	return nil
}

type publishResult struct {
	Status       string                 `json:"status"`
	Reason       string                 `json:"reason"`
	IntentHash   string                 `json:"intent_hash"`
	IntentHashes []string               `json:"intent_hashes"`
	Data         map[string]interface{} `json:"data"`
}

// PublishIntent publishes one signed commitment, optionally binding solver
// quote hashes, and returns the intent hash the relay assigned.
func (r *Relay) PublishIntent(ctx context.Context, signed *Commitment, quoteHashes []string) (string, error) {
	var result publishResult
	err := r.call(ctx, "publish_intent", []interface{}{map[string]interface{}{
		"quote_hashes": quoteHashes,
		"signed_data":  signed,
	}}, &result)
	if err != nil {
		return "", err
	}
	if result.Status != "OK" {
		return "", &SimulationError{Reason: result.Reason, Data: result.Data}
	}
	r.log.Debug().Str("intent_hash", result.IntentHash).Msg("intent published")
	return result.IntentHash, nil
}

// PublishIntents publishes a batch of signed commitments atomically.
func (r *Relay) PublishIntents(ctx context.Context, signed []*Commitment, quoteHashes []string) ([]string, error) {
	var result publishResult
	err := r.call(ctx, "publish_intents", []interface{}{map[string]interface{}{
		"quote_hashes": quoteHashes,
		"signed_datas": signed,
	}}, &result)
	if err != nil {
		return nil, err
	}
	if result.Status != "OK" {
		return nil, &SimulationError{Reason: result.Reason, Data: result.Data}
	}
	if len(result.IntentHashes) > 0 {
		return result.IntentHashes, nil
	}
	return []string{result.IntentHash}, nil
}

type statusResult struct {
	Status string `json:"status"`
	Data   struct {
		Hash string `json:"hash"`
	} `json:"data"`
}

// AwaitSettlement polls the relay until the intent settles on-chain and
// returns the settlement transaction hash. PENDING keeps polling; any other
// non-settled status fails immediately.
func (r *Relay) AwaitSettlement(ctx context.Context, intentHash string) (string, error) {
	var txHash string
	backoff := retry.WithMaxRetries(settlePollAttempts, retry.NewConstant(settlePollInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var result statusResult
		if err := r.call(ctx, "get_status", []interface{}{map[string]interface{}{
			"intent_hash": intentHash,
		}}, &result); err != nil {
			return retry.RetryableError(err)
		}
		switch result.Status {
		case "SETTLED":
			txHash = result.Data.Hash
			return nil
		case "PENDING":
			return retry.RetryableError(&SettlementError{IntentHash: intentHash, Status: result.Status})
		default:
			r.log.Error().
				Str("intent_hash", intentHash).
				Str("status", result.Status).
				Msg("intent failed")
			return &SettlementError{IntentHash: intentHash, Status: result.Status}
		}
	})
	if err != nil {
		return "", err
	}
	return txHash, nil
}

// QuoteRequest asks solvers for a swap price. Exactly one of ExactAmountIn
// and ExactAmountOut must be set.
type QuoteRequest struct {
	AssetIn        string `json:"defuse_asset_identifier_in"`
	AssetOut       string `json:"defuse_asset_identifier_out"`
	ExactAmountIn  string `json:"exact_amount_in,omitempty"`
	ExactAmountOut string `json:"exact_amount_out,omitempty"`
	MinDeadlineMs  int    `json:"min_deadline_ms"`
	MaxWaitMs      int    `json:"max_wait_ms,omitempty"`
	MinWaitMs      int    `json:"min_wait_ms,omitempty"`
}

// QuoteOption is one solver's answer to a quote request.
type QuoteOption struct {
	QuoteHash string `json:"quote_hash"`
	AmountIn  string `json:"amount_in"`
	AmountOut string `json:"amount_out"`
	Expiry    string `json:"expiration_time"`
}

// Quote collects solver offers for the request and returns them best-first:
// highest amount out for exact-in requests, lowest amount in for exact-out.
func (r *Relay) Quote(ctx context.Context, req QuoteRequest) ([]QuoteOption, error) {
	if req.MinDeadlineMs == 0 {
		req.MinDeadlineMs = 10000
	}
	body, err := json.Marshal(relayRequest{
		ID:      fmt.Sprintf("quote_%s", uuid.NewString()),
		JSONRPC: "2.0",
		Method:  "quote",
		Params:  []interface{}{req},
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding quote request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "building quote request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range r.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := r.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "relay quote")
	}
	defer resp.Body.Close()

	var envelope struct {
		Result []QuoteOption `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.Wrap(err, "decoding quote response")
	}

	options := envelope.Result
	exactOut := req.ExactAmountOut != ""
	sort.SliceStable(options, func(i, j int) bool {
		if exactOut {
			return lessNumeric(options[i].AmountIn, options[j].AmountIn)
		}
		return lessNumeric(options[j].AmountOut, options[i].AmountOut)
	})
	return options, nil
}

// lessNumeric compares two non-negative decimal strings by magnitude.
func lessNumeric(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
