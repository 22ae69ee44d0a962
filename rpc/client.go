// Package rpc implements a multi-endpoint JSON-RPC client for NEAR nodes:
// ordered failover for plain reads, concurrent broadcast for transaction
// submission, and consensus-threshold queries for reads where conflicting
// answers across nodes are a risk.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

const (
	// DefaultTimeout bounds a single HTTP round-trip.
	DefaultTimeout = 30 * time.Second

	// DefaultHealthInterval is how often the background health loop
	// re-checks all endpoints.
	DefaultHealthInterval = 30 * time.Second

	// defaultSyncLagThreshold marks an endpoint unavailable when its latest
	// block is this far behind wall-clock time.
	defaultSyncLagThreshold = 60 * time.Second

	// blockCacheSize bounds the block-by-hash read cache. Blocks are
	// immutable once produced, so cached entries never go stale.
	blockCacheSize = 128
)

// endpoint is one configured node address. URLs of the form
// "https://token@host" carry a bearer token presented on every request.
type endpoint struct {
	url     string
	token   string
	breaker *gobreaker.CircuitBreaker
}

func newEndpoint(raw string) *endpoint {
	ep := &endpoint{url: raw}
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		ep.token = u.User.Username()
		u.User = nil
		ep.url = u.String()
	}
	ep.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    ep.url,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return ep
}

// Client sends JSON-RPC requests to one or more node endpoints. The endpoint
// list is static per instance; an available subset is maintained by health
// checks and read as a snapshot by in-flight requests.
type Client struct {
	log  zerolog.Logger
	http *http.Client

	endpoints []*endpoint
	headers   map[string]string

	// allowBroadcast selects concurrent fan-out for transaction submission.
	allowBroadcast bool

	syncLagThreshold time.Duration
	healthInterval   time.Duration
	pollAttempts     int
	pollInterval     time.Duration

	mu        sync.RWMutex
	available []*endpoint

	blockCache *lru.Cache[string, json.RawMessage]
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHeaders sets extra headers attached to every request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) { c.headers = h }
}

// WithBroadcast controls whether transaction submissions fan out to all
// available endpoints (default true).
func WithBroadcast(enabled bool) Option {
	return func(c *Client) { c.allowBroadcast = enabled }
}

// WithHealthInterval sets the period of the background health loop.
func WithHealthInterval(d time.Duration) Option {
	return func(c *Client) { c.healthInterval = d }
}

// WithPolling sets the attempt budget and fixed interval of the get-tx
// fallback poll used when an execution wait times out.
func WithPolling(attempts int, interval time.Duration) Option {
	return func(c *Client) {
		c.pollAttempts = attempts
		c.pollInterval = interval
	}
}

// NewClient builds a client over the given endpoint URLs. All endpoints
// start out available; run Start to keep the available subset current.
func NewClient(log zerolog.Logger, urls []string, opts ...Option) (*Client, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one rpc endpoint is required")
	}
	endpoints := make([]*endpoint, 0, len(urls))
	for _, u := range urls {
		endpoints = append(endpoints, newEndpoint(u))
	}
	cache, err := lru.New[string, json.RawMessage](blockCacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create block cache: %w", err)
	}
	c := &Client{
		log:              log.With().Str("module", "rpc_client").Logger(),
		http:             &http.Client{Timeout: DefaultTimeout},
		endpoints:        endpoints,
		allowBroadcast:   true,
		syncLagThreshold: defaultSyncLagThreshold,
		healthInterval:   DefaultHealthInterval,
		pollAttempts:     6,
		pollInterval:     5 * time.Second,
		available:        endpoints,
		blockCache:       cache,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start runs the background health loop until ctx is done. Requests issued
// before or without Start use the full endpoint list.
func (c *Client) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.healthInterval)
		defer ticker.Stop()
		c.checkEndpoints(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.checkEndpoints(ctx)
			}
		}
	}()
}

// snapshot returns the current available endpoints. Falls back to the full
// list when health checks have marked everything down, so a flapping health
// endpoint cannot brick the client.
func (c *Client) snapshot() []*endpoint {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.available) == 0 {
		return c.endpoints
	}
	return c.available
}

type request struct {
	ID      string      `json:"id"`
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *errorEnvelope  `json:"error"`
}

// post performs one HTTP round-trip against a single endpoint. A non-200
// reply is reported as a transport error so the caller can fail over.
func (c *Client) post(ctx context.Context, ep *endpoint, req *request) (*response, error) {
	out, err := ep.breaker.Execute(func() (interface{}, error) {
		body, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("could not encode request: %w", err)
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		for k, v := range c.headers {
			httpReq.Header.Set(k, v)
		}
		if ep.token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+ep.token)
		}

		httpResp, err := c.http.Do(httpReq)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("endpoint returned status %d", httpResp.StatusCode)
		}
		var resp response
		if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
			return nil, fmt.Errorf("could not decode response: %w", err)
		}
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*response), nil
}

// call tries available endpoints in order and returns the first successful
// result. An endpoint that answers with a protocol error does not stop the
// failover; if every endpoint errors, the last protocol error is classified
// and surfaced, otherwise the accumulated transport failures are.
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	req := &request{ID: "dontcare", JSONRPC: "2.0", Method: method, Params: params}

	var transportErrs *multierror.Error
	var lastEnvelope *errorEnvelope
	for _, ep := range c.snapshot() {
		resp, err := c.post(ctx, ep, req)
		if err != nil {
			c.log.Debug().Err(err).Str("endpoint", ep.url).Str("method", method).Msg("endpoint call failed")
			transportErrs = multierror.Append(transportErrs, fmt.Errorf("%s: %w", ep.url, err))
			continue
		}
		if resp.Error != nil {
			lastEnvelope = resp.Error
			continue
		}
		return resp.Result, nil
	}
	if lastEnvelope != nil {
		return nil, classifyError(lastEnvelope)
	}
	if transportErrs != nil {
		return nil, fmt.Errorf("%w: %s", ErrRPCUnavailable, transportErrs.Error())
	}
	return nil, ErrRPCUnavailable
}

// broadcastCall fires the request to all available endpoints concurrently
// and returns the first successful result. Used for transaction submission
// to maximize reach and reduce propagation latency.
func (c *Client) broadcastCall(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if !c.allowBroadcast {
		return c.call(ctx, method, params)
	}
	endpoints := c.snapshot()
	req := &request{ID: "dontcare", JSONRPC: "2.0", Method: method, Params: params}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		result json.RawMessage
		env    *errorEnvelope
		err    error
	}
	results := make(chan outcome, len(endpoints))
	for _, ep := range endpoints {
		ep := ep
		go func() {
			resp, err := c.post(ctx, ep, req)
			if err != nil {
				results <- outcome{err: fmt.Errorf("%s: %w", ep.url, err)}
				return
			}
			if resp.Error != nil {
				results <- outcome{env: resp.Error}
				return
			}
			results <- outcome{result: resp.Result}
		}()
	}

	var transportErrs *multierror.Error
	var lastEnvelope *errorEnvelope
	for range endpoints {
		select {
		case out := <-results:
			switch {
			case out.err != nil:
				transportErrs = multierror.Append(transportErrs, out.err)
			case out.env != nil:
				lastEnvelope = out.env
			default:
				return out.result, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if lastEnvelope != nil {
		return nil, classifyError(lastEnvelope)
	}
	if transportErrs != nil {
		return nil, fmt.Errorf("%w: %s", ErrRPCUnavailable, transportErrs.Error())
	}
	return nil, ErrRPCUnavailable
}

// thresholdCall requires threshold endpoints to agree on a structurally
// identical response before returning it. Responses are compared in a
// canonical key-sorted form rather than as raw bytes, so semantically
// identical answers serialized differently still count as agreement.
func (c *Client) thresholdCall(ctx context.Context, method string, params interface{}, threshold int) (json.RawMessage, error) {
	if threshold <= 1 {
		return c.broadcastCall(ctx, method, params)
	}
	endpoints := c.snapshot()
	req := &request{ID: "dontcare", JSONRPC: "2.0", Method: method, Params: params}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan *response, len(endpoints))
	for _, ep := range endpoints {
		ep := ep
		go func() {
			resp, err := c.post(ctx, ep, req)
			if err != nil {
				c.log.Debug().Err(err).Str("endpoint", ep.url).Msg("threshold query endpoint failed")
				results <- nil
				return
			}
			results <- resp
		}()
	}

	counts := make(map[string]int)
	first := make(map[string]json.RawMessage)
	agreed := 0
	for range endpoints {
		select {
		case resp := <-results:
			if resp == nil || resp.Error != nil {
				continue
			}
			key, err := canonicalize(resp.Result)
			if err != nil {
				continue
			}
			counts[key]++
			if _, ok := first[key]; !ok {
				first[key] = resp.Result
			}
			if counts[key] > agreed {
				agreed = counts[key]
			}
			if counts[key] >= threshold {
				return first[key], nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, &ThresholdNotReachedError{Agreed: agreed, Threshold: threshold}
}

// canonicalize re-marshals a JSON document with sorted object keys so that
// equality is structural, not byte-layout.
func canonicalize(raw json.RawMessage) (string, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", err
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
