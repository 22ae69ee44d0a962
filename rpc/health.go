package rpc

import (
	"context"
	"time"
)

// SyncInfo is the sync section of a node's status response.
type SyncInfo struct {
	LatestBlockHash   string    `json:"latest_block_hash"`
	LatestBlockHeight uint64    `json:"latest_block_height"`
	LatestBlockTime   time.Time `json:"latest_block_time"`
	Syncing           bool      `json:"syncing"`
}

// StatusResponse is the result of the status RPC method.
type StatusResponse struct {
	ChainID         string   `json:"chain_id"`
	ProtocolVersion uint32   `json:"protocol_version"`
	SyncInfo        SyncInfo `json:"sync_info"`
}

// checkEndpoints probes every configured endpoint with a status call and
// replaces the available subset. An endpoint is kept when it is reachable
// and either reports not syncing or lags less than the sync threshold
// behind wall-clock time.
func (c *Client) checkEndpoints(ctx context.Context) {
	available := make([]*endpoint, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		status, err := c.statusFrom(ctx, ep)
		if err != nil {
			c.log.Warn().Err(err).Str("endpoint", ep.url).Msg("removing unreachable rpc endpoint")
			continue
		}
		if status.SyncInfo.Syncing {
			lag := time.Since(status.SyncInfo.LatestBlockTime)
			if lag > c.syncLagThreshold {
				c.log.Warn().
					Str("endpoint", ep.url).
					Dur("lag", lag).
					Msg("removing lagging rpc endpoint")
				continue
			}
		}
		available = append(available, ep)
	}

	c.mu.Lock()
	c.available = available
	c.mu.Unlock()

	c.log.Debug().
		Int("available", len(available)).
		Int("configured", len(c.endpoints)).
		Msg("rpc endpoint health check finished")
}

// statusFrom queries status from one specific endpoint, bypassing failover.
func (c *Client) statusFrom(ctx context.Context, ep *endpoint) (*StatusResponse, error) {
	req := &request{
		ID:      "dontcare",
		JSONRPC: "2.0",
		Method:  "status",
		Params:  map[string]string{"finality": "final"},
	}
	resp, err := c.post(ctx, ep, req)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, classifyError(resp.Error)
	}
	var status StatusResponse
	if err := decodeResult(resp.Result, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// AvailableEndpoints returns the URLs currently passing health checks.
func (c *Client) AvailableEndpoints() []string {
	urls := make([]string, 0, len(c.endpoints))
	for _, ep := range c.snapshot() {
		urls = append(urls, ep.url)
	}
	return urls
}
