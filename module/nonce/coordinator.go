// Package nonce guarantees that concurrent submissions signed by the same
// access key never reuse or skip a nonce. Each key carries an in-memory
// shadow of its on-chain nonce: seeded once from a view_access_key query,
// then advanced locally by exactly one per reservation. Re-querying the
// chain per submission would be both racy under concurrency and slow.
package nonce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/herelabs/go-near/model/near"
	"github.com/herelabs/go-near/module/counters"
	"github.com/herelabs/go-near/rpc"
)

// blockFreshness is how long a fetched block hash is reused before a
// refresh. Transactions referencing a block older than ~50 blocks are
// rejected as expired, so the window stays well inside that budget.
const blockFreshness = 50 * time.Second

// ChainReader is the read access the coordinator needs from the RPC layer.
type ChainReader interface {
	ViewAccessKey(ctx context.Context, accountID near.AccountID, publicKey string, finality rpc.Finality) (*near.AccessKeyView, error)
	Status(ctx context.Context) (*rpc.StatusResponse, error)
}

// keyState is the nonce shadow of one access key. The mutex only guards
// lazy initialization; reservations go through the lock-free counter so
// submission I/O for one transaction never blocks reserving the next nonce.
type keyState struct {
	mu      sync.Mutex
	counter *counters.StrictMonotonicCounter
}

// Coordinator owns the per-key nonce cache and the shared block hash cache
// for one account. It holds no key material and performs no signing.
type Coordinator struct {
	log   zerolog.Logger
	chain ChainReader

	accountID near.AccountID

	mu   sync.Mutex
	keys map[string]*keyState

	blockMu      sync.Mutex
	blockHash    near.BlockHash
	blockHeight  uint64
	blockFetched time.Time
}

// NewCoordinator creates a coordinator for accountID backed by chain.
func NewCoordinator(log zerolog.Logger, chain ChainReader, accountID near.AccountID) *Coordinator {
	return &Coordinator{
		log:       log.With().Str("module", "nonce_coordinator").Logger(),
		chain:     chain,
		accountID: accountID,
		keys:      make(map[string]*keyState),
	}
}

func (c *Coordinator) state(publicKey string) *keyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	ks, ok := c.keys[publicKey]
	if !ok {
		ks = &keyState{}
		c.keys[publicKey] = ks
	}
	return ks
}

// Reserve returns the next nonce for publicKey, fetching the on-chain nonce
// on first use and incrementing the local shadow by exactly one afterwards.
//
// A reserved nonce is consumed even if the corresponding submission fails:
// the chain burns the slot either way, so rolling back would only cause the
// next submission to collide. This is a deliberate, documented contract.
func (c *Coordinator) Reserve(ctx context.Context, publicKey string) (uint64, error) {
	ks := c.state(publicKey)

	ks.mu.Lock()
	if ks.counter == nil {
		view, err := c.chain.ViewAccessKey(ctx, c.accountID, publicKey, rpc.FinalityOptimistic)
		if err != nil {
			ks.mu.Unlock()
			return 0, fmt.Errorf("could not fetch access key nonce for %s: %w", publicKey, err)
		}
		ks.counter = counters.NewMonotonicCounter(view.Nonce)
		c.log.Debug().
			Str("public_key", publicKey).
			Uint64("nonce", view.Nonce).
			Msg("seeded nonce from chain")
	}
	counter := ks.counter
	ks.mu.Unlock()

	return counter.Increment(), nil
}

// Resync re-fetches the on-chain nonce and fast-forwards the local shadow
// if the chain is ahead. Called after an invalid-nonce rejection, which
// means some other client advanced the key.
func (c *Coordinator) Resync(ctx context.Context, publicKey string) error {
	view, err := c.chain.ViewAccessKey(ctx, c.accountID, publicKey, rpc.FinalityOptimistic)
	if err != nil {
		return fmt.Errorf("could not re-fetch access key nonce for %s: %w", publicKey, err)
	}
	ks := c.state(publicKey)
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.counter == nil {
		ks.counter = counters.NewMonotonicCounter(view.Nonce)
		return nil
	}
	if ks.counter.Set(view.Nonce) {
		c.log.Debug().
			Str("public_key", publicKey).
			Uint64("nonce", view.Nonce).
			Msg("fast-forwarded nonce from chain")
	}
	return nil
}

// BlockInfo returns a recent block hash and height for transaction
// construction, refreshing the cached values once they exceed the freshness
// window.
func (c *Coordinator) BlockInfo(ctx context.Context) (near.BlockHash, uint64, error) {
	c.blockMu.Lock()
	defer c.blockMu.Unlock()

	if !c.blockFetched.IsZero() && time.Since(c.blockFetched) < blockFreshness {
		return c.blockHash, c.blockHeight, nil
	}

	status, err := c.chain.Status(ctx)
	if err != nil {
		return near.BlockHash{}, 0, fmt.Errorf("could not fetch latest block: %w", err)
	}
	hash, err := near.ParseBlockHash(status.SyncInfo.LatestBlockHash)
	if err != nil {
		return near.BlockHash{}, 0, err
	}
	c.blockHash = hash
	c.blockHeight = status.SyncInfo.LatestBlockHeight
	c.blockFetched = time.Now()
	return c.blockHash, c.blockHeight, nil
}
