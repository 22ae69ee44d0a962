package counters_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/herelabs/go-near/module/counters"
)

func TestMonotonicCounter(t *testing.T) {
	var nonce1 = uint64(1234)
	counter := counters.NewMonotonicCounter(nonce1)

	// check value can be retrieved
	actual := counter.Value()
	require.Equal(t, nonce1, actual)

	// try to update value with less than current
	var lessNonce = uint64(1233)
	ok := counter.Set(lessNonce)
	require.False(t, ok)
	require.Equal(t, nonce1, counter.Value())

	// update the value with bigger nonce
	var nonce2 = uint64(1235)
	ok = counter.Set(nonce2)
	require.True(t, ok)

	// check that the new value can be retrieved
	actual = counter.Value()
	require.Equal(t, nonce2, actual)
}

func TestIncrementHandsOutEachValueOnce(t *testing.T) {
	const workers = 64
	const perWorker = 100

	counter := counters.NewMonotonicCounter(0)

	var mu sync.Mutex
	seen := make(map[uint64]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				v := counter.Increment()
				mu.Lock()
				_, dup := seen[v]
				seen[v] = struct{}{}
				mu.Unlock()
				require.False(t, dup, "value %d handed out twice", v)
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
	for v := uint64(1); v <= workers*perWorker; v++ {
		_, ok := seen[v]
		require.True(t, ok, "missing value %d", v)
	}
}
