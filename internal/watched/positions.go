package watched

import (
	"context"
	"sync"
	"time"
)

// PositionSource fetches a user's current open positions from the
// exchange's data API.
type PositionSource interface {
	FetchPositions(ctx context.Context, userAddress string) ([]Position, error)
}

type cacheEntry struct {
	positions []Position
	fetchedAt time.Time
}

// PositionCache batch-fetches positions per wallet with a TTL, so the
// reconciliation loop does not re-hit the data API for wallets it already
// has a fresh read for.
type PositionCache struct {
	source PositionSource
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewPositionCache(source PositionSource, ttl time.Duration) *PositionCache {
	return &PositionCache{source: source, ttl: ttl, entries: make(map[string]cacheEntry)}
}

// Invalidate drops the cached entry for a wallet, forcing the next fetch.
func (c *PositionCache) Invalidate(userAddress string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, userAddress)
}

// InvalidateAll clears the whole cache.
func (c *PositionCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

func (c *PositionCache) get(userAddress string) ([]Position, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userAddress]
	if !ok || time.Since(e.fetchedAt) > c.ttl {
		return nil, false
	}
	return e.positions, true
}

func (c *PositionCache) put(userAddress string, positions []Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userAddress] = cacheEntry{positions: positions, fetchedAt: time.Now()}
}

// fetchResult is the per-wallet outcome of a parallel batch fetch.
type fetchResult struct {
	address   string
	positions []Position
	err       error
}

// BatchFetch fetches positions for every address, using the cache where
// fresh and fetching the rest in parallel. Returns the combined position
// list and the fraction of uncached wallets whose fetch failed (used by
// the controller's mass-deletion guard).
func (c *PositionCache) BatchFetch(ctx context.Context, addresses []string) ([]Position, float64, error) {
	var all []Position
	var toFetch []string
	for _, addr := range addresses {
		if cached, ok := c.get(addr); ok {
			all = append(all, cached...)
		} else {
			toFetch = append(toFetch, addr)
		}
	}
	if len(toFetch) == 0 {
		return all, 0, nil
	}

	results := make(chan fetchResult, len(toFetch))
	var wg sync.WaitGroup
	for _, addr := range toFetch {
		wg.Add(1)
		go func(address string) {
			defer wg.Done()
			positions, err := c.source.FetchPositions(ctx, address)
			results <- fetchResult{address: address, positions: positions, err: err}
		}(addr)
	}
	wg.Wait()
	close(results)

	failures := 0
	for r := range results {
		if r.err != nil {
			failures++
			continue
		}
		c.put(r.address, r.positions)
		all = append(all, r.positions...)
	}

	failPct := float64(failures) / float64(len(toFetch))
	return all, failPct, nil
}
