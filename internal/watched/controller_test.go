package watched

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/marketstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserDirectory struct {
	all    []string
	recent []string
}

func (f *fakeUserDirectory) AllUserAddresses(ctx context.Context) ([]string, error) {
	return f.all, nil
}

func (f *fakeUserDirectory) RecentUserAddresses(ctx context.Context, limit int) ([]string, error) {
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

type fakePositionSource struct {
	byAddress map[string][]Position
	failFor   map[string]bool
}

func (f *fakePositionSource) FetchPositions(ctx context.Context, userAddress string) ([]Position, error) {
	if f.failFor[userAddress] {
		return nil, errors.New("fetch failed")
	}
	return f.byAddress[userAddress], nil
}

func newTestStore(t *testing.T) *marketstore.Store {
	t.Helper()
	store := marketstore.NewStore(marketstore.NewMemoryRepository(), nil)
	return store
}

func TestComputeRequiredDustAndTerminalFiltering(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertMarket(context.Background(), marketstore.Market{
		ID:            "m-active",
		ConditionID:   "c-active",
		Question:      "Will it happen?",
		Status:        marketstore.StatusActive,
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{0.5, 0.5},
		ClobTokenIDs:  []string{"t0", "t1"},
	}))
	require.NoError(t, store.UpsertMarket(context.Background(), marketstore.Market{
		ID:            "m-resolved",
		ConditionID:   "c-resolved",
		Question:      "Already settled?",
		Status:        marketstore.StatusResolved,
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{1, 0},
		ClobTokenIDs:  []string{"t2", "t3"},
	}))

	c := New(config.WatchedConfig{}, nil, nil, nil, store, slog.Default())

	positions := []Position{
		{UserAddress: "0xA", MarketID: "m-active", Size: 10},
		{UserAddress: "0xB", MarketID: "m-active", Size: 0.01}, // dust
		{UserAddress: "0xC", MarketID: "m-resolved", Size: 50}, // terminal market excluded
	}

	required := c.computeRequired(context.Background(), positions)
	assert.Equal(t, map[string]int{"m-active": 1}, required)
}

func TestReconcileUpsertsAndDeletes(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertMarket(context.Background(), marketstore.Market{
		ID:            "m1",
		ConditionID:   "c1",
		Question:      "q",
		Status:        marketstore.StatusActive,
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{0.5, 0.5},
		ClobTokenIDs:  []string{"t0", "t1"},
	}))

	repo := NewMemoryRepository()
	_, err := repo.Upsert(context.Background(), WatchedMarket{MarketID: "stale-market", ActivePositions: 1})
	require.NoError(t, err)

	source := &fakePositionSource{byAddress: map[string][]Position{
		"0xA": {{UserAddress: "0xA", MarketID: "m1", Size: 5}},
	}}
	cache := NewPositionCache(source, time.Minute)
	users := &fakeUserDirectory{all: []string{"0xA"}}

	c := New(config.WatchedConfig{
		ReconcileInterval:    time.Hour,
		SkipDeleteFailPctMax: 0.20,
		SweepEveryNCycles:    0,
	}, users, cache, repo, store, slog.Default())

	c.reconcile(context.Background())

	rows, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "m1", rows[0].MarketID)
	assert.Equal(t, []string{"m1"}, c.DesiredMarkets())
	assert.True(t, c.RefreshRequested())
}

func TestReconcileTwiceWithUnchangedInputsIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertMarket(context.Background(), marketstore.Market{
		ID:            "m1",
		ConditionID:   "c1",
		Question:      "q",
		Status:        marketstore.StatusActive,
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{0.5, 0.5},
		ClobTokenIDs:  []string{"t0", "t1"},
	}))

	repo := NewMemoryRepository()
	source := &fakePositionSource{byAddress: map[string][]Position{
		"0xA": {{UserAddress: "0xA", MarketID: "m1", Size: 5}},
	}}
	cache := NewPositionCache(source, time.Minute)
	users := &fakeUserDirectory{all: []string{"0xA"}}

	c := New(config.WatchedConfig{
		ReconcileInterval:    time.Hour,
		SkipDeleteFailPctMax: 0.20,
	}, users, cache, repo, store, slog.Default())

	c.reconcile(context.Background())
	assert.True(t, c.RefreshRequested())

	c.reconcile(context.Background())
	assert.False(t, c.RefreshRequested(), "second run with unchanged inputs must not signal a refresh")
}

func TestReconcileSkipsDeletesWhenFailureRateTooHigh(t *testing.T) {
	store := newTestStore(t)
	repo := NewMemoryRepository()
	_, err := repo.Upsert(context.Background(), WatchedMarket{MarketID: "kept-market", ActivePositions: 1})
	require.NoError(t, err)

	source := &fakePositionSource{
		byAddress: map[string][]Position{},
		failFor:   map[string]bool{"0xA": true, "0xB": true},
	}
	cache := NewPositionCache(source, time.Minute)
	users := &fakeUserDirectory{all: []string{"0xA", "0xB"}}

	c := New(config.WatchedConfig{
		ReconcileInterval:    time.Hour,
		SkipDeleteFailPctMax: 0.20,
	}, users, cache, repo, store, slog.Default())

	c.reconcile(context.Background())

	rows, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1, "deletions must be skipped when fetch failure rate exceeds the guard")
	assert.Equal(t, "kept-market", rows[0].MarketID)
}

type fakeActivitySource struct{ markets []string }

func (f *fakeActivitySource) RecentActiveMarkets(ctx context.Context, window time.Duration) ([]string, error) {
	return f.markets, nil
}

func TestReconcileAugmentsWithSmartActivityWhenEnabled(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.UpsertMarket(context.Background(), marketstore.Market{
		ID: "m-smart", ConditionID: "c-smart", Question: "q",
		Status:        marketstore.StatusActive,
		Outcomes:      []string{"Yes", "No"},
		OutcomePrices: []float64{0.5, 0.5},
		ClobTokenIDs:  []string{"t0", "t1"},
	}))

	repo := NewMemoryRepository()
	source := &fakePositionSource{byAddress: map[string][]Position{}}
	cache := NewPositionCache(source, time.Minute)
	users := &fakeUserDirectory{all: []string{"0xA"}}

	c := New(config.WatchedConfig{
		ReconcileInterval:    time.Hour,
		IncludeSmartActivity: true,
		SmartActivityWindow:  30 * 24 * time.Hour,
		SkipDeleteFailPctMax: 0.20,
	}, users, cache, repo, store, slog.Default())
	c.SetSmartActivitySource(&fakeActivitySource{markets: []string{"m-smart"}})

	c.reconcile(context.Background())

	assert.Contains(t, c.DesiredMarkets(), "m-smart")
	rows, err := repo.All(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 0, rows[0].ActivePositions)
}

func TestInactiveMarketSweepDeletesUntrackedRows(t *testing.T) {
	store := newTestStore(t)
	repo := NewMemoryRepository()
	_, err := repo.Upsert(context.Background(), WatchedMarket{MarketID: "long-gone", ActivePositions: 1})
	require.NoError(t, err)

	source := &fakePositionSource{byAddress: map[string][]Position{}}
	cache := NewPositionCache(source, time.Minute)
	users := &fakeUserDirectory{recent: []string{"0xA"}}

	c := New(config.WatchedConfig{SweepUserLimit: 50}, users, cache, repo, store, slog.Default())
	c.inactiveMarketSweep(context.Background())

	rows, err := repo.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}
