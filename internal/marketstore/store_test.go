package marketstore

import (
	"context"
	"testing"
	"time"
)

func newTestMarket(id string, status Status) Market {
	return Market{
		ID:            id,
		ConditionID:   "0x1",
		Question:      "Will X happen?",
		Status:        status,
		Outcomes:      []string{"NO", "YES"},
		OutcomePrices: []float64{0.4, 0.6},
		ClobTokenIDs:  []string{"t0", "t1"},
		EndDate:       time.Now().Add(24 * time.Hour),
	}
}

func TestMemoryRepositoryUpsertIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	m := newTestMarket("m1", StatusActive)

	if err := repo.UpsertMarket(ctx, m); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.UpsertMarket(ctx, m); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, ok, err := repo.GetMarket(ctx, "m1", true)
	if err != nil || !ok {
		t.Fatalf("get market: ok=%v err=%v", ok, err)
	}
	if got.Question != m.Question || got.Liquidity != m.Liquidity {
		t.Fatalf("upsert not idempotent: %+v vs %+v", got, m)
	}
}

func TestUpsertMarketRejectsTerminalRegression(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	resolved := newTestMarket("m1", StatusResolved)
	if err := repo.UpsertMarket(ctx, resolved); err != nil {
		t.Fatalf("upsert resolved: %v", err)
	}

	staleActive := newTestMarket("m1", StatusActive)
	if err := repo.UpsertMarket(ctx, staleActive); err != nil {
		t.Fatalf("upsert stale active: %v", err)
	}

	got, _, _ := repo.GetMarket(ctx, "m1", true)
	if got.Status != StatusResolved {
		t.Fatalf("terminal status regressed: got %s", got.Status)
	}
}

func TestValidateRejectsLengthMismatch(t *testing.T) {
	m := newTestMarket("m1", StatusActive)
	m.ClobTokenIDs = []string{"only-one"}
	if err := m.Validate(); err == nil {
		t.Fatal("expected validation error for mismatched lengths")
	}
}

func TestLiveQuoteLayerMidComputation(t *testing.T) {
	layer := NewLiveQuoteLayer()
	layer.SetLiveQuote("m1", 0.42, 0.44, SourceWS)

	q, ok := layer.Get("m1")
	if !ok {
		t.Fatal("expected quote present")
	}
	if diff := q.Mid - 0.43; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("mid = %f, want 0.43", q.Mid)
	}
}

func TestResolvePriceCascade(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	store := NewStore(repo, nil)

	m := newTestMarket("m1", StatusActive)
	if err := store.UpsertMarket(ctx, m); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	price, ok, err := store.ResolvePrice(ctx, "m1", 1)
	if err != nil || !ok {
		t.Fatalf("expected cascade to reach canonical price: ok=%v err=%v", ok, err)
	}
	if price != 0.6 {
		t.Fatalf("expected canonical outcome price 0.6, got %f", price)
	}

	store.SetLiveQuote("m1", 0.58, 0.62, SourceWS)
	price, ok, err = store.ResolvePrice(ctx, "m1", 1)
	if err != nil || !ok {
		t.Fatalf("expected fresh ws mid: ok=%v err=%v", ok, err)
	}
	if price != 0.60 {
		t.Fatalf("expected ws mid 0.60, got %f", price)
	}
}

func TestResolvePriceFallsBackToREST(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	rest := fakeREST{price: 0.77}
	store := NewStore(repo, rest)

	price, ok, err := store.ResolvePrice(ctx, "unknown-market", 0)
	if err != nil || !ok {
		t.Fatalf("expected REST fallback: ok=%v err=%v", ok, err)
	}
	if price != 0.77 {
		t.Fatalf("expected 0.77 from REST fallback, got %f", price)
	}
}

type fakeREST struct{ price float64 }

func (f fakeREST) FetchPrice(ctx context.Context, marketID string, outcomeIndex int) (float64, error) {
	return f.price, nil
}
