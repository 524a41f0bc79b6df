package app

import (
	"context"
	"time"

	"github.com/polymarket-pulse/trader/internal/marketstore"
	"github.com/polymarket-pulse/trader/internal/smartwallet"
)

// storeMarketResolver adapts the canonical market store to
// smartwallet.MarketResolver: the question and the matching outcome's
// label/current price for a raw trade's side.
type storeMarketResolver struct {
	store *marketstore.Store
}

func newStoreMarketResolver(store *marketstore.Store) *storeMarketResolver {
	return &storeMarketResolver{store: store}
}

func (r *storeMarketResolver) OutcomeInfo(ctx context.Context, marketID string, side string) (question, outcomeLabel string, price float64, found bool, err error) {
	m, ok, err := r.store.GetMarket(ctx, marketID, true)
	if err != nil || !ok || len(m.Outcomes) == 0 {
		return "", "", 0, false, err
	}
	idx := 0
	if side == "SELL" && len(m.Outcomes) > 1 {
		idx = 1
	}
	label := m.Outcomes[idx]
	var p float64
	if idx < len(m.OutcomePrices) {
		p = m.OutcomePrices[idx]
	}
	return m.Question, label, p, true, nil
}

// tokenIDForOutcome resolves the CLOB token ID for a market's outcome
// label, used by the copy-trade feed to place orders for leader fills
// that only carry a human-readable outcome.
func tokenIDForOutcome(m marketstore.Market, outcomeLabel string) (string, bool) {
	for i, o := range m.Outcomes {
		if o == outcomeLabel && i < len(m.ClobTokenIDs) {
			return m.ClobTokenIDs[i], true
		}
	}
	return "", false
}

func outcomeIndex(m marketstore.Market, outcomeLabel string) int {
	for i, o := range m.Outcomes {
		if o == outcomeLabel {
			return i
		}
	}
	return 0
}

// smartActivityAdapter feeds the watched-markets controller's opt-in
// augmentation from the normalized smart-wallet trade view: every market a
// tracked smart wallet traded within the window.
type smartActivityAdapter struct {
	repo smartwallet.Repository
}

func newSmartActivityAdapter(repo smartwallet.Repository) *smartActivityAdapter {
	return &smartActivityAdapter{repo: repo}
}

func (a *smartActivityAdapter) RecentActiveMarkets(ctx context.Context, window time.Duration) ([]string, error) {
	trades, err := a.repo.ListNormalizedSince(ctx, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range trades {
		if seen[t.MarketID] {
			continue
		}
		seen[t.MarketID] = true
		out = append(out, t.MarketID)
	}
	return out, nil
}
