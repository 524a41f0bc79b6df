package marketstore

import (
	"context"
	"time"
)

// liveSourceFreshWindow is the "fresh" bound on a WS-sourced live quote in
// the first step of the price cascade.
const liveSourceFreshWindow = 60 * time.Second

// RESTPriceFetcher is the last-resort collaborator in the price cascade: a
// direct read from the exchange's REST API, used only when the live layer
// has no WS-sourced quote at all (so WS is not known-authoritative).
type RESTPriceFetcher interface {
	FetchPrice(ctx context.Context, marketID string, outcomeIndex int) (float64, error)
}

// Store composes the canonical Repository with the volatile LiveQuoteLayer
// behind the one price-read cascade every consumer goes through.
type Store struct {
	Repo  Repository
	Quote *LiveQuoteLayer
	REST  RESTPriceFetcher // optional; nil disables cascade step 4
}

func NewStore(repo Repository, rest RESTPriceFetcher) *Store {
	return &Store{Repo: repo, Quote: NewLiveQuoteLayer(), REST: rest}
}

func (s *Store) UpsertMarket(ctx context.Context, m Market) error {
	return s.Repo.UpsertMarket(ctx, m)
}

func (s *Store) GetMarket(ctx context.Context, id string, allowClosed bool) (Market, bool, error) {
	return s.Repo.GetMarket(ctx, id, allowClosed)
}

func (s *Store) ListActive(ctx context.Context, filter ListFilter, sortBy ListSort, page Page) ([]Market, error) {
	return s.Repo.ListActive(ctx, filter, sortBy, page)
}

func (s *Store) SetLiveQuote(marketID string, bid, ask float64, source QuoteSource) {
	s.Quote.SetLiveQuote(marketID, bid, ask, source)
}

// ResolvePrice is the single price-read cascade every consumer must use:
//  1. live quote with source=ws if fresh (<=60s) — use its mid, or last
//     trade price if mid is unavailable.
//  2. live quote with source=poll.
//  3. outcome_prices[outcome_index] from the canonical market.
//  4. external exchange REST, only reached when step 1 found nothing
//     WS-sourced at all (WS is not known-authoritative for this market).
func (s *Store) ResolvePrice(ctx context.Context, marketID string, outcomeIndex int) (float64, bool, error) {
	if fresh, ok := s.Quote.Fresh(marketID, liveSourceFreshWindow); ok {
		if fresh.Mid > 0 {
			return fresh.Mid, true, nil
		}
		if fresh.LastTradePrice > 0 {
			return fresh.LastTradePrice, true, nil
		}
	}

	q, hasQuote := s.Quote.Get(marketID)
	if hasQuote && q.Source == SourcePoll {
		if q.Mid > 0 {
			return q.Mid, true, nil
		}
		if q.LastTradePrice > 0 {
			return q.LastTradePrice, true, nil
		}
	}

	m, found, err := s.Repo.GetMarket(ctx, marketID, true)
	if err != nil {
		return 0, false, err
	}
	if found && outcomeIndex >= 0 && outcomeIndex < len(m.OutcomePrices) {
		if p := m.OutcomePrices[outcomeIndex]; p > 0 {
			return p, true, nil
		}
	}

	if (!hasQuote || q.Source != SourceWS) && s.REST != nil {
		price, err := s.REST.FetchPrice(ctx, marketID, outcomeIndex)
		if err != nil {
			return 0, false, err
		}
		return price, true, nil
	}

	return 0, false, nil
}
