// Package poller implements periodic REST ingestion of market metadata:
// a fast-discovery cycle and a less-frequent exhaustive backfill cycle,
// upserting into the canonical market store.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/marketstore"
)

// GammaMarket is the shape of one market object in the exchange's Gamma
// markets/events REST responses.
type GammaMarket struct {
	ID             string  `json:"id"`
	Question       string  `json:"question"`
	ConditionID    string  `json:"conditionId"`
	Slug           string  `json:"slug"`
	Active         bool    `json:"active"`
	Closed         bool    `json:"closed"`
	Archived       bool    `json:"archived"`
	EndDate        string  `json:"endDate"`
	Liquidity      string  `json:"liquidity"`
	Volume24hr     float64 `json:"volume24hr"`
	Outcomes       string  `json:"outcomes"`
	OutcomePrices  string  `json:"outcomePrices"`
	ClobTokenIds   string  `json:"clobTokenIds"`
	EventID        string  `json:"eventId"`
	EventTitle     string  `json:"eventTitle"`
	ResolutionStatus string `json:"umaResolutionStatus"`
}

func (g GammaMarket) status() marketstore.Status {
	switch {
	case strings.EqualFold(g.ResolutionStatus, "resolved"):
		return marketstore.StatusResolved
	case strings.EqualFold(g.ResolutionStatus, "cancelled"):
		return marketstore.StatusCancelled
	case g.Archived:
		return marketstore.StatusArchived
	case g.Closed:
		return marketstore.StatusClosed
	case g.Active:
		return marketstore.StatusActive
	default:
		return marketstore.StatusClosed
	}
}

func parseJSONArray[T any](s string) ([]T, error) {
	if s == "" {
		return nil, nil
	}
	var out []T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toMarket(g GammaMarket) (marketstore.Market, error) {
	outcomes, err := parseJSONArray[string](g.Outcomes)
	if err != nil {
		return marketstore.Market{}, fmt.Errorf("outcomes: %w", err)
	}
	priceStrs, err := parseJSONArray[string](g.OutcomePrices)
	if err != nil {
		return marketstore.Market{}, fmt.Errorf("outcome_prices: %w", err)
	}
	tokenIDs, err := parseJSONArray[string](g.ClobTokenIds)
	if err != nil {
		return marketstore.Market{}, fmt.Errorf("clob_token_ids: %w", err)
	}
	prices := make([]float64, len(priceStrs))
	for i, p := range priceStrs {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return marketstore.Market{}, fmt.Errorf("outcome price %q: %w", p, err)
		}
		prices[i] = f
	}
	liquidity, _ := strconv.ParseFloat(g.Liquidity, 64)
	endDate, _ := time.Parse(time.RFC3339, g.EndDate)

	m := marketstore.Market{
		ID:            g.ID,
		ConditionID:   g.ConditionID,
		Question:      g.Question,
		Slug:          g.Slug,
		Status:        g.status(),
		Outcomes:      outcomes,
		OutcomePrices: prices,
		ClobTokenIDs:  tokenIDs,
		Volume:        g.Volume24hr,
		Liquidity:     liquidity,
		EndDate:       endDate,
		EventID:       g.EventID,
		EventTitle:    g.EventTitle,
	}
	return m, m.Validate()
}

// gammaClient wraps resty with the fast/complete pagination the poller
// needs (base URL, timeout, 5xx retry).
type gammaClient struct {
	http *resty.Client
}

func newGammaClient(cfg config.GammaConfig) *gammaClient {
	c := resty.New().
		SetBaseURL(cfg.APIURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})
	return &gammaClient{http: c}
}

// fetchPage fetches one page of the /markets endpoint, ordered by volume
// descending unless order is overridden by the caller.
func (g *gammaClient) fetchPage(ctx context.Context, limit, offset int, order string) ([]GammaMarket, error) {
	var page []GammaMarket
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"limit":     strconv.Itoa(limit),
			"offset":    strconv.Itoa(offset),
			"order":     order,
			"ascending": "false",
		}).
		SetResult(&page).
		Get("/markets")
	if err != nil {
		return nil, fmt.Errorf("poller: fetch page: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, errThrottled
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("poller: fetch page: status %d", resp.StatusCode())
	}
	return page, nil
}

// fetchMarket fetches a single market by id, used by the expired-market
// resolution check.
func (g *gammaClient) fetchMarket(ctx context.Context, id string) (GammaMarket, error) {
	var m GammaMarket
	resp, err := g.http.R().
		SetContext(ctx).
		SetResult(&m).
		Get("/markets/" + id)
	if err != nil {
		return GammaMarket{}, fmt.Errorf("poller: fetch market %s: %w", id, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return GammaMarket{}, errThrottled
	}
	if resp.StatusCode() != http.StatusOK {
		return GammaMarket{}, fmt.Errorf("poller: fetch market %s: status %d", id, resp.StatusCode())
	}
	return m, nil
}

var errThrottled = fmt.Errorf("poller: upstream throttled")

func (p *Poller) logger() *slog.Logger { return p.log }
