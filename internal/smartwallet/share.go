package smartwallet

import (
	"context"
	"strings"
	"time"
)

// Shareable reports whether a normalized trade qualifies for the
// downstream fan-out feed. Single source of truth for that decision so
// every notifier agrees on "shareable".
func Shareable(t SmartWalletTrade, now time.Time, cfg shareConfig) bool {
	if t.Side != "BUY" {
		return false
	}
	if !t.IsFirstTime {
		return false
	}
	if t.Value < cfg.MinValue {
		return false
	}
	if strings.TrimSpace(t.MarketQuestion) == "" {
		return false
	}
	if t.WalletRank != veryWalletRank {
		return false
	}
	if matchesCryptoPricePattern(t.MarketQuestion) {
		return false
	}
	if now.Sub(t.Timestamp) > cfg.MaxAge {
		return false
	}
	return true
}

type shareConfig struct {
	MinValue float64
	MaxAge   time.Duration
}

func matchesCryptoPricePattern(question string) bool {
	lower := strings.ToLower(question)
	for _, pattern := range cryptoPricePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// ShareFanout evaluates every ingested trade against the shareable filter
// and appends qualifying ones to the shared feed, idempotently on
// trade_id.
type ShareFanout struct {
	repo Repository
	cfg  shareConfig
}

func NewShareFanout(repo Repository, minValue float64, maxAge time.Duration) *ShareFanout {
	return &ShareFanout{repo: repo, cfg: shareConfig{MinValue: minValue, MaxAge: maxAge}}
}

// Evaluate appends t to the shared feed if it qualifies. Returns whether
// it was newly added (false if already shared or not shareable). The feed
// is keyed on the canonical trade id so a fill ingested through both the
// webhook-instant and polling paths is shared exactly once.
func (f *ShareFanout) Evaluate(ctx context.Context, t SmartWalletTrade, now time.Time) (bool, error) {
	if !Shareable(t, now, f.cfg) {
		return false, nil
	}
	return f.repo.AppendToShare(ctx, CanonicalTradeID(t.TradeID))
}
