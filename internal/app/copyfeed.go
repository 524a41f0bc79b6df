package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/polymarket-pulse/trader/internal/copytrading"
	"github.com/polymarket-pulse/trader/internal/marketstore"
	"github.com/polymarket-pulse/trader/internal/publisher"
	"github.com/polymarket-pulse/trader/internal/smartwallet"
)

// copyFeedNotifier is the subset of notify.Notifier the copy feed depends on.
type copyFeedNotifier interface {
	NotifyCopyTradeSkipped(ctx context.Context, leaderAddress, marketTitle, reason string) error
	NotifyCopyTradeFilled(ctx context.Context, leaderAddress, marketTitle, side string, copyAmountUSD float64) error
	NotifySmartWalletShare(ctx context.Context, walletAddress, marketQuestion, outcome string, value float64) error
}

// CopyFeed tails newly ingested normalized trades and, for every address
// classified as a copy leader, dispatches them into the copy-trading
// engine; it also evaluates the smart-wallet shareable filter and
// publishes both outcomes to the rest of the system.
type CopyFeed struct {
	interval time.Duration
	trades   smartwallet.Repository
	resolver *copytrading.LeaderResolver
	engine   *copytrading.Engine
	fanout   *smartwallet.ShareFanout
	store    *marketstore.Store
	pub      *publisher.Publisher
	notifier copyFeedNotifier
	log      *slog.Logger

	cursor time.Time
}

func NewCopyFeed(interval time.Duration, trades smartwallet.Repository, resolver *copytrading.LeaderResolver,
	engine *copytrading.Engine, fanout *smartwallet.ShareFanout, store *marketstore.Store,
	pub *publisher.Publisher, notifier copyFeedNotifier, log *slog.Logger) *CopyFeed {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &CopyFeed{
		interval: interval, trades: trades, resolver: resolver, engine: engine,
		fanout: fanout, store: store, pub: pub, notifier: notifier, log: log.With("component", "copyfeed"),
	}
}

func (f *CopyFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.tick(ctx)
		}
	}
}

func (f *CopyFeed) tick(ctx context.Context) {
	trades, err := f.trades.ListNormalizedSince(ctx, f.cursor)
	if err != nil {
		f.log.Warn("copyfeed: list since failed", "err", err)
		return
	}
	for _, t := range trades {
		if t.Timestamp.After(f.cursor) {
			f.cursor = t.Timestamp
		}
		f.handleTrade(ctx, t)
	}
}

func (f *CopyFeed) handleTrade(ctx context.Context, t smartwallet.SmartWalletTrade) {
	if shareable, err := f.fanout.Evaluate(ctx, t, time.Now()); err != nil {
		f.log.Warn("copyfeed: share evaluation failed", "trade_id", t.TradeID, "err", err)
	} else if shareable {
		_ = f.notifier.NotifySmartWalletShare(ctx, t.WalletAddress, t.MarketQuestion, t.Outcome, t.Value)
		if f.pub != nil {
			_ = f.pub.PublishTrade(ctx, publisher.TradeMessage{
				MarketID: t.MarketID, TxID: t.TradeID, Outcome: t.Outcome, Side: t.Side,
				Amount: t.Size, Price: t.Price, Ts: t.Timestamp.Format(time.RFC3339),
			})
		}
	}

	kind, err := f.resolver.Resolve(ctx, t.WalletAddress)
	if err != nil || kind != copytrading.LeaderCopyLeader {
		return
	}

	market, ok, err := f.store.GetMarket(ctx, t.MarketID, true)
	if err != nil || !ok {
		return
	}
	tokenID, _ := tokenIDForOutcome(market, t.Outcome)

	results := f.engine.HandleLeaderTrade(ctx, copytrading.LeaderTrade{
		LeaderAddress: t.WalletAddress,
		MarketID:      t.MarketID,
		ConditionID:   t.ConditionID,
		TokenID:       tokenID,
		OutcomeIndex:  outcomeIndex(market, t.Outcome),
		OutcomeLabel:  t.Outcome,
		Side:          t.Side,
		AmountUSD:     t.Value,
		Size:          t.Size,
		Price:         t.Price,
		Timestamp:     t.Timestamp,
	})
	for _, r := range results {
		if r.SkipReason != copytrading.SkipNone {
			_ = f.notifier.NotifyCopyTradeSkipped(ctx, t.WalletAddress, t.MarketQuestion, string(r.SkipReason))
			continue
		}
		_ = f.notifier.NotifyCopyTradeFilled(ctx, t.WalletAddress, t.MarketQuestion, t.Side, r.CopyAmountUSD)
		if f.pub != nil {
			_ = f.pub.PublishCopyTrade(ctx, r.FollowerAddress, publisher.CopyTradeMessage{
				UserAddress: r.FollowerAddress, MarketID: t.MarketID, Outcome: t.Outcome,
				TxType: t.Side, Amount: r.CopyAmountUSD, Price: t.Price,
				Timestamp: t.Timestamp.Format(time.RFC3339),
			})
		}
	}
}
