package publisher

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/polymarket-pulse/trader/internal/config"
)

func TestPublishFailsGracefullyWithNoRedis(t *testing.T) {
	cfg := config.RedisConfig{
		URL:                 "redis://127.0.0.1:1", // nothing listens here
		SocketTimeout:       200 * time.Millisecond,
		ReconnectBackoffMin: 10 * time.Millisecond,
		ReconnectBackoffMax: 50 * time.Millisecond,
	}
	p := New(cfg, slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.PublishTrade(ctx, TradeMessage{MarketID: "m1", TxID: "t1", Side: "BUY", Amount: 10})
	if err == nil {
		t.Fatal("expected publish to fail with no redis listening, got nil (at-most-once contract requires callers observe failure)")
	}
}

func TestPublishCopyTradeChannelLowercasesWallet(t *testing.T) {
	cfg := config.RedisConfig{URL: "redis://127.0.0.1:1", SocketTimeout: 50 * time.Millisecond, ReconnectBackoffMin: 10 * time.Millisecond, ReconnectBackoffMax: 50 * time.Millisecond}
	p := New(cfg, slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// Just exercises the channel-name construction path via the public API;
	// connection failure is expected given no broker is present.
	_ = p.PublishCopyTrade(ctx, "0xABC", CopyTradeMessage{TxID: "t1", TxType: "BUY", Amount: 5})
}
