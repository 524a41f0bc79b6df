package bridge

import (
	"testing"
	"time"

	"github.com/polymarket-pulse/trader/internal/config"
)

func testRedisConfig() config.RedisConfig {
	return config.RedisConfig{URL: "redis://127.0.0.1:1"}
}

func testWebhookConfig(marketURL string) config.WebhookConfig {
	return config.WebhookConfig{
		MarketWebhookURL:    marketURL,
		CopyTradeWebhookURL: marketURL,
		POSTTimeout:         time.Second,
	}
}

func TestExtractMarketID(t *testing.T) {
	cases := map[string]string{
		"trade.M123":          "M123",
		"market.status.M123":  "M123",
		"orderbook.M999":      "M999",
		"copy_trade:0xabc123": "0xabc123",
	}
	for channel, want := range cases {
		if got := extractMarketID(channel); got != want {
			t.Fatalf("extractMarketID(%s) = %s, want %s", channel, got, want)
		}
	}
}

func TestEventFromChannel(t *testing.T) {
	cases := map[string]string{
		"market.status.M123": "market_status",
		"trade.M123":         "trade",
		"orderbook.M123":     "orderbook",
		"weird.channel":      "unknown",
	}
	for channel, want := range cases {
		if got := eventFromChannel(channel); got != want {
			t.Fatalf("eventFromChannel(%s) = %s, want %s", channel, got, want)
		}
	}
}

func TestHandleMessageIncrementsTally(t *testing.T) {
	b := New(testRedisConfig(), testWebhookConfig(""), nil)
	b.handleMessage(nil, "trade.M1", `{"amount":1}`)
	tally := b.Tally()
	if tally.Messages != 1 {
		t.Fatalf("expected 1 message tallied, got %d", tally.Messages)
	}
	if tally.Errors != 1 {
		t.Fatalf("expected a tallied error for missing webhook url, got %d", tally.Errors)
	}
}
