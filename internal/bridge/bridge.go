// Package bridge pattern-subscribes to the Redis channels the rest of the
// system publishes on and forwards each message to the configured webhook
// endpoints, deduplicating nothing — the webhook dispatcher is the retry
// boundary, the bridge itself never retries a POST.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/redis/go-redis/v9"

	"github.com/polymarket-pulse/trader/internal/config"
)

// Tally is the running {messages, successes, errors} counter exposed for
// health checks.
type Tally struct {
	Messages  int64
	Successes int64
	Errors    int64
}

type outboundMarketEvent struct {
	MarketID  string          `json:"market_id"`
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp string          `json:"timestamp"`
}

// Bridge owns the Redis pattern subscription and the HTTP forwarding.
type Bridge struct {
	redisURL string
	cfg      config.WebhookConfig
	http     *resty.Client
	log      *slog.Logger

	messages  atomic.Int64
	successes atomic.Int64
	errors    atomic.Int64
}

func New(redisCfg config.RedisConfig, webhookCfg config.WebhookConfig, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{
		redisURL: redisCfg.URL,
		cfg:      webhookCfg,
		http:     resty.New().SetTimeout(webhookCfg.POSTTimeout),
		log:      log.With("component", "bridge"),
	}
}

func (b *Bridge) Tally() Tally {
	return Tally{
		Messages:  b.messages.Load(),
		Successes: b.successes.Load(),
		Errors:    b.errors.Load(),
	}
}

// Run subscribes to the four fixed channel patterns and forwards messages
// until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	opts, err := redis.ParseURL(b.redisURL)
	if err != nil {
		return fmt.Errorf("bridge: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	patterns := []string{
		b.cfg.ChannelPatternMarket,
		b.cfg.ChannelPatternTrade,
		b.cfg.ChannelPatternBook,
		b.cfg.ChannelPatternCopy,
	}
	sub := client.PSubscribe(ctx, patterns...)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("bridge: subscription channel closed")
			}
			b.handleMessage(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (b *Bridge) handleMessage(ctx context.Context, channel, payload string) {
	b.messages.Add(1)

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		wrapped, _ := json.Marshal(map[string]string{"raw_message": payload})
		raw = wrapped
	}

	var (
		url  string
		body any
	)
	if strings.HasPrefix(channel, "copy_trade:") {
		url = b.cfg.CopyTradeWebhookURL
		body = json.RawMessage(raw)
	} else {
		marketID := extractMarketID(channel)
		event := eventFromChannel(channel)
		url = b.cfg.MarketWebhookURL
		body = outboundMarketEvent{
			MarketID:  marketID,
			Event:     event,
			Payload:   raw,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
	}

	if url == "" {
		b.errors.Add(1)
		b.log.Warn("bridge: no webhook url configured for channel", "channel", channel)
		return
	}

	resp, err := b.http.R().SetContext(ctx).SetBody(body).Post(url)
	if err != nil || (resp.StatusCode() != 200 && resp.StatusCode() != 201) {
		b.errors.Add(1)
		b.log.Warn("bridge: webhook post failed", "channel", channel, "url", url, "err", err)
		return
	}
	b.successes.Add(1)
}

// extractMarketID takes the last segment of the channel name, split on ":"
// if present and on "." otherwise, e.g. "trade.M123" -> "M123",
// "market.status.M123" -> "M123".
func extractMarketID(channel string) string {
	sep := "."
	if strings.Contains(channel, ":") {
		sep = ":"
	}
	parts := strings.Split(channel, sep)
	return parts[len(parts)-1]
}

func eventFromChannel(channel string) string {
	switch {
	case strings.HasPrefix(channel, "market.status."):
		return "market_status"
	case strings.HasPrefix(channel, "trade."):
		return "trade"
	case strings.HasPrefix(channel, "orderbook."):
		return "orderbook"
	default:
		return "unknown"
	}
}
