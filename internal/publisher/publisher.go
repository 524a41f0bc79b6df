// Package publisher implements the non-blocking Redis pub/sub fan-out of
// indexer-observed fills to market-level and wallet-level channels.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/retry"
)

// TradeMessage is the payload published to trade.{market_id}.
type TradeMessage struct {
	MarketID string  `json:"market_id"`
	TxID     string  `json:"tx_id"`
	Outcome  string  `json:"outcome"`
	Side     string  `json:"side"`
	Amount   float64 `json:"amount"`
	Price    float64 `json:"price,omitempty"`
	TxHash   string  `json:"tx_hash"`
	Ts       string  `json:"timestamp"`
}

// CopyTradeMessage is the payload published to copy_trade:{wallet}.
type CopyTradeMessage struct {
	TxID          string  `json:"tx_id"`
	UserAddress   string  `json:"user_address"`
	PositionID    string  `json:"position_id"`
	MarketID      string  `json:"market_id"`
	Outcome       string  `json:"outcome"`
	TxType        string  `json:"tx_type"`
	Amount        float64 `json:"amount"`
	Price         float64 `json:"price,omitempty"`
	TxHash        string  `json:"tx_hash"`
	Timestamp     string  `json:"timestamp"`
	AddressType   string  `json:"address_type"` // onchain, bot_user, external_leader
}

// Publisher connects lazily and tolerates disconnects; publish attempts
// never block the caller longer than the configured socket timeout, and
// failures are returned rather than retried internally (at-most-once
// delivery contract — callers must tolerate loss).
type Publisher struct {
	cfg           config.RedisConfig
	log           *slog.Logger
	mu            sync.Mutex
	client        *redis.Client
	backoff       *retry.Backoff
	nextAttemptAt time.Time
}

func New(cfg config.RedisConfig, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		cfg:     cfg,
		log:     log.With("component", "publisher"),
		backoff: retry.New(cfg.ReconnectBackoffMin, cfg.ReconnectBackoffMax, 0.1),
	}
}

func (p *Publisher) ensureConnected(ctx context.Context) (*redis.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}
	if now := time.Now(); now.Before(p.nextAttemptAt) {
		return nil, fmt.Errorf("publisher: in backoff window, not reconnecting yet")
	}

	opts, err := redis.ParseURL(p.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("publisher: parse redis url: %w", err)
	}
	opts.DialTimeout = p.cfg.SocketTimeout
	opts.ReadTimeout = p.cfg.SocketTimeout
	opts.WriteTimeout = p.cfg.SocketTimeout
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, p.cfg.SocketTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		p.nextAttemptAt = time.Now().Add(p.backoff.Next())
		return nil, fmt.Errorf("publisher: connect: %w", err)
	}
	p.backoff.Reset()
	p.client = client
	return client, nil
}

func (p *Publisher) disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		_ = p.client.Close()
		p.client = nil
	}
}

// publish is the shared non-blocking publish path: connect-if-needed,
// JSON-encode, publish with a bounded timeout, drop the connection on any
// failure so the next call retries a fresh connect.
func (p *Publisher) publish(ctx context.Context, channel string, message any) error {
	client, err := p.ensureConnected(ctx)
	if err != nil {
		return err
	}
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("publisher: marshal: %w", err)
	}
	pubCtx, cancel := context.WithTimeout(ctx, p.cfg.SocketTimeout)
	defer cancel()
	if err := client.Publish(pubCtx, channel, body).Err(); err != nil {
		p.disconnect()
		return fmt.Errorf("publisher: publish: %w", err)
	}
	return nil
}

// PublishTrade publishes to trade.{market_id}.
func (p *Publisher) PublishTrade(ctx context.Context, msg TradeMessage) error {
	if msg.Ts == "" {
		msg.Ts = time.Now().UTC().Format(time.RFC3339)
	}
	channel := fmt.Sprintf("trade.%s", msg.MarketID)
	if err := p.publish(ctx, channel, msg); err != nil {
		p.log.Warn("publish trade failed", "market_id", msg.MarketID, "err", err)
		return err
	}
	return nil
}

// PublishCopyTrade publishes to copy_trade:{wallet_lowercased}.
func (p *Publisher) PublishCopyTrade(ctx context.Context, walletAddress string, msg CopyTradeMessage) error {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	channel := fmt.Sprintf("copy_trade:%s", strings.ToLower(walletAddress))
	if err := p.publish(ctx, channel, msg); err != nil {
		p.log.Warn("publish copy trade failed", "wallet", walletAddress, "err", err)
		return err
	}
	return nil
}
