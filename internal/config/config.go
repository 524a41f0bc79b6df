package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration tree, loaded from a YAML file and then
// overlaid with environment variables via ApplyEnv.
type Config struct {
	PrivateKey    string `yaml:"private_key"`
	APIKey        string `yaml:"api_key"`
	APISecret     string `yaml:"api_secret"`
	APIPassphrase string `yaml:"api_passphrase"`

	DryRun      bool   `yaml:"dry_run"`
	TradingMode string `yaml:"trading_mode"` // "paper" or "live"
	LogLevel    string `yaml:"log_level"`
	SkipDB      bool   `yaml:"skip_db"` // use in-memory repositories instead of MySQL; there is no HTTP API gateway backend

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	CLOB     CLOBConfig     `yaml:"clob"`
	Gamma    GammaConfig    `yaml:"gamma"`
	Poller   PollerConfig   `yaml:"poller"`
	Watched  WatchedConfig  `yaml:"watched"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Copy     CopyConfig     `yaml:"copy"`
	Smart    SmartConfig    `yaml:"smart"`
	TPSL     TPSLConfig     `yaml:"tpsl"`
	Telegram TelegramConfig `yaml:"telegram"`
	API      APIConfig      `yaml:"api"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // DATABASE_URL
}

type RedisConfig struct {
	URL                 string        `yaml:"url"` // REDIS_URL
	SocketTimeout       time.Duration `yaml:"socket_timeout"`
	ReconnectBackoffMin time.Duration `yaml:"reconnect_backoff_min"`
	ReconnectBackoffMax time.Duration `yaml:"reconnect_backoff_max"`
}

type CLOBConfig struct {
	WSSURL string `yaml:"wss_url"` // CLOB_WSS_URL
}

type GammaConfig struct {
	APIURL string `yaml:"api_url"` // GAMMA_API_URL
}

type PollerConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`     // POLL_MS
	CompleteEvery   int           `yaml:"complete_every"`    // fast cycles per complete backfill
	FastPageBudget  int           `yaml:"fast_page_budget"`  // bounded pages per fast cycle
	CompletePageCap int           `yaml:"complete_page_cap"` // hard cap per complete cycle
	PageSize        int           `yaml:"page_size"`
	TopNRefresh     int           `yaml:"top_n_refresh"`
	InterPagePause  time.Duration `yaml:"inter_page_pause"`
	MaxBackoff      time.Duration `yaml:"max_backoff"`
}

type WatchedConfig struct {
	ReconcileInterval     time.Duration `yaml:"reconcile_interval"` // T_watch
	PositionCacheTTL      time.Duration `yaml:"position_cache_ttl"`
	IncludeSmartActivity  bool          `yaml:"include_smart_activity"`
	SmartActivityWindow   time.Duration `yaml:"smart_activity_window"`
	SweepEveryNCycles     int           `yaml:"sweep_every_n_cycles"`
	SweepUserLimit        int           `yaml:"sweep_user_limit"`
	SkipDeleteFailPctMax  float64       `yaml:"skip_delete_fail_pct_max"` // K%
	WSReconnectBackoffMin time.Duration `yaml:"ws_reconnect_backoff_min"`
	WSReconnectBackoffMax time.Duration `yaml:"ws_reconnect_backoff_max"`
	WSMaxSubscriptions    int           `yaml:"ws_max_subscriptions"`
}

type WebhookConfig struct {
	ListenHost            string        `yaml:"listen_host"`
	ListenPort            int           `yaml:"listen_port"`
	MarketWebhookURL      string        `yaml:"market_webhook_url"`     // REDIS_BRIDGE_WEBHOOK_URL
	CopyTradeWebhookURL   string        `yaml:"copy_trade_webhook_url"` // REDIS_BRIDGE_COPY_TRADE_WEBHOOK_URL
	POSTTimeout           time.Duration `yaml:"post_timeout"`
	ChannelPatternMarket  string        `yaml:"channel_pattern_market"`
	ChannelPatternTrade   string        `yaml:"channel_pattern_trade"`
	ChannelPatternBook    string        `yaml:"channel_pattern_book"`
	ChannelPatternCopy    string        `yaml:"channel_pattern_copy"`
}

type CopyConfig struct {
	MinCopyAmountUSD        float64 `yaml:"min_copy_amount_usd"`
	MinAllocationPercentage float64 `yaml:"min_allocation_percentage"`
	MaxAllocationPercentage float64 `yaml:"max_allocation_percentage"`
	WalletBalanceStaleAge   time.Duration `yaml:"wallet_balance_stale_age"`
}

type SmartConfig struct {
	SyncInterval       time.Duration `yaml:"sync_interval"` // SMART_SYNC_INTERVAL_SEC
	InvalidRateAlert   float64       `yaml:"invalid_rate_alert"`
	ShareableMinValue  float64       `yaml:"shareable_min_value"`
	ShareableMaxAge    time.Duration `yaml:"shareable_max_age"`
}

type TPSLConfig struct {
	CheckInterval    time.Duration `yaml:"check_interval"` // TPSL_CHECK_INTERVAL_SEC
	BatchSize        int           `yaml:"batch_size"`
	MinSellPacing    time.Duration `yaml:"min_sell_pacing"`
	CloseThresholdPct float64      `yaml:"close_threshold_pct"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	return Config{
		DryRun:      true,
		TradingMode: "paper",
		LogLevel:    "info",
		Database:    DatabaseConfig{URL: "pulse:pulse@tcp(127.0.0.1:3306)/pulse?parseTime=true"},
		Redis: RedisConfig{
			URL:                 "redis://127.0.0.1:6379/0",
			SocketTimeout:       4 * time.Second,
			ReconnectBackoffMin: 500 * time.Millisecond,
			ReconnectBackoffMax: 30 * time.Second,
		},
		CLOB:  CLOBConfig{WSSURL: "wss://ws-subscriptions-clob.polymarket.com/ws/market"},
		Gamma: GammaConfig{APIURL: "https://gamma-api.polymarket.com"},
		Poller: PollerConfig{
			PollInterval:    60 * time.Second,
			CompleteEvery:   60, // hourly at 60s fast cycles
			FastPageBudget:  5,
			CompletePageCap: 500,
			PageSize:        100,
			TopNRefresh:     50,
			InterPagePause:  400 * time.Millisecond,
			MaxBackoff:      300 * time.Second,
		},
		Watched: WatchedConfig{
			ReconcileInterval:     60 * time.Second,
			PositionCacheTTL:      180 * time.Second,
			IncludeSmartActivity:  false,
			SmartActivityWindow:   30 * 24 * time.Hour,
			SweepEveryNCycles:     60,
			SweepUserLimit:        50,
			SkipDeleteFailPctMax:  0.20,
			WSReconnectBackoffMin: 1 * time.Second,
			WSReconnectBackoffMax: 8 * time.Second,
			WSMaxSubscriptions:    3000,
		},
		Webhook: WebhookConfig{
			ListenHost:           "0.0.0.0",
			ListenPort:           8090,
			POSTTimeout:          5 * time.Second,
			ChannelPatternMarket: "market.status.*",
			ChannelPatternTrade:  "trade.*",
			ChannelPatternBook:   "orderbook.*",
			ChannelPatternCopy:   "copy_trade:*",
		},
		Copy: CopyConfig{
			MinCopyAmountUSD:        1,
			MinAllocationPercentage: 1,
			MaxAllocationPercentage: 100,
			WalletBalanceStaleAge:   1 * time.Hour,
		},
		Smart: SmartConfig{
			SyncInterval:      60 * time.Second,
			InvalidRateAlert:  0.10,
			ShareableMinValue: 400,
			ShareableMaxAge:   5 * time.Minute,
		},
		TPSL: TPSLConfig{
			CheckInterval:     10 * time.Second,
			BatchSize:         100,
			MinSellPacing:     200 * time.Millisecond,
			CloseThresholdPct: 0.95,
		},
		API: APIConfig{Enabled: true, Addr: ":8080"},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("POLYMARKET_PK"); v != "" {
		c.PrivateKey = v
	}
	if v := os.Getenv("POLYMARKET_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("POLYMARKET_API_SECRET"); v != "" {
		c.APISecret = v
	}
	if v := os.Getenv("POLYMARKET_API_PASSPHRASE"); v != "" {
		c.APIPassphrase = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("CLOB_WSS_URL"); v != "" {
		c.CLOB.WSSURL = v
	}
	if v := os.Getenv("GAMMA_API_URL"); v != "" {
		c.Gamma.APIURL = v
	}
	if v := os.Getenv("REDIS_BRIDGE_WEBHOOK_URL"); v != "" {
		c.Webhook.MarketWebhookURL = v
	}
	if v := os.Getenv("REDIS_BRIDGE_COPY_TRADE_WEBHOOK_URL"); v != "" {
		c.Webhook.CopyTradeWebhookURL = v
	}
	if d, ok := envMillis("POLL_MS"); ok {
		c.Poller.PollInterval = d
	}
	if d, ok := envSeconds("WS_RECONNECT_BACKOFF_MIN"); ok {
		c.Watched.WSReconnectBackoffMin = d
	}
	if d, ok := envSeconds("WS_RECONNECT_BACKOFF_MAX"); ok {
		c.Watched.WSReconnectBackoffMax = d
	}
	if n, ok := envInt("WS_MAX_SUBSCRIPTIONS"); ok {
		c.Watched.WSMaxSubscriptions = n
	}
	if v := os.Getenv("WEBHOOK_LISTEN_HOST"); v != "" {
		c.Webhook.ListenHost = v
	}
	if n, ok := envInt("WEBHOOK_LISTEN_PORT"); ok {
		c.Webhook.ListenPort = n
	}
	if d, ok := envSeconds("TPSL_CHECK_INTERVAL_SEC"); ok {
		c.TPSL.CheckInterval = d
	}
	if d, ok := envSeconds("SMART_SYNC_INTERVAL_SEC"); ok {
		c.Smart.SyncInterval = d
	}
	if f, ok := envFloat("MIN_COPY_AMOUNT_USD"); ok {
		c.Copy.MinCopyAmountUSD = f
	}
	if f, ok := envFloat("MIN_ALLOCATION_PERCENTAGE"); ok {
		c.Copy.MinAllocationPercentage = f
	}
	if f, ok := envFloat("MAX_ALLOCATION_PERCENTAGE"); ok {
		c.Copy.MaxAllocationPercentage = f
	}
	if v := strings.TrimSpace(os.Getenv("TRADER_TRADING_MODE")); v != "" {
		c.TradingMode = strings.ToLower(v)
	}
	if v := os.Getenv("TRADER_DRY_RUN"); v != "" {
		c.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("SKIP_DB"); v != "" {
		c.SkipDB = strings.EqualFold(v, "true") || v == "1"
	}
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(name string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func envMillis(name string) (time.Duration, bool) {
	n, ok := envInt(name)
	if !ok || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Millisecond, true
}

func envSeconds(name string) (time.Duration, bool) {
	f, ok := envFloat(name)
	if !ok || f <= 0 {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}
