// Package smartwallet ingests raw on-chain leader fills, validates and
// enriches them into a normalized view, and exposes the shareable filter
// that downstream notifiers read from. Rows that fail validation are
// routed to a dead-letter table instead of aborting the sync loop.
package smartwallet

import "time"

// TrackedLeaderTrade is a raw on-chain fill observed for a tracked
// wallet, the ingestion path's input row.
type TrackedLeaderTrade struct {
	TxID           string `gorm:"primaryKey;column:tx_id"`
	WalletAddress  string `gorm:"column:wallet_address"`
	MarketID       string `gorm:"column:market_id"` // numeric
	Side           string `gorm:"column:side"`
	Price          float64 `gorm:"column:price"`
	Size           float64 `gorm:"column:size"`
	IsSmartWallet  bool    `gorm:"column:is_smart_wallet"`
	WalletRank     string  `gorm:"column:wallet_rank"` // e.g. "Very Smart"
	Timestamp      time.Time `gorm:"column:timestamp"`
}

func (TrackedLeaderTrade) TableName() string { return "tracked_leader_trades" }

// SmartWalletTrade is the normalized, UI-ready view of a validated fill.
type SmartWalletTrade struct {
	TradeID        string    `gorm:"primaryKey;column:trade_id"`
	WalletAddress  string    `gorm:"column:wallet_address"`
	MarketID       string    `gorm:"column:market_id"`
	ConditionID    string    `gorm:"column:condition_id"`
	PositionID     string    `gorm:"column:position_id"`
	Side           string    `gorm:"column:side"`
	Outcome        string    `gorm:"column:outcome"`
	Price          float64   `gorm:"column:price"`
	Size           float64   `gorm:"column:size"`
	Value          float64   `gorm:"column:value"`
	MarketQuestion string    `gorm:"column:market_question"`
	IsFirstTime    bool      `gorm:"column:is_first_time"`
	PriceIsDefault bool      `gorm:"column:price_is_default"`
	WalletRank     string    `gorm:"column:wallet_rank"`
	Timestamp      time.Time `gorm:"column:timestamp"`
}

func (SmartWalletTrade) TableName() string { return "smart_wallet_trades" }

// InvalidTrade is a dead-letter row: a raw trade that failed validation.
type InvalidTrade struct {
	TxID   string `gorm:"primaryKey;column:tx_id"`
	Reason string `gorm:"column:reason"`
}

func (InvalidTrade) TableName() string { return "smart_wallet_trades_invalid" }

const defaultPriceWhenUnfetchable = 0.50

const veryWalletRank = "Very Smart"

// cryptoPricePatterns are substrings of a market question that mark it as
// a crypto price-prediction market, excluded from the shareable filter.
var cryptoPricePatterns = []string{
	"will btc", "will eth", "will bitcoin", "will ethereum",
	"price of btc", "price of eth", "reach $", "hit $",
}
