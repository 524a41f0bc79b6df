// Package watched implements the reconciliation loop that computes the
// union of markets with active user positions (plus optional recent
// smart-wallet activity), maintains the WS streamer's subscription set,
// evicts resolved markets, and exposes the redeemable-position filter.
package watched

import "time"

// DustThreshold is the size below which a position is treated as
// non-existent for all scheduling purposes.
const DustThreshold = 0.1

// PositionStatus mirrors the Position entity's lifecycle.
type PositionStatus string

const (
	PositionActive PositionStatus = "active"
	PositionClosed PositionStatus = "closed"
)

// Position is a user's holding of one outcome of one market.
type Position struct {
	UserAddress     string
	MarketID        string
	ConditionID     string
	OutcomeIndex    int
	TokenID         string
	Size            float64
	AvgPrice        float64
	EntryPrice      float64
	Status          PositionStatus
	TakeProfitPrice *float64
	StopLossPrice   *float64
	CurrentPrice    *float64
	UpdatedAt       time.Time
}

// IsDust reports whether the position size is below the display/scheduling
// threshold and should be treated as nonexistent.
func (p Position) IsDust() bool { return p.Size < DustThreshold }

// WatchedMarket is the subscription control row: a market whose live quote
// must be maintained because at least one tracked user holds a non-dust
// position in it.
type WatchedMarket struct {
	MarketID        string `gorm:"primaryKey;column:market_id"`
	ConditionID     string `gorm:"column:condition_id"`
	ActivePositions int    `gorm:"column:active_positions"`
	LastPositionAt  time.Time `gorm:"column:last_position_at"`
}

func (WatchedMarket) TableName() string { return "watched_markets" }
