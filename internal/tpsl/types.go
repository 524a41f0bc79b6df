// Package tpsl runs the take-profit/stop-loss monitor: a batched loop
// that evaluates live prices against each position's triggers, executes
// the sell, and reconciles position size against the chain.
package tpsl

import "time"

// TriggerType distinguishes which threshold fired; TP wins on a tie.
type TriggerType string

const (
	TriggerTakeProfit TriggerType = "TAKE_PROFIT"
	TriggerStopLoss   TriggerType = "STOP_LOSS"
)

// PositionStatus mirrors the shared Position entity's lifecycle.
type PositionStatus string

const (
	StatusActive PositionStatus = "active"
	StatusClosed PositionStatus = "closed"
)

// Position is the subset of position state the monitor reads and mutates.
// UserAddress/MarketID/TokenID are fixed per row; Size/CurrentPrice/the
// two trigger prices are updated in place by the monitor.
type Position struct {
	ID              string `gorm:"primaryKey;column:id"`
	UserAddress     string `gorm:"column:user_address"`
	MarketID        string `gorm:"column:market_id"`
	OutcomeIndex    int    `gorm:"column:outcome_index"`
	TokenID         string `gorm:"column:token_id"`
	Size            float64 `gorm:"column:size"`
	EntryPrice      float64 `gorm:"column:entry_price"`
	CurrentPrice    float64 `gorm:"column:current_price"`
	TakeProfitPrice *float64 `gorm:"column:take_profit_price"`
	StopLossPrice   *float64 `gorm:"column:stop_loss_price"`
	Status          PositionStatus `gorm:"column:status"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (Position) TableName() string { return "user_positions" }

// TriggerResult records the outcome of one triggered position's
// evaluate-sync-sell-close pipeline, the payload for the TPSL_TRIGGER /
// TPSL_FAILED notifications.
type TriggerResult struct {
	Position       Position
	TriggerType    TriggerType
	ExecutionPrice float64
	TokensSold     float64
	USDReceived    float64
	RealizedPnL    float64
	RealizedPnLPct float64
	TxHash         string
	Closed         bool
	Failed         bool
	FailReason     string
}
