// Package marketstore is the canonical mapping from market id to market
// record (status, outcomes, prices, liquidity, resolution), plus the
// volatile live-quote layer the WebSocket streamer and poller write into
// and the price-read cascade every trading component must go through.
package marketstore

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a market.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusClosed    Status = "CLOSED"
	StatusResolved  Status = "RESOLVED"
	StatusArchived  Status = "ARCHIVED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further trading activity should occur.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// Market is the canonical record for one prediction market.
type Market struct {
	ID            string    `gorm:"primaryKey;column:id"`
	ConditionID   string    `gorm:"column:condition_id;index"`
	Question      string    `gorm:"column:question"`
	Slug          string    `gorm:"column:slug"`
	Status        Status    `gorm:"column:status;index"`
	Outcomes      []string  `gorm:"-"` // parallel sequences stored as JSON columns below
	OutcomePrices []float64 `gorm:"-"`
	ClobTokenIDs  []string  `gorm:"-"`
	OutcomesJSON  string    `gorm:"column:outcomes_json"`
	PricesJSON    string    `gorm:"column:prices_json"`
	TokenIDsJSON  string    `gorm:"column:token_ids_json"`
	Volume        float64   `gorm:"column:volume"`
	Liquidity     float64   `gorm:"column:liquidity"`
	EndDate       time.Time `gorm:"column:end_date;index"`
	EventID       string    `gorm:"column:event_id"`
	EventTitle    string    `gorm:"column:event_title"`
	LastUpdated   time.Time `gorm:"column:last_updated"`
}

func (Market) TableName() string { return "markets" }

// Validate enforces the parallel-sequence length invariant.
func (m Market) Validate() error {
	if len(m.Outcomes) == 0 {
		return nil
	}
	if len(m.Outcomes) != len(m.OutcomePrices) || len(m.Outcomes) != len(m.ClobTokenIDs) {
		return fmt.Errorf("marketstore: outcomes/prices/token_ids length mismatch for market %s: %d/%d/%d",
			m.ID, len(m.Outcomes), len(m.OutcomePrices), len(m.ClobTokenIDs))
	}
	return nil
}

// Tradable reports whether the market currently accepts trading activity.
func (m Market) Tradable(now time.Time) bool {
	return m.Status == StatusActive && m.EndDate.After(now) && len(m.OutcomePrices) > 0
}

// OutcomeIndex returns the index of the given outcome label, or -1.
func (m Market) OutcomeIndex(label string) int {
	for i, o := range m.Outcomes {
		if o == label {
			return i
		}
	}
	return -1
}
