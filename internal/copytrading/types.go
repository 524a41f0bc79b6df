// Package copytrading mirrors a leader's fills into each subscribed
// follower's wallet, sized by the follower's allocation and executed
// against the exchange client.
package copytrading

import "time"

// LeaderKind classifies the three tiers a trade's source address can
// resolve to.
type LeaderKind string

const (
	LeaderBotUser      LeaderKind = "bot_user"
	LeaderSmartTrader  LeaderKind = "smart_trader"
	LeaderCopyLeader   LeaderKind = "copy_leader"
)

// AllocationMode controls how a BUY copy amount is sized.
type AllocationMode string

const (
	ModeProportional AllocationMode = "PROPORTIONAL"
	ModeFixed        AllocationMode = "FIXED"
)

// SkipReason records why an incoming leader trade was not mirrored.
type SkipReason string

const (
	SkipNone               SkipReason = ""
	SkipInsufficientBudget SkipReason = "INSUFFICIENT_BUDGET"
	SkipBelowMinimum       SkipReason = "BELOW_MINIMUM"
	SkipNoPosition         SkipReason = "NO_POSITION"
	SkipNoAllocation       SkipReason = "NO_ALLOCATION"
	SkipOrderFailed        SkipReason = "ORDER_FAILED"
)

// LeaderTrade is a single fill observed on a leader's wallet, the input
// to the mirror sizing algorithm.
type LeaderTrade struct {
	LeaderAddress      string
	MarketID           string
	ConditionID        string
	TokenID            string
	OutcomeIndex       int
	OutcomeLabel       string
	Side               string // BUY or SELL
	AmountUSD          float64
	Size               float64
	Price              float64
	WalletBalance      *float64 // leader's USDC balance at fill time, if known
	PositionSizeBefore float64  // leader's position size before this fill, for SELL sizing
	TxHash             string
	Timestamp          time.Time
}

// CopyAllocation is one follower's standing subscription to a leader.
// Invariant: at most one active allocation per follower.
type CopyAllocation struct {
	ID                  string `gorm:"primaryKey;column:id"`
	FollowerAddress     string `gorm:"column:follower_address;uniqueIndex:idx_active_follower,where:is_active"`
	LeaderAddress       string `gorm:"column:leader_address"`
	AllocationMode      AllocationMode `gorm:"column:allocation_mode"`
	AllocationPercentage float64       `gorm:"column:allocation_percentage"` // PROPORTIONAL, 0<p<=100
	FixedAmountUSD      float64       `gorm:"column:fixed_amount_usd"`      // FIXED
	IsActive            bool          `gorm:"column:is_active"`
	TotalWalletBalance  float64       `gorm:"column:total_wallet_balance"`
	AllocatedBudget     float64       `gorm:"column:allocated_budget"`
	BudgetRemaining     float64       `gorm:"column:budget_remaining"`
	LastWalletSync      time.Time     `gorm:"column:last_wallet_sync"`
	TotalCopiedTrades   int           `gorm:"column:total_copied_trades"`
	TotalInvested       float64       `gorm:"column:total_invested"`
	TotalPnL            float64       `gorm:"column:total_pnl"`
}

func (CopyAllocation) TableName() string { return "copy_allocations" }

func (a *CopyAllocation) balanceStale(staleAfter time.Duration) bool {
	return time.Since(a.LastWalletSync) > staleAfter
}

// refreshBudget recomputes allocated_budget from total_wallet_balance per
// the documented budget refresh rule, carrying forward what has already
// been spent.
func (a *CopyAllocation) refreshBudget(totalWalletBalance float64, now time.Time) {
	spent := a.AllocatedBudget - a.BudgetRemaining
	a.TotalWalletBalance = totalWalletBalance
	a.AllocatedBudget = totalWalletBalance * a.AllocationPercentage / 100
	a.BudgetRemaining = a.AllocatedBudget - spent
	if a.BudgetRemaining < 0 {
		a.BudgetRemaining = 0
	}
	a.LastWalletSync = now
}

// CopyTradeResult records a mirror attempt's outcome, mirroring the
// normalized copy_trade wire message.
type CopyTradeResult struct {
	FollowerAddress string
	LeaderAddress   string
	MarketID        string
	OutcomeLabel    string
	Side            string
	CopyAmountUSD   float64
	CopySizeTokens  float64
	Success         bool
	SkipReason      SkipReason
	OrderID         string
	TxHash          string
	Timestamp       time.Time
}
