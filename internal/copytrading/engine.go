package copytrading

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/errs"
	"github.com/polymarket-pulse/trader/internal/exchangeclient"
)

// FollowerPositionReader reports a follower's current holding of an
// outcome, the one fact SELL sizing needs beyond the allocation row.
type FollowerPositionReader interface {
	PositionSize(ctx context.Context, followerAddress, marketID string, outcomeIndex int) (float64, error)
}

// Engine mirrors leader trades into follower orders. Per-follower
// execution is serialized by a mutex keyed on follower address, so budget
// accounting never races two concurrent fills for the same wallet.
type Engine struct {
	cfg        config.CopyConfig
	repo       Repository
	client     exchangeclient.Client
	positions  FollowerPositionReader
	log        *slog.Logger

	mu          sync.Mutex
	followerMus map[string]*sync.Mutex
}

func NewEngine(cfg config.CopyConfig, repo Repository, client exchangeclient.Client, positions FollowerPositionReader, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:         cfg,
		repo:        repo,
		client:      client,
		positions:   positions,
		log:         log.With("component", "copytrading"),
		followerMus: make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(followerAddress string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.followerMus[followerAddress]
	if !ok {
		l = &sync.Mutex{}
		e.followerMus[followerAddress] = l
	}
	return l
}

// SubscribeToLeader upserts the follower's allocation and immediately
// refreshes allocated_budget from the follower's current USDC balance.
// Allocation parameters outside the configured bounds are rejected here,
// before any balance read or persistence.
func (e *Engine) SubscribeToLeader(ctx context.Context, followerAddress, leaderAddress string, mode AllocationMode, allocationPercentage, fixedAmountUSD float64) (CopyAllocation, error) {
	if err := e.validateAllocation(mode, allocationPercentage, fixedAmountUSD); err != nil {
		return CopyAllocation{}, err
	}
	balance, err := e.client.GetUSDCBalance(ctx, followerAddress)
	if err != nil {
		return CopyAllocation{}, exchangeclient.ErrClientUnavailable("copytrading.subscribe.balance", err)
	}

	existing, found, err := e.repo.ActiveAllocation(ctx, followerAddress)
	if err != nil {
		return CopyAllocation{}, err
	}

	a := CopyAllocation{ID: uuid.NewString(), IsActive: true}
	if found {
		a.ID = existing.ID
	}
	a.FollowerAddress = followerAddress
	a.LeaderAddress = leaderAddress
	a.AllocationMode = mode
	a.AllocationPercentage = allocationPercentage
	a.FixedAmountUSD = fixedAmountUSD
	a.refreshBudget(balance, time.Now())

	if err := e.repo.Upsert(ctx, a); err != nil {
		return CopyAllocation{}, err
	}
	return a, nil
}

func (e *Engine) validateAllocation(mode AllocationMode, allocationPercentage, fixedAmountUSD float64) error {
	switch mode {
	case ModeFixed:
		if fixedAmountUSD <= 0 {
			return errs.New(errs.ValidationError, "copytrading.subscribe",
				fmt.Errorf("fixed allocation requires a positive amount, got %.2f", fixedAmountUSD))
		}
	default:
		min, max := e.cfg.MinAllocationPercentage, e.cfg.MaxAllocationPercentage
		if max <= 0 {
			max = 100
		}
		if allocationPercentage < min || allocationPercentage > max {
			return errs.New(errs.ValidationError, "copytrading.subscribe",
				fmt.Errorf("allocation percentage %.2f outside [%.2f, %.2f]", allocationPercentage, min, max))
		}
	}
	return nil
}

// HandleLeaderTrade mirrors one leader fill into every active follower of
// that leader, serialized per follower.
func (e *Engine) HandleLeaderTrade(ctx context.Context, trade LeaderTrade) []CopyTradeResult {
	followers, err := e.repo.FollowersOf(ctx, trade.LeaderAddress)
	if err != nil {
		e.log.Warn("copytrading: list followers failed", "leader", trade.LeaderAddress, "err", err)
		return nil
	}

	results := make([]CopyTradeResult, 0, len(followers))
	for _, a := range followers {
		results = append(results, e.copyOne(ctx, a, trade))
	}
	return results
}

func (e *Engine) copyOne(ctx context.Context, a CopyAllocation, trade LeaderTrade) CopyTradeResult {
	lock := e.lockFor(a.FollowerAddress)
	lock.Lock()
	defer lock.Unlock()

	result := CopyTradeResult{
		FollowerAddress: a.FollowerAddress,
		LeaderAddress:   trade.LeaderAddress,
		MarketID:        trade.MarketID,
		OutcomeLabel:    trade.OutcomeLabel,
		Side:            trade.Side,
		Timestamp:       trade.Timestamp,
	}

	current, found, err := e.repo.ActiveAllocation(ctx, a.FollowerAddress)
	if err != nil || !found || !current.IsActive {
		result.SkipReason = SkipNoAllocation
		return result
	}
	staleAfter := e.cfg.WalletBalanceStaleAge
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	if current.balanceStale(staleAfter) {
		if balance, err := e.client.GetUSDCBalance(ctx, a.FollowerAddress); err == nil {
			current.refreshBudget(balance, time.Now())
		}
	}

	if trade.Side == "SELL" {
		return e.copySell(ctx, &current, trade, result)
	}
	return e.copyBuy(ctx, &current, trade, result)
}

func (e *Engine) copyBuy(ctx context.Context, a *CopyAllocation, trade LeaderTrade, result CopyTradeResult) CopyTradeResult {
	var copyAmount float64
	switch a.AllocationMode {
	case ModeFixed:
		copyAmount = a.FixedAmountUSD
		if copyAmount > a.AllocatedBudget {
			copyAmount = a.AllocatedBudget
		}
	default: // PROPORTIONAL
		if trade.WalletBalance != nil && *trade.WalletBalance > 0 {
			copyAmount = trade.AmountUSD * (a.AllocatedBudget / *trade.WalletBalance)
		} else {
			copyAmount = a.AllocatedBudget * a.AllocationPercentage / 100
		}
	}

	if copyAmount > a.BudgetRemaining {
		result.SkipReason = SkipInsufficientBudget
		return result
	}
	if copyAmount < e.cfg.MinCopyAmountUSD {
		result.SkipReason = SkipBelowMinimum
		return result
	}

	order, err := e.client.PlaceMarketOrder(ctx, trade.TokenID, exchangeclient.Buy, copyAmount, exchangeclient.FOK, trade.MarketID, trade.OutcomeLabel)
	if err != nil || !order.Success {
		result.SkipReason = SkipOrderFailed
		e.log.Warn("copytrading: buy order failed", "follower", a.FollowerAddress, "err", err)
		return result
	}

	a.BudgetRemaining -= copyAmount
	a.TotalCopiedTrades++
	a.TotalInvested += copyAmount
	_ = e.repo.Upsert(ctx, *a)

	result.Success = true
	result.CopyAmountUSD = copyAmount
	result.CopySizeTokens = order.Tokens
	result.OrderID = order.OrderID
	result.TxHash = order.TxHash
	return result
}

func (e *Engine) copySell(ctx context.Context, a *CopyAllocation, trade LeaderTrade, result CopyTradeResult) CopyTradeResult {
	if trade.PositionSizeBefore <= 0 {
		result.SkipReason = SkipNoPosition
		return result
	}

	followerSize, err := e.positions.PositionSize(ctx, a.FollowerAddress, trade.MarketID, trade.OutcomeIndex)
	if err != nil || followerSize <= 0 {
		result.SkipReason = SkipNoPosition
		return result
	}

	copySize := followerSize * (trade.Size / trade.PositionSizeBefore)
	if copySize <= 0 {
		result.SkipReason = SkipNoPosition
		return result
	}

	order, err := e.client.PlaceMarketOrder(ctx, trade.TokenID, exchangeclient.Sell, copySize, exchangeclient.FAK, trade.MarketID, trade.OutcomeLabel)
	if err != nil || !order.Success {
		result.SkipReason = SkipOrderFailed
		e.log.Warn("copytrading: sell order failed", "follower", a.FollowerAddress, "err", err)
		return result
	}

	a.TotalCopiedTrades++
	a.TotalPnL += order.USDReceived
	_ = e.repo.Upsert(ctx, *a)

	result.Success = true
	result.CopySizeTokens = order.Tokens
	result.OrderID = order.OrderID
	result.TxHash = order.TxHash
	return result
}
