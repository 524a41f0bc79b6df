package tpsl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/exchangeclient"
	"github.com/polymarket-pulse/trader/internal/marketstore"
	"golang.org/x/time/rate"
)

// ChainPositionReader re-reads a user's authoritative position size
// directly from the exchange data API, the sync-from-chain
// step that keeps the in-memory position honest before a sell.
type ChainPositionReader interface {
	PositionSize(ctx context.Context, userAddress, marketID string, outcomeIndex int) (float64, error)
}

// Notifier is the subset of internal/notify.Notifier the monitor depends
// on, kept narrow so tests don't need a live Telegram client.
type Notifier interface {
	NotifyTPSLTrigger(ctx context.Context, triggerType, marketTitle string, executionPrice, entryPrice, tokensSold, usdReceived, pnl, pnlPct float64, txHash string) error
	NotifyTPSLFailed(ctx context.Context, marketTitle, reason, hint string) error
}

const closeThresholdDefault = 0.95

// Monitor runs the periodic TP/SL evaluation loop.
type Monitor struct {
	cfg       config.TPSLConfig
	repo      Repository
	store     *marketstore.Store
	chain     ChainPositionReader
	client    exchangeclient.Client
	notifier  Notifier
	log       *slog.Logger
	sellLimiter *rate.Limiter

	mu          sync.Mutex
	positionMus map[string]*sync.Mutex
}

func NewMonitor(cfg config.TPSLConfig, repo Repository, store *marketstore.Store, chain ChainPositionReader, client exchangeclient.Client, notifier Notifier, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	pacing := cfg.MinSellPacing
	if pacing <= 0 {
		pacing = 200 * time.Millisecond
	}
	return &Monitor{
		cfg:         cfg,
		repo:        repo,
		store:       store,
		chain:       chain,
		client:      client,
		notifier:    notifier,
		log:         log.With("component", "tpsl"),
		sellLimiter: rate.NewLimiter(rate.Every(pacing), 1),
		positionMus: make(map[string]*sync.Mutex),
	}
}

func (m *Monitor) Run(ctx context.Context) error {
	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	batchSize := m.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	positions, err := m.repo.SelectTriggerable(ctx, batchSize)
	if err != nil {
		m.log.Warn("tpsl: select triggerable failed", "err", err)
		return
	}

	var wg sync.WaitGroup
	for _, p := range positions {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.evaluateOne(ctx, p)
		}()
	}
	wg.Wait()
}

func (m *Monitor) lockFor(positionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.positionMus[positionID]
	if !ok {
		l = &sync.Mutex{}
		m.positionMus[positionID] = l
	}
	return l
}

func (m *Monitor) evaluateOne(ctx context.Context, p Position) {
	lock := m.lockFor(p.ID)
	lock.Lock()
	defer lock.Unlock()

	currentPrice, found, err := m.store.ResolvePrice(ctx, p.MarketID, p.OutcomeIndex)
	if err != nil || !found {
		return
	}

	triggerType, fired := evaluate(currentPrice, p.TakeProfitPrice, p.StopLossPrice)
	if !fired {
		p.CurrentPrice = currentPrice
		_ = m.repo.Update(ctx, p)
		return
	}

	result := m.execute(ctx, p, triggerType, currentPrice)
	m.notify(ctx, result)
}

// evaluate applies the TP/SL threshold rule: TP fires if current >= TP;
// SL fires if current <= SL; if both hold, TP wins.
func evaluate(current float64, tp, sl *float64) (TriggerType, bool) {
	tpFired := tp != nil && current >= *tp
	slFired := sl != nil && current <= *sl
	switch {
	case tpFired:
		return TriggerTakeProfit, true
	case slFired:
		return TriggerStopLoss, true
	default:
		return "", false
	}
}

func (m *Monitor) execute(ctx context.Context, p Position, triggerType TriggerType, currentPrice float64) TriggerResult {
	result := TriggerResult{Position: p, TriggerType: triggerType, ExecutionPrice: currentPrice}

	authoritative, err := m.chain.PositionSize(ctx, p.UserAddress, p.MarketID, p.OutcomeIndex)
	if err == nil {
		p.Size = authoritative
	}

	tokenBalance, err := m.client.GetTokenBalance(ctx, p.UserAddress, p.TokenID)
	if err == nil && tokenBalance < p.Size {
		p.Size = tokenBalance
	}

	if p.Size <= 0 {
		m.log.Warn("tpsl: position already closed on chain", "position_id", p.ID)
		p.Status = StatusClosed
		_ = m.repo.Update(ctx, p)
		result.Failed = true
		result.FailReason = "position already closed on chain"
		return result
	}

	if err := m.sellLimiter.Wait(ctx); err != nil {
		result.Failed = true
		result.FailReason = "pacing wait interrupted"
		return result
	}

	order, err := m.client.PlaceMarketOrder(ctx, p.TokenID, exchangeclient.Sell, p.Size, exchangeclient.FAK, p.MarketID, "")
	if err != nil || !order.Success {
		result.Failed = true
		result.FailReason = fmt.Sprintf("sell execution failed: %v", err)
		_ = m.notifier.NotifyTPSLFailed(ctx, p.MarketID, result.FailReason, "try selling manually")
		return result
	}

	executionPrice := currentPrice
	tokensSold := order.Tokens
	if tokensSold <= 0 {
		tokensSold = p.Size
	}
	if order.USDReceived > 0 && tokensSold > 0 {
		executionPrice = order.USDReceived / tokensSold
	}

	realizedPnL := (executionPrice - p.EntryPrice) * tokensSold
	var realizedPnLPct float64
	if p.EntryPrice > 0 {
		realizedPnLPct = (executionPrice/p.EntryPrice - 1) * 100
	}

	threshold := m.cfg.CloseThresholdPct
	if threshold <= 0 {
		threshold = closeThresholdDefault
	}

	closed := p.Size == 0 || tokensSold/p.Size >= threshold
	if closed {
		p.Status = StatusClosed
		p.Size = 0
		p.TakeProfitPrice = nil
		p.StopLossPrice = nil
	} else {
		p.Size -= tokensSold
		p.CurrentPrice = executionPrice
	}
	_ = m.repo.Update(ctx, p)

	result.TokensSold = tokensSold
	result.USDReceived = order.USDReceived
	result.RealizedPnL = realizedPnL
	result.RealizedPnLPct = realizedPnLPct
	result.TxHash = order.TxHash
	result.Closed = closed
	return result
}

func (m *Monitor) notify(ctx context.Context, result TriggerResult) {
	if result.Failed {
		return // a failed sell was already notified in execute; other failures send no alert
	}
	err := m.notifier.NotifyTPSLTrigger(ctx, string(result.TriggerType), result.Position.MarketID,
		result.ExecutionPrice, result.Position.EntryPrice, result.TokensSold, result.USDReceived,
		result.RealizedPnL, result.RealizedPnLPct, result.TxHash)
	if err != nil {
		m.log.Warn("tpsl: notify failed", "position_id", result.Position.ID, "err", err)
	}
}
