package tpsl

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/exchangeclient"
	"github.com/polymarket-pulse/trader/internal/marketstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChainReader struct{ size float64 }

func (f *fakeChainReader) PositionSize(ctx context.Context, userAddress, marketID string, outcomeIndex int) (float64, error) {
	return f.size, nil
}

type fakeExchangeClient struct {
	tokenBalance float64
	order        exchangeclient.OrderResult
	orderErr     error
}

func (f *fakeExchangeClient) PlaceMarketOrder(ctx context.Context, tokenID string, side exchangeclient.Side, amount float64, orderType exchangeclient.OrderType, marketID, outcomeLabel string) (exchangeclient.OrderResult, error) {
	if f.orderErr != nil {
		return exchangeclient.OrderResult{}, f.orderErr
	}
	return f.order, nil
}

func (f *fakeExchangeClient) GetUSDCBalance(ctx context.Context, address string) (float64, error) {
	return 0, nil
}

func (f *fakeExchangeClient) GetTokenBalance(ctx context.Context, address, tokenID string) (float64, error) {
	return f.tokenBalance, nil
}

func (f *fakeExchangeClient) GetOrderBook(ctx context.Context, tokenID string) ([][2]float64, [][2]float64, error) {
	return nil, nil, nil
}

type fakeNotifier struct {
	triggerCalls int
	failedCalls  int
}

func (f *fakeNotifier) NotifyTPSLTrigger(ctx context.Context, triggerType, marketTitle string, executionPrice, entryPrice, tokensSold, usdReceived, pnl, pnlPct float64, txHash string) error {
	f.triggerCalls++
	return nil
}

func (f *fakeNotifier) NotifyTPSLFailed(ctx context.Context, marketTitle, reason, hint string) error {
	f.failedCalls++
	return nil
}

func newStoreWithQuote(t *testing.T, marketID string, mid float64) *marketstore.Store {
	t.Helper()
	store := marketstore.NewStore(marketstore.NewMemoryRepository(), nil)
	store.SetLiveQuote(marketID, mid-0.01, mid+0.01, marketstore.SourceWS)
	return store
}

func TestEvaluateTPWinsOnTie(t *testing.T) {
	tp := 0.80
	sl := 0.80
	triggerType, fired := evaluate(0.80, &tp, &sl)
	assert.True(t, fired)
	assert.Equal(t, TriggerTakeProfit, triggerType)
}

func TestEvaluateStopLossFires(t *testing.T) {
	sl := 0.40
	triggerType, fired := evaluate(0.35, nil, &sl)
	assert.True(t, fired)
	assert.Equal(t, TriggerStopLoss, triggerType)
}

func TestEvaluateNoTrigger(t *testing.T) {
	tp := 0.90
	sl := 0.10
	_, fired := evaluate(0.50, &tp, &sl)
	assert.False(t, fired)
}

func TestExecuteClosesPositionAboveThreshold(t *testing.T) {
	store := newStoreWithQuote(t, "m1", 0.80)
	repo := NewMemoryRepository()
	tp := 0.75
	pos := Position{ID: "p1", UserAddress: "0xU", MarketID: "m1", TokenID: "tok", Size: 100, EntryPrice: 0.50, TakeProfitPrice: &tp, Status: StatusActive}
	repo.Seed(pos)

	client := &fakeExchangeClient{tokenBalance: 100, order: exchangeclient.OrderResult{Success: true, Tokens: 100, USDReceived: 80, TxHash: "0xhash"}}
	notifier := &fakeNotifier{}
	mon := NewMonitor(config.TPSLConfig{CheckInterval: time.Hour, BatchSize: 10, MinSellPacing: time.Millisecond, CloseThresholdPct: 0.95}, repo, store, &fakeChainReader{size: 100}, client, notifier, slog.Default())

	mon.runCycle(context.Background())

	updated, ok := repo.Get("p1")
	require.True(t, ok)
	assert.Equal(t, StatusClosed, updated.Status)
	assert.Nil(t, updated.TakeProfitPrice)
	assert.Equal(t, 1, notifier.triggerCalls)
}

func TestExecuteAdjustsPositionBelowThreshold(t *testing.T) {
	store := newStoreWithQuote(t, "m1", 0.80)
	repo := NewMemoryRepository()
	tp := 0.75
	pos := Position{ID: "p1", UserAddress: "0xU", MarketID: "m1", TokenID: "tok", Size: 100, EntryPrice: 0.50, TakeProfitPrice: &tp, Status: StatusActive}
	repo.Seed(pos)

	client := &fakeExchangeClient{tokenBalance: 100, order: exchangeclient.OrderResult{Success: true, Tokens: 40, USDReceived: 32, TxHash: "0xhash"}}
	notifier := &fakeNotifier{}
	mon := NewMonitor(config.TPSLConfig{CheckInterval: time.Hour, BatchSize: 10, MinSellPacing: time.Millisecond, CloseThresholdPct: 0.95}, repo, store, &fakeChainReader{size: 100}, client, notifier, slog.Default())

	mon.runCycle(context.Background())

	updated, ok := repo.Get("p1")
	require.True(t, ok)
	assert.Equal(t, StatusActive, updated.Status)
	assert.InDelta(t, 60.0, updated.Size, 0.0001)
}

func TestExecuteBalanceGuardReducesSize(t *testing.T) {
	store := newStoreWithQuote(t, "m1", 0.80)
	repo := NewMemoryRepository()
	tp := 0.75
	pos := Position{ID: "p1", UserAddress: "0xU", MarketID: "m1", TokenID: "tok", Size: 100, EntryPrice: 0.50, TakeProfitPrice: &tp, Status: StatusActive}
	repo.Seed(pos)

	client := &fakeExchangeClient{tokenBalance: 10, order: exchangeclient.OrderResult{Success: true, Tokens: 10, USDReceived: 8}}
	notifier := &fakeNotifier{}
	mon := NewMonitor(config.TPSLConfig{CheckInterval: time.Hour, BatchSize: 10, MinSellPacing: time.Millisecond, CloseThresholdPct: 0.95}, repo, store, &fakeChainReader{size: 100}, client, notifier, slog.Default())

	mon.runCycle(context.Background())

	updated, ok := repo.Get("p1")
	require.True(t, ok)
	assert.Equal(t, StatusClosed, updated.Status) // 10/10 sold == 100% >= threshold
}

func TestExecuteNotifiesFailureOnOrderError(t *testing.T) {
	store := newStoreWithQuote(t, "m1", 0.80)
	repo := NewMemoryRepository()
	tp := 0.75
	pos := Position{ID: "p1", UserAddress: "0xU", MarketID: "m1", TokenID: "tok", Size: 100, EntryPrice: 0.50, TakeProfitPrice: &tp, Status: StatusActive}
	repo.Seed(pos)

	client := &fakeExchangeClient{tokenBalance: 100, order: exchangeclient.OrderResult{Success: false}}
	notifier := &fakeNotifier{}
	mon := NewMonitor(config.TPSLConfig{CheckInterval: time.Hour, BatchSize: 10, MinSellPacing: time.Millisecond, CloseThresholdPct: 0.95}, repo, store, &fakeChainReader{size: 100}, client, notifier, slog.Default())

	mon.runCycle(context.Background())

	assert.Equal(t, 1, notifier.failedCalls)
	assert.Equal(t, 0, notifier.triggerCalls)
}
