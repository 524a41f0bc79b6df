package copytrading

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/exchangeclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchangeClient struct {
	usdcBalances map[string]float64
	orders       []exchangeclient.OrderResult
	nextOrder    exchangeclient.OrderResult
	orderErr     error
}

func (f *fakeExchangeClient) PlaceMarketOrder(ctx context.Context, tokenID string, side exchangeclient.Side, amount float64, orderType exchangeclient.OrderType, marketID, outcomeLabel string) (exchangeclient.OrderResult, error) {
	if f.orderErr != nil {
		return exchangeclient.OrderResult{}, f.orderErr
	}
	f.orders = append(f.orders, f.nextOrder)
	return f.nextOrder, nil
}

func (f *fakeExchangeClient) GetUSDCBalance(ctx context.Context, address string) (float64, error) {
	return f.usdcBalances[address], nil
}

func (f *fakeExchangeClient) GetTokenBalance(ctx context.Context, address, tokenID string) (float64, error) {
	return 0, nil
}

func (f *fakeExchangeClient) GetOrderBook(ctx context.Context, tokenID string) ([][2]float64, [][2]float64, error) {
	return nil, nil, nil
}

type fakePositionReader struct{ size float64 }

func (f *fakePositionReader) PositionSize(ctx context.Context, followerAddress, marketID string, outcomeIndex int) (float64, error) {
	return f.size, nil
}

func TestSubscribeToLeaderRefreshesBudget(t *testing.T) {
	client := &fakeExchangeClient{usdcBalances: map[string]float64{"0xFollower": 1000}}
	repo := NewMemoryRepository()
	e := NewEngine(config.CopyConfig{MinCopyAmountUSD: 1, WalletBalanceStaleAge: time.Hour}, repo, client, &fakePositionReader{}, slog.Default())

	a, err := e.SubscribeToLeader(context.Background(), "0xFollower", "0xLeader", ModeProportional, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, 1000.0, a.TotalWalletBalance)
	assert.Equal(t, 500.0, a.AllocatedBudget)
	assert.Equal(t, 500.0, a.BudgetRemaining)
}

func TestSubscribeToLeaderRejectsOutOfBoundsPercentage(t *testing.T) {
	client := &fakeExchangeClient{usdcBalances: map[string]float64{"0xFollower": 1000}}
	repo := NewMemoryRepository()
	e := NewEngine(config.CopyConfig{MinAllocationPercentage: 5, MaxAllocationPercentage: 50}, repo, client, &fakePositionReader{}, slog.Default())

	_, err := e.SubscribeToLeader(context.Background(), "0xFollower", "0xLeader", ModeProportional, 75, 0)
	require.Error(t, err)

	_, err = e.SubscribeToLeader(context.Background(), "0xFollower", "0xLeader", ModeProportional, 2, 0)
	require.Error(t, err)

	_, err = e.SubscribeToLeader(context.Background(), "0xFollower", "0xLeader", ModeFixed, 0, 0)
	require.Error(t, err, "fixed mode requires a positive amount")

	_, err = e.SubscribeToLeader(context.Background(), "0xFollower", "0xLeader", ModeProportional, 25, 0)
	require.NoError(t, err)
}

func TestHandleLeaderTradeProportionalBuy(t *testing.T) {
	client := &fakeExchangeClient{
		usdcBalances: map[string]float64{"0xFollower": 1000},
		nextOrder:    exchangeclient.OrderResult{Success: true, OrderID: "ord-1", Tokens: 100, TxHash: "0xhash"},
	}
	repo := NewMemoryRepository()
	e := NewEngine(config.CopyConfig{MinCopyAmountUSD: 1, WalletBalanceStaleAge: time.Hour}, repo, client, &fakePositionReader{}, slog.Default())

	_, err := e.SubscribeToLeader(context.Background(), "0xFollower", "0xLeader", ModeProportional, 50, 0)
	require.NoError(t, err)

	leaderBalance := 2000.0
	results := e.HandleLeaderTrade(context.Background(), LeaderTrade{
		LeaderAddress: "0xLeader",
		MarketID:      "m1",
		TokenID:       "tok-yes",
		OutcomeLabel:  "Yes",
		Side:          "BUY",
		AmountUSD:     200,
		WalletBalance: &leaderBalance,
		Timestamp:     time.Now(),
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.InDelta(t, 50.0, results[0].CopyAmountUSD, 0.0001)

	updated, found, err := repo.ActiveAllocation(context.Background(), "0xFollower")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, updated.TotalCopiedTrades)
	assert.InDelta(t, 50.0, updated.TotalInvested, 0.0001)
	assert.InDelta(t, 450.0, updated.BudgetRemaining, 0.0001)
}

func TestHandleLeaderTradeSkipsBelowMinimum(t *testing.T) {
	client := &fakeExchangeClient{usdcBalances: map[string]float64{"0xFollower": 1000}}
	repo := NewMemoryRepository()
	e := NewEngine(config.CopyConfig{MinCopyAmountUSD: 100, WalletBalanceStaleAge: time.Hour}, repo, client, &fakePositionReader{}, slog.Default())

	_, err := e.SubscribeToLeader(context.Background(), "0xFollower", "0xLeader", ModeProportional, 50, 0)
	require.NoError(t, err)

	leaderBalance := 2000.0
	results := e.HandleLeaderTrade(context.Background(), LeaderTrade{
		LeaderAddress: "0xLeader",
		MarketID:      "m1",
		TokenID:       "tok-yes",
		Side:          "BUY",
		AmountUSD:     10,
		WalletBalance: &leaderBalance,
	})

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Equal(t, SkipBelowMinimum, results[0].SkipReason)
}

func TestHandleLeaderTradeSellProportional(t *testing.T) {
	client := &fakeExchangeClient{
		usdcBalances: map[string]float64{"0xFollower": 1000},
		nextOrder:    exchangeclient.OrderResult{Success: true, OrderID: "ord-2", Tokens: 25, USDReceived: 12.5},
	}
	repo := NewMemoryRepository()
	e := NewEngine(config.CopyConfig{MinCopyAmountUSD: 1, WalletBalanceStaleAge: time.Hour}, repo, client, &fakePositionReader{size: 50}, slog.Default())

	_, err := e.SubscribeToLeader(context.Background(), "0xFollower", "0xLeader", ModeProportional, 50, 0)
	require.NoError(t, err)

	results := e.HandleLeaderTrade(context.Background(), LeaderTrade{
		LeaderAddress:      "0xLeader",
		MarketID:           "m1",
		TokenID:            "tok-yes",
		Side:               "SELL",
		Size:               100,
		PositionSizeBefore: 200,
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.InDelta(t, 25.0, results[0].CopySizeTokens, 0.0001) // 50 * (100/200)
}

func TestHandleLeaderTradeSellNoPositionSkips(t *testing.T) {
	client := &fakeExchangeClient{usdcBalances: map[string]float64{"0xFollower": 1000}}
	repo := NewMemoryRepository()
	e := NewEngine(config.CopyConfig{MinCopyAmountUSD: 1, WalletBalanceStaleAge: time.Hour}, repo, client, &fakePositionReader{size: 0}, slog.Default())

	_, err := e.SubscribeToLeader(context.Background(), "0xFollower", "0xLeader", ModeProportional, 50, 0)
	require.NoError(t, err)

	results := e.HandleLeaderTrade(context.Background(), LeaderTrade{
		LeaderAddress:      "0xLeader",
		MarketID:           "m1",
		Side:               "SELL",
		Size:               100,
		PositionSizeBefore: 200,
	})

	require.Len(t, results, 1)
	assert.Equal(t, SkipNoPosition, results[0].SkipReason)
}
