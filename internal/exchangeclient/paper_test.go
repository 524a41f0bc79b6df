package exchangeclient

import (
	"context"
	"testing"
)

func TestPaperClientBuyThenSell(t *testing.T) {
	c := NewPaperClient(PaperConfig{InitialBalanceUSDC: 1000, FeeBps: 0, SlippageBps: 0})
	c.SetQuote("tok1", 0.40, 0.44)
	ctx := context.Background()

	res, err := c.PlaceMarketOrder(ctx, "tok1", Buy, 100, FOK, "m1", "YES")
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got error %s", res.Error)
	}
	wantTokens := 100.0 / 0.44
	if diff := res.Tokens - wantTokens; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("tokens = %f, want %f", res.Tokens, wantTokens)
	}

	bal, _ := c.GetUSDCBalance(ctx, "paper")
	if diff := bal - 900; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("usdc balance = %f, want 900", bal)
	}

	sellRes, err := c.PlaceMarketOrder(ctx, "tok1", Sell, wantTokens, FAK, "m1", "YES")
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	wantReceived := wantTokens * 0.40
	if diff := sellRes.USDReceived - wantReceived; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("usd received = %f, want %f", sellRes.USDReceived, wantReceived)
	}
}

func TestPaperClientRejectsInsufficientFunds(t *testing.T) {
	c := NewPaperClient(PaperConfig{InitialBalanceUSDC: 10})
	c.SetQuote("tok1", 0.40, 0.44)
	_, err := c.PlaceMarketOrder(context.Background(), "tok1", Buy, 1000, FOK, "m1", "YES")
	if err == nil {
		t.Fatal("expected insufficient funds error")
	}
}

func TestPaperClientRejectsShortWithoutAllowShort(t *testing.T) {
	c := NewPaperClient(PaperConfig{InitialBalanceUSDC: 1000, AllowShort: false})
	c.SetQuote("tok1", 0.40, 0.44)
	_, err := c.PlaceMarketOrder(context.Background(), "tok1", Sell, 5, FAK, "m1", "YES")
	if err == nil {
		t.Fatal("expected insufficient tokens error")
	}
}
