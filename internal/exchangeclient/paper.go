package exchangeclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/polymarket-pulse/trader/internal/errs"
)

// PaperConfig configures the simulated fill model.
type PaperConfig struct {
	InitialBalanceUSDC float64
	FeeBps             float64
	SlippageBps        float64
	AllowShort         bool
}

type paperBalances struct {
	usdc   decimal.Decimal
	tokens map[string]decimal.Decimal // tokenID -> balance
}

// PaperClient is a dry-run Client implementation: it never touches the
// network, simulating fills against whatever top-of-book price the caller
// supplies via SetQuote. Fill arithmetic runs on decimal so repeated
// simulated fills don't drift the ledger.
type PaperClient struct {
	cfg      PaperConfig
	feeFrac  decimal.Decimal
	slipFrac decimal.Decimal
	mu       sync.Mutex
	wallets  map[string]*paperBalances // address -> balances
	quotes   map[string][2]float64     // tokenID -> {bid, ask}
}

func NewPaperClient(cfg PaperConfig) *PaperClient {
	bps := decimal.NewFromInt(10000)
	return &PaperClient{
		cfg:      cfg,
		feeFrac:  decimal.NewFromFloat(cfg.FeeBps).Div(bps),
		slipFrac: decimal.NewFromFloat(cfg.SlippageBps).Div(bps),
		wallets:  make(map[string]*paperBalances),
		quotes:   make(map[string][2]float64),
	}
}

// SetQuote seeds the top-of-book price the next simulated order for
// tokenID will fill against.
func (p *PaperClient) SetQuote(tokenID string, bid, ask float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[tokenID] = [2]float64{bid, ask}
}

func (p *PaperClient) balancesFor(address string) *paperBalances {
	b, ok := p.wallets[address]
	if !ok {
		b = &paperBalances{
			usdc:   decimal.NewFromFloat(p.cfg.InitialBalanceUSDC),
			tokens: make(map[string]decimal.Decimal),
		}
		p.wallets[address] = b
	}
	return b
}

func (p *PaperClient) applySlippage(price decimal.Decimal, side Side) decimal.Decimal {
	slip := price.Mul(p.slipFrac)
	if side == Buy {
		return price.Add(slip)
	}
	return price.Sub(slip)
}

// PlaceMarketOrder simulates a fill using the last quote set via SetQuote
// for tokenID, address "paper" as the sole simulated wallet.
func (p *PaperClient) PlaceMarketOrder(ctx context.Context, tokenID string, side Side, amount float64, orderType OrderType, marketID, outcomeLabel string) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	quote, ok := p.quotes[tokenID]
	if !ok {
		return OrderResult{}, errs.New(errs.UpstreamUnavailable, "paper.PlaceMarketOrder", fmt.Errorf("no quote seeded for token %s", tokenID))
	}
	bid := decimal.NewFromFloat(quote[0])
	ask := decimal.NewFromFloat(quote[1])
	amt := decimal.NewFromFloat(amount)

	bal := p.balancesFor("paper")
	switch side {
	case Buy:
		price := p.applySlippage(ask, side)
		tokens := amt.Div(price)
		fee := amt.Mul(p.feeFrac)
		total := amt.Add(fee)
		if total.GreaterThan(bal.usdc) {
			return OrderResult{Success: false, Error: "insufficient_funds"},
				errs.New(errs.InsufficientFunds, "paper.PlaceMarketOrder", fmt.Errorf("need %s usdc, have %s", total.StringFixed(2), bal.usdc.StringFixed(2)))
		}
		bal.usdc = bal.usdc.Sub(total)
		bal.tokens[tokenID] = bal.tokens[tokenID].Add(tokens)
		priceF, _ := price.Float64()
		tokensF, _ := tokens.Float64()
		return OrderResult{Success: true, OrderID: fmt.Sprintf("paper-%s-%s", marketID, tokenID), Tokens: tokensF, Price: priceF, USDPricePerShare: priceF, USDSpent: amount}, nil

	case Sell:
		price := p.applySlippage(bid, side)
		have := bal.tokens[tokenID]
		if amt.GreaterThan(have) && amt.Sub(have).LessThan(decimal.New(1, -9)) {
			amt = have // a float64 round-trip of the full balance can exceed it by a rounding step
		}
		if amt.GreaterThan(have) && !p.cfg.AllowShort {
			return OrderResult{Success: false, Error: "insufficient_tokens"},
				errs.New(errs.InsufficientTokens, "paper.PlaceMarketOrder", fmt.Errorf("need %s tokens, have %s", amt.StringFixed(4), have.StringFixed(4)))
		}
		gross := amt.Mul(price)
		net := gross.Sub(gross.Mul(p.feeFrac))
		bal.tokens[tokenID] = have.Sub(amt)
		bal.usdc = bal.usdc.Add(net)
		priceF, _ := price.Float64()
		netF, _ := net.Float64()
		return OrderResult{Success: true, OrderID: fmt.Sprintf("paper-%s-%s", marketID, tokenID), Tokens: amount, Price: priceF, USDPricePerShare: priceF, USDReceived: netF}, nil
	}
	return OrderResult{}, fmt.Errorf("paper: unknown side %q", side)
}

func (p *PaperClient) GetUSDCBalance(ctx context.Context, address string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, _ := p.balancesFor(address).usdc.Float64()
	return f, nil
}

func (p *PaperClient) GetTokenBalance(ctx context.Context, address, tokenID string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, _ := p.balancesFor(address).tokens[tokenID].Float64()
	return f, nil
}

func (p *PaperClient) GetOrderBook(ctx context.Context, tokenID string) (bids, asks [][2]float64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.quotes[tokenID]
	if !ok {
		return nil, nil, errs.New(errs.NotFound, "paper.GetOrderBook", fmt.Errorf("no quote for %s", tokenID))
	}
	return [][2]float64{{q[0], 100}}, [][2]float64{{q[1], 100}}, nil
}
