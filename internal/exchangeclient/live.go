package exchangeclient

import (
	"context"
	"fmt"
	"strconv"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	clobtypes "github.com/GoPolymarket/polymarket-go-sdk/pkg/clob/clobtypes"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/data"
	"github.com/ethereum/go-ethereum/common"

	"github.com/polymarket-pulse/trader/internal/errs"
)

// LiveClient adapts the CLOB SDK's order builder and the Data API's
// balance reads behind the narrow Client interface, so a mock is trivial
// for tests and no implicit fallback is possible. Orders are built and
// signed locally, then submitted as signables.
type LiveClient struct {
	clob   clob.Client
	data   data.Client
	signer auth.Signer
}

func NewLiveClient(clobClient clob.Client, dataClient data.Client, signer auth.Signer) *LiveClient {
	return &LiveClient{clob: clobClient, data: dataClient, signer: signer}
}

func toSDKOrderType(t OrderType) clobtypes.OrderType {
	if t == FOK {
		return clobtypes.OrderTypeFOK
	}
	return clobtypes.OrderTypeFAK
}

// PlaceMarketOrder builds, signs, and submits a market order. BUY amounts
// are USDC; SELL amounts are tokens, converted to a USDC notional off the
// book's best bid before the order is built.
func (c *LiveClient) PlaceMarketOrder(ctx context.Context, tokenID string, side Side, amount float64, orderType OrderType, marketID, outcomeLabel string) (OrderResult, error) {
	amountUSDC := amount
	if side == Sell {
		bids, _, err := c.GetOrderBook(ctx, tokenID)
		if err != nil {
			return OrderResult{}, err
		}
		if len(bids) == 0 || bids[0][0] <= 0 {
			return OrderResult{Success: false, Error: "no_bids"},
				errs.New(errs.NotFound, "live.PlaceMarketOrder", fmt.Errorf("no bids for token %s", tokenID))
		}
		amountUSDC = amount * bids[0][0]
	}

	builder := clob.NewOrderBuilder(c.clob, c.signer).
		TokenID(tokenID).
		Side(string(side)).
		AmountUSDC(amountUSDC).
		OrderType(toSDKOrderType(orderType))

	signable, err := builder.BuildMarketWithContext(ctx)
	if err != nil {
		return OrderResult{}, errs.New(errs.Transient, "live.PlaceMarketOrder.build", err)
	}
	resp, err := c.clob.CreateOrderFromSignable(ctx, signable)
	if err != nil {
		return OrderResult{}, ErrClientUnavailable("live.PlaceMarketOrder", err)
	}

	result := OrderResult{
		Success: resp.ID != "",
		OrderID: resp.ID,
	}
	if !result.Success {
		result.Error = resp.Status
		return result, nil
	}

	price, _ := strconv.ParseFloat(resp.Price, 64)
	tokens, _ := strconv.ParseFloat(resp.SizeMatched, 64)
	result.Price = price
	result.USDPricePerShare = price
	result.Tokens = tokens
	if side == Buy {
		result.USDSpent = amountUSDC
	} else {
		if tokens > 0 && price > 0 {
			result.USDReceived = tokens * price
		} else {
			result.USDReceived = amountUSDC
		}
	}
	return result, nil
}

func (c *LiveClient) GetUSDCBalance(ctx context.Context, address string) (float64, error) {
	addr := common.HexToAddress(address)
	values, err := c.data.Value(ctx, &data.ValueRequest{User: addr})
	if err != nil {
		return 0, ErrClientUnavailable("live.GetUSDCBalance", err)
	}
	var total float64
	for _, v := range values {
		f, _ := v.Value.Float64()
		total += f
	}
	return total, nil
}

func (c *LiveClient) GetTokenBalance(ctx context.Context, address, tokenID string) (float64, error) {
	addr := common.HexToAddress(address)
	positions, err := c.data.Positions(ctx, &data.PositionsRequest{User: addr})
	if err != nil {
		return 0, ErrClientUnavailable("live.GetTokenBalance", err)
	}
	for _, pos := range positions {
		if pos.Asset.String() == tokenID {
			f, _ := pos.Size.Float64()
			return f, nil
		}
	}
	return 0, nil
}

func (c *LiveClient) GetOrderBook(ctx context.Context, tokenID string) (bids, asks [][2]float64, err error) {
	book, getErr := c.clob.OrderBook(ctx, &clobtypes.BookRequest{TokenID: tokenID})
	if getErr != nil {
		return nil, nil, ErrClientUnavailable("live.GetOrderBook", getErr)
	}
	for _, lvl := range book.Bids {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		bids = append(bids, [2]float64{p, s})
	}
	for _, lvl := range book.Asks {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		asks = append(asks, [2]float64{p, s})
	}
	return bids, asks, nil
}
