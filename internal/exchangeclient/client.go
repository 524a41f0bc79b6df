// Package exchangeclient defines the narrow trading interface every
// trading component (copy-trading, TP/SL) depends on: placing market
// orders and reading balances against the exchange. There is no silent
// fallback to a simulated client when the real one fails; callers
// receive a typed error and must surface it.
package exchangeclient

import (
	"context"

	"github.com/polymarket-pulse/trader/internal/errs"
)

type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

type OrderType string

const (
	FOK OrderType = "FOK" // fill-or-kill
	FAK OrderType = "FAK" // fill-and-kill
)

// OrderResult is a fill report: success flag plus whichever of the
// optional fields the exchange populated for this side.
type OrderResult struct {
	Success        bool
	OrderID        string
	Tokens         float64
	Price          float64 // 0..1
	USDPricePerShare float64
	USDSpent       float64 // BUY
	USDReceived    float64 // SELL
	TxHash         string
	Error          string
}

// Client is the narrow exchange trading contract. Implementations: a
// live client backed by the CLOB SDK, and a paper client for dry runs.
type Client interface {
	PlaceMarketOrder(ctx context.Context, tokenID string, side Side, amount float64, orderType OrderType, marketID, outcomeLabel string) (OrderResult, error)
	GetUSDCBalance(ctx context.Context, address string) (float64, error)
	GetTokenBalance(ctx context.Context, address, tokenID string) (float64, error)
	GetOrderBook(ctx context.Context, tokenID string) (bids, asks [][2]float64, err error)
}

// ErrClientUnavailable classifies an exchange call that could not be
// completed at all (as opposed to a normal trade-precondition rejection).
func ErrClientUnavailable(op string, cause error) error {
	return errs.New(errs.UpstreamUnavailable, op, cause)
}
