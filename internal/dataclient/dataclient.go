// Package dataclient adapts the exchange's Data API (the same SDK client
// internal/exchangeclient.LiveClient reads balances from) behind the
// narrow position-reading interfaces the watched-markets controller,
// the TP/SL monitor, and the copy-trading engine each declare locally.
package dataclient

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/data"

	"github.com/polymarket-pulse/trader/internal/watched"
)

// Adapter wraps one data.Client and exposes every position-reading shape
// the rest of the system needs, so the process only ever holds one Data
// API connection.
type Adapter struct {
	client data.Client
}

func New(client data.Client) *Adapter { return &Adapter{client: client} }

// FetchPositions satisfies watched.PositionSource.
func (a *Adapter) FetchPositions(ctx context.Context, userAddress string) ([]watched.Position, error) {
	addr := common.HexToAddress(userAddress)
	rows, err := a.client.Positions(ctx, &data.PositionsRequest{User: addr})
	if err != nil {
		return nil, err
	}
	out := make([]watched.Position, 0, len(rows))
	for _, r := range rows {
		size, _ := r.Size.Float64()
		avgPrice, _ := r.AvgPrice.Float64()
		curPrice, _ := r.CurPrice.Float64()
		out = append(out, watched.Position{
			UserAddress:  userAddress,
			MarketID:     r.Market,
			ConditionID:  r.ConditionID.Hex(),
			OutcomeIndex: r.OutcomeIndex,
			TokenID:      r.Asset.String(),
			Size:         size,
			AvgPrice:     avgPrice,
			EntryPrice:   avgPrice,
			CurrentPrice: &curPrice,
			Status:       watched.PositionActive,
		})
	}
	return out, nil
}

// PositionSize satisfies both tpsl.ChainPositionReader and
// copytrading.FollowerPositionReader: the authoritative on-chain size
// for one user/market/outcome, read fresh from the Data API rather than
// the locally cached position.
func (a *Adapter) PositionSize(ctx context.Context, userAddress, marketID string, outcomeIndex int) (float64, error) {
	addr := common.HexToAddress(userAddress)
	rows, err := a.client.Positions(ctx, &data.PositionsRequest{User: addr})
	if err != nil {
		return 0, err
	}
	for _, r := range rows {
		if r.Market == marketID && r.OutcomeIndex == outcomeIndex {
			size, _ := r.Size.Float64()
			return size, nil
		}
	}
	return 0, nil
}
