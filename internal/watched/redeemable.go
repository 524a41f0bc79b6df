package watched

import "context"

// WinningOutcomeResolver tells the detector which outcome index won a
// resolved market, the one external fact it needs that the market store
// does not carry directly.
type WinningOutcomeResolver interface {
	WinningOutcomeIndex(ctx context.Context, marketID string) (int, bool, error)
}

// RedeemablePositionDetector classifies positions whose market is RESOLVED
// and whose outcome is the winner as redeemable, so callers can filter
// them out of "active positions" views and hand them to an external
// redemption flow. Interface only: the redemption flow itself is out of
// scope.
type RedeemablePositionDetector interface {
	IsRedeemable(ctx context.Context, p Position, marketStatus string) (bool, error)
}

type detector struct {
	resolver WinningOutcomeResolver
}

func NewRedeemablePositionDetector(resolver WinningOutcomeResolver) RedeemablePositionDetector {
	return &detector{resolver: resolver}
}

func (d *detector) IsRedeemable(ctx context.Context, p Position, marketStatus string) (bool, error) {
	if marketStatus != "RESOLVED" {
		return false, nil
	}
	if p.IsDust() {
		return false, nil
	}
	winningIndex, ok, err := d.resolver.WinningOutcomeIndex(ctx, p.MarketID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return p.OutcomeIndex == winningIndex, nil
}
