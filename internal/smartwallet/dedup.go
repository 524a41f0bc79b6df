package smartwallet

import (
	"context"
	"strings"
)

// CanonicalTradeID strips the webhook-instant path's suffix from a trade
// id: that path may write a row as "<tx_id>_<n>" before the polling
// backfill observes the same fill under the bare tx_id.
func CanonicalTradeID(tradeID string) string {
	if i := strings.IndexByte(tradeID, '_'); i > 0 {
		return tradeID[:i]
	}
	return tradeID
}

// reconcileDuplicates collapses the suffixed/canonical duplicate rows for
// one fill down to a single survivor. The row flagged is_first_time wins;
// among rows with the same flag the newer one wins, canonical id breaking
// a timestamp tie.
func (in *Ingestor) reconcileDuplicates(ctx context.Context, tradeID string) error {
	base := CanonicalTradeID(tradeID)
	rows, err := in.repo.ListByTradeIDBase(ctx, base)
	if err != nil || len(rows) <= 1 {
		return err
	}

	keep := rows[0]
	for _, r := range rows[1:] {
		if preferTrade(r, keep, base) {
			keep = r
		}
	}
	for _, r := range rows {
		if r.TradeID == keep.TradeID {
			continue
		}
		if err := in.repo.Delete(ctx, r.TradeID); err != nil {
			return err
		}
	}
	return nil
}

func preferTrade(a, b SmartWalletTrade, base string) bool {
	if a.IsFirstTime != b.IsFirstTime {
		return a.IsFirstTime
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	return a.TradeID == base
}
