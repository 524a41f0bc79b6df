package smartwallet

import (
	"context"
	"testing"
	"time"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalTradeID(t *testing.T) {
	assert.Equal(t, "0xaaa111", CanonicalTradeID("0xaaa111_300"))
	assert.Equal(t, "0xaaa111", CanonicalTradeID("0xaaa111"))
}

// A fill observed first through the webhook-instant path (suffixed tx_id)
// and later through the polling backfill (canonical tx_id) must converge to
// exactly one surviving row, preferring the one flagged is_first_time, and
// must appear in the shared feed exactly once.
func TestDedupAcrossWebhookAndPollingPaths(t *testing.T) {
	base := time.Now().Add(-time.Minute)
	webhookRow := TrackedLeaderTrade{
		TxID:          "0xaaa111_300",
		WalletAddress: "0xWallet",
		MarketID:      "305",
		Side:          "BUY",
		Price:         0.65,
		Size:          700,
		WalletRank:    veryWalletRank,
		Timestamp:     base,
	}
	pollingRow := webhookRow
	pollingRow.TxID = "0xaaa111"
	pollingRow.Timestamp = base.Add(time.Second)

	raw := &fakeRawSource{byTxID: map[string]TrackedLeaderTrade{
		webhookRow.TxID: webhookRow,
		pollingRow.TxID: pollingRow,
	}}
	repo := NewMemoryRepository()
	market := &fakeMarketResolver{question: "Will it happen?", outcomeLabel: "Yes", price: 0.65, found: true}
	in := NewIngestor(config.SmartConfig{}, raw, repo, market, nil)

	require.NoError(t, in.IngestByTxID(context.Background(), webhookRow.TxID))
	require.NoError(t, in.IngestByTxID(context.Background(), pollingRow.TxID))

	rows, err := repo.ListByTradeIDBase(context.Background(), "0xaaa111")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsFirstTime, "the first-time-flagged row must survive reconciliation")
	assert.Equal(t, "0xaaa111_300", rows[0].TradeID)

	fanout := NewShareFanout(repo, 400, 5*time.Minute)
	added, err := fanout.Evaluate(context.Background(), rows[0], time.Now())
	require.NoError(t, err)
	assert.True(t, added)

	addedAgain, err := fanout.Evaluate(context.Background(), SmartWalletTrade{
		TradeID: "0xaaa111", Side: "BUY", IsFirstTime: true, Value: 455,
		MarketQuestion: "Will it happen?", WalletRank: veryWalletRank, Timestamp: pollingRow.Timestamp,
	}, time.Now())
	require.NoError(t, err)
	assert.False(t, addedAgain, "canonical and suffixed ids must share once")
}

// Re-publishing a tx_id that already converged is a no-op on the shared
// feed and leaves a single normalized row in place.
func TestIngestAlreadyConvergedTxIDIsIdempotent(t *testing.T) {
	row := TrackedLeaderTrade{
		TxID:          "0xbbb222",
		WalletAddress: "0xWallet",
		MarketID:      "305",
		Side:          "BUY",
		Price:         0.65,
		Size:          700,
		WalletRank:    veryWalletRank,
		Timestamp:     time.Now().Add(-time.Minute),
	}
	raw := &fakeRawSource{byTxID: map[string]TrackedLeaderTrade{row.TxID: row}}
	repo := NewMemoryRepository()
	market := &fakeMarketResolver{question: "q", outcomeLabel: "Yes", price: 0.65, found: true}
	in := NewIngestor(config.SmartConfig{}, raw, repo, market, nil)

	require.NoError(t, in.IngestByTxID(context.Background(), row.TxID))
	require.NoError(t, in.IngestByTxID(context.Background(), row.TxID))

	rows, err := repo.ListByTradeIDBase(context.Background(), row.TxID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
