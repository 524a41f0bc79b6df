package smartwallet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/ids"
)

// MarketResolver resolves a market's question and an outcome's label and
// current price, the one fact the market store can answer that the raw
// trade does not carry.
type MarketResolver interface {
	OutcomeInfo(ctx context.Context, marketID string, side string) (question, outcomeLabel string, price float64, found bool, err error)
}

// Ingestor implements both ingestion paths: webhook-instant (single
// tx_id) and periodic polling backfill.
type Ingestor struct {
	cfg      config.SmartConfig
	raw      RawTradeSource
	repo     Repository
	market   MarketResolver
	log      *slog.Logger
}

func NewIngestor(cfg config.SmartConfig, raw RawTradeSource, repo Repository, market MarketResolver, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{cfg: cfg, raw: raw, repo: repo, market: market, log: log.With("component", "smartwallet")}
}

// IngestByTxID is the webhook-instant path: reads one raw row, validates,
// enriches, and upserts it.
func (in *Ingestor) IngestByTxID(ctx context.Context, txID string) error {
	raw, found, err := in.raw.GetByTxID(ctx, txID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return in.ingestOne(ctx, raw)
}

// PollBackfill is the periodic polling path: reads every raw smart-wallet
// row newer than the high-water mark and ingests each one in turn
// (validate, enrich, upsert), counting every row that fails. Returns
// counts for invalid-rate monitoring.
func (in *Ingestor) PollBackfill(ctx context.Context) (received, invalid int, err error) {
	since, err := in.repo.MaxTimestamp(ctx)
	if err != nil {
		return 0, 0, err
	}
	rows, err := in.raw.ListSmartWalletSince(ctx, since)
	if err != nil {
		return 0, 0, err
	}

	for _, row := range rows {
		received++
		if err := in.ingestOne(ctx, row); err != nil {
			invalid++
		}
	}

	if received > 0 {
		rate := float64(invalid) / float64(received)
		if rate > in.cfg.InvalidRateAlert {
			in.log.Error("smartwallet: invalid rate exceeds threshold", "rate", rate, "received", received, "invalid", invalid)
		}
	}
	return received, invalid, nil
}

func (in *Ingestor) ingestOne(ctx context.Context, raw TrackedLeaderTrade) error {
	if err := in.validate(raw); err != nil {
		_ = in.repo.MarkInvalid(ctx, raw.TxID, err.Error())
		return err
	}

	conditionID, err := ids.ToConditionID(raw.MarketID)
	if err != nil {
		_ = in.repo.MarkInvalid(ctx, raw.TxID, fmt.Sprintf("condition_id conversion failed: %v", err))
		return err
	}

	question, outcomeLabel, fetchedPrice, found, err := in.market.OutcomeInfo(ctx, raw.MarketID, raw.Side)
	if err != nil {
		in.log.Warn("smartwallet: market lookup failed", "market_id", raw.MarketID, "err", err)
	}

	price := raw.Price
	priceIsDefault := false
	if price <= 0 {
		if found {
			price = fetchedPrice
		}
		if price <= 0 {
			price = defaultPriceWhenUnfetchable
			priceIsDefault = true
		}
	}

	isFirstTime, err := in.repo.HasEarlierTrade(ctx, raw.WalletAddress, conditionID.String(), raw.Timestamp)
	if err != nil {
		return err
	}
	isFirstTime = !isFirstTime

	t := SmartWalletTrade{
		TradeID:        raw.TxID,
		WalletAddress:  raw.WalletAddress,
		MarketID:       raw.MarketID,
		ConditionID:    conditionID.String(),
		PositionID:     conditionID.String(),
		Side:           raw.Side,
		Outcome:        outcomeLabel,
		Price:          price,
		Size:           raw.Size,
		Value:          price * raw.Size,
		MarketQuestion: question,
		IsFirstTime:    isFirstTime,
		PriceIsDefault: priceIsDefault,
		WalletRank:     raw.WalletRank,
		Timestamp:      raw.Timestamp,
	}

	if err := in.repo.Upsert(ctx, t); err != nil {
		return err
	}
	return in.reconcileDuplicates(ctx, t.TradeID)
}

func (in *Ingestor) validate(raw TrackedLeaderTrade) error {
	if strings.TrimSpace(raw.TxID) == "" {
		return fmt.Errorf("missing tx_id")
	}
	if strings.TrimSpace(raw.WalletAddress) == "" {
		return fmt.Errorf("missing wallet_address")
	}
	if strings.TrimSpace(raw.MarketID) == "" {
		return fmt.Errorf("missing market_id")
	}
	if raw.Side != "BUY" && raw.Side != "SELL" {
		return fmt.Errorf("invalid side %q", raw.Side)
	}
	if raw.Size <= 0 {
		return fmt.Errorf("non-positive size")
	}
	if raw.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp")
	}
	return nil
}
