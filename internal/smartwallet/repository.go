package smartwallet

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"
)

// RawTradeSource reads raw tracked-leader-trade rows, the ingestion
// path's upstream collaborator.
type RawTradeSource interface {
	GetByTxID(ctx context.Context, txID string) (TrackedLeaderTrade, bool, error)
	ListSmartWalletSince(ctx context.Context, since time.Time) ([]TrackedLeaderTrade, error)
}

// Repository persists normalized trades, dead-letter rows, and the
// shareable feed.
type Repository interface {
	Upsert(ctx context.Context, t SmartWalletTrade) error
	HasEarlierTrade(ctx context.Context, walletAddress, conditionID string, before time.Time) (bool, error)
	MaxTimestamp(ctx context.Context) (time.Time, error)
	MarkInvalid(ctx context.Context, txID, reason string) error
	AppendToShare(ctx context.Context, tradeID string) (added bool, err error)
	ListNormalizedSince(ctx context.Context, since time.Time) ([]SmartWalletTrade, error)
	ListByTradeIDBase(ctx context.Context, base string) ([]SmartWalletTrade, error)
	Delete(ctx context.Context, tradeID string) error
}

type GormRepository struct{ db *gorm.DB }

func NewGormRepository(db *gorm.DB) *GormRepository { return &GormRepository{db: db} }

func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&TrackedLeaderTrade{}, &SmartWalletTrade{}, &InvalidTrade{}, &shareRow{})
}

func (r *GormRepository) Upsert(ctx context.Context, t SmartWalletTrade) error {
	return r.db.WithContext(ctx).Save(&t).Error
}

func (r *GormRepository) HasEarlierTrade(ctx context.Context, walletAddress, conditionID string, before time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&SmartWalletTrade{}).
		Where("wallet_address = ? AND condition_id = ? AND timestamp < ?", walletAddress, conditionID, before).
		Count(&count).Error
	return count > 0, err
}

func (r *GormRepository) MaxTimestamp(ctx context.Context) (time.Time, error) {
	var t SmartWalletTrade
	err := r.db.WithContext(ctx).Order("timestamp DESC").First(&t).Error
	if err == gorm.ErrRecordNotFound {
		return time.Time{}, nil
	}
	return t.Timestamp, err
}

func (r *GormRepository) MarkInvalid(ctx context.Context, txID, reason string) error {
	return r.db.WithContext(ctx).Save(&InvalidTrade{TxID: txID, Reason: reason}).Error
}

// GetByTxID and ListSmartWalletSince satisfy RawTradeSource against the
// same database: tracked_leader_trades is filled by the webhook listener,
// ingestion reads it back through this same repository.
func (r *GormRepository) GetByTxID(ctx context.Context, txID string) (TrackedLeaderTrade, bool, error) {
	var row TrackedLeaderTrade
	err := r.db.WithContext(ctx).First(&row, "tx_id = ?", txID).Error
	if err == gorm.ErrRecordNotFound {
		return TrackedLeaderTrade{}, false, nil
	}
	return row, err == nil, err
}

func (r *GormRepository) ListSmartWalletSince(ctx context.Context, since time.Time) ([]TrackedLeaderTrade, error) {
	var rows []TrackedLeaderTrade
	err := r.db.WithContext(ctx).Where("timestamp > ?", since).Order("timestamp ASC").Find(&rows).Error
	return rows, err
}

// ListNormalizedSince feeds the copy-trading engine: every normalized
// trade ingested after the cursor, oldest first.
func (r *GormRepository) ListNormalizedSince(ctx context.Context, since time.Time) ([]SmartWalletTrade, error) {
	var rows []SmartWalletTrade
	err := r.db.WithContext(ctx).Where("timestamp > ?", since).Order("timestamp ASC").Find(&rows).Error
	return rows, err
}

// ListByTradeIDBase finds every normalized row whose trade_id is the given
// canonical id or a suffixed variant of it, the duplicate set the
// webhook-instant and polling paths can produce for one fill.
func (r *GormRepository) ListByTradeIDBase(ctx context.Context, base string) ([]SmartWalletTrade, error) {
	var rows []SmartWalletTrade
	err := r.db.WithContext(ctx).
		Where("trade_id = ? OR trade_id LIKE ?", base, base+"\\_%").
		Find(&rows).Error
	return rows, err
}

func (r *GormRepository) Delete(ctx context.Context, tradeID string) error {
	return r.db.WithContext(ctx).Delete(&SmartWalletTrade{}, "trade_id = ?", tradeID).Error
}

type shareRow struct {
	TradeID string `gorm:"primaryKey;column:trade_id"`
}

func (shareRow) TableName() string { return "smart_wallet_trades_to_share" }

func (r *GormRepository) AppendToShare(ctx context.Context, tradeID string) (bool, error) {
	result := r.db.WithContext(ctx).FirstOrCreate(&shareRow{TradeID: tradeID}, "trade_id = ?", tradeID)
	return result.RowsAffected > 0, result.Error
}

// MemoryRepository is an in-memory Repository for tests and SKIP_DB mode.
type MemoryRepository struct {
	mu       sync.Mutex
	trades   map[string]SmartWalletTrade
	invalid  map[string]string
	shared   map[string]bool
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		trades:  make(map[string]SmartWalletTrade),
		invalid: make(map[string]string),
		shared:  make(map[string]bool),
	}
}

func (r *MemoryRepository) Upsert(ctx context.Context, t SmartWalletTrade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades[t.TradeID] = t
	return nil
}

func (r *MemoryRepository) HasEarlierTrade(ctx context.Context, walletAddress, conditionID string, before time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trades {
		if t.WalletAddress == walletAddress && t.ConditionID == conditionID && t.Timestamp.Before(before) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryRepository) MaxTimestamp(ctx context.Context) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	times := make([]time.Time, 0, len(r.trades))
	for _, t := range r.trades {
		times = append(times, t.Timestamp)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].After(times[j]) })
	if len(times) == 0 {
		return time.Time{}, nil
	}
	return times[0], nil
}

func (r *MemoryRepository) MarkInvalid(ctx context.Context, txID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalid[txID] = reason
	return nil
}

func (r *MemoryRepository) AppendToShare(ctx context.Context, tradeID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shared[tradeID] {
		return false, nil
	}
	r.shared[tradeID] = true
	return true, nil
}

func (r *MemoryRepository) ListByTradeIDBase(ctx context.Context, base string) ([]SmartWalletTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SmartWalletTrade
	for id, t := range r.trades {
		if id == base || strings.HasPrefix(id, base+"_") {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, tradeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.trades, tradeID)
	return nil
}

func (r *MemoryRepository) ListNormalizedSince(ctx context.Context, since time.Time) ([]SmartWalletTrade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SmartWalletTrade, 0, len(r.trades))
	for _, t := range r.trades {
		if t.Timestamp.After(since) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
