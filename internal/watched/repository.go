package watched

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Repository is the watched_markets persistence contract; the controller
// is the sole mutator (one-row upserts are conflict-safe). Upsert reports
// whether the row was inserted or materially changed — a refresh of
// last_position_at alone does not count, so an unchanged reconciliation
// produces no mutation signal.
type Repository interface {
	Upsert(ctx context.Context, row WatchedMarket) (changed bool, err error)
	Delete(ctx context.Context, marketID string) error
	All(ctx context.Context) ([]WatchedMarket, error)
}

type GormRepository struct{ db *gorm.DB }

func NewGormRepository(db *gorm.DB) *GormRepository { return &GormRepository{db: db} }

func (r *GormRepository) AutoMigrate() error { return r.db.AutoMigrate(&WatchedMarket{}) }

func (r *GormRepository) Upsert(ctx context.Context, row WatchedMarket) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing WatchedMarket
		err := tx.First(&existing, "market_id = ?", row.MarketID).Error
		if err == gorm.ErrRecordNotFound {
			changed = true
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}
		changed = existing.ActivePositions != row.ActivePositions || existing.ConditionID != row.ConditionID
		return tx.Model(&WatchedMarket{}).Where("market_id = ?", row.MarketID).Updates(map[string]any{
			"condition_id":     row.ConditionID,
			"active_positions": row.ActivePositions,
			"last_position_at": row.LastPositionAt,
		}).Error
	})
	return changed, err
}

func (r *GormRepository) Delete(ctx context.Context, marketID string) error {
	return r.db.WithContext(ctx).Delete(&WatchedMarket{}, "market_id = ?", marketID).Error
}

func (r *GormRepository) All(ctx context.Context) ([]WatchedMarket, error) {
	var rows []WatchedMarket
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MemoryRepository is an in-memory Repository for tests and SKIP_DB mode.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]WatchedMarket
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]WatchedMarket)}
}

func (r *MemoryRepository) Upsert(ctx context.Context, row WatchedMarket) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.rows[row.MarketID]
	changed := !ok || existing.ActivePositions != row.ActivePositions || existing.ConditionID != row.ConditionID
	r.rows[row.MarketID] = row
	return changed, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, marketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, marketID)
	return nil
}

func (r *MemoryRepository) All(ctx context.Context) ([]WatchedMarket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WatchedMarket, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	return out, nil
}
