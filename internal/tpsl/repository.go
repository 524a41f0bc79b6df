package tpsl

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Repository selects triggerable positions and persists monitor updates.
type Repository interface {
	SelectTriggerable(ctx context.Context, limit int) ([]Position, error)
	Update(ctx context.Context, p Position) error
}

type GormRepository struct{ db *gorm.DB }

func NewGormRepository(db *gorm.DB) *GormRepository { return &GormRepository{db: db} }

func (r *GormRepository) AutoMigrate() error { return r.db.AutoMigrate(&Position{}) }

func (r *GormRepository) SelectTriggerable(ctx context.Context, limit int) ([]Position, error) {
	var rows []Position
	err := r.db.WithContext(ctx).
		Where("status = ? AND (take_profit_price IS NOT NULL OR stop_loss_price IS NOT NULL)", StatusActive).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *GormRepository) Update(ctx context.Context, p Position) error {
	return r.db.WithContext(ctx).Save(&p).Error
}

// MemoryRepository is an in-memory Repository for tests and SKIP_DB mode.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]Position
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]Position)}
}

func (r *MemoryRepository) Seed(p Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = p
}

func (r *MemoryRepository) SelectTriggerable(ctx context.Context, limit int) ([]Position, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Position, 0, len(r.rows))
	for _, p := range r.rows {
		if p.Status != StatusActive {
			continue
		}
		if p.TakeProfitPrice == nil && p.StopLossPrice == nil {
			continue
		}
		out = append(out, p)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) Update(ctx context.Context, p Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = p
	return nil
}

func (r *MemoryRepository) Get(id string) (Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	return p, ok
}
