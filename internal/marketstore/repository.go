package marketstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ListFilter narrows list_active queries.
type ListFilter struct {
	Status       Status
	MinLiquidity float64
}

// ListSort orders list_active results.
type ListSort string

const (
	SortByVolume    ListSort = "volume"
	SortByLiquidity ListSort = "liquidity"
	SortByEndDate   ListSort = "end_date"
)

// Page bounds a list_active query.
type Page struct {
	Limit  int
	Offset int
}

// Repository is the single persistence contract every consumer holds,
// with two implementations: a gorm-backed store and an in-memory store
// used by tests and by operators running with SKIP_DB=true.
type Repository interface {
	UpsertMarket(ctx context.Context, m Market) error
	GetMarket(ctx context.Context, id string, allowClosed bool) (Market, bool, error)
	ListActive(ctx context.Context, filter ListFilter, sort ListSort, page Page) ([]Market, error)
}

// GormRepository persists markets through gorm.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate creates/updates the markets table schema.
func (r *GormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&Market{})
}

func encodeMarket(m *Market) error {
	outcomes, err := json.Marshal(m.Outcomes)
	if err != nil {
		return err
	}
	prices, err := json.Marshal(m.OutcomePrices)
	if err != nil {
		return err
	}
	tokenIDs, err := json.Marshal(m.ClobTokenIDs)
	if err != nil {
		return err
	}
	m.OutcomesJSON = string(outcomes)
	m.PricesJSON = string(prices)
	m.TokenIDsJSON = string(tokenIDs)
	return nil
}

func decodeMarket(m *Market) error {
	if m.OutcomesJSON != "" {
		if err := json.Unmarshal([]byte(m.OutcomesJSON), &m.Outcomes); err != nil {
			return err
		}
	}
	if m.PricesJSON != "" {
		if err := json.Unmarshal([]byte(m.PricesJSON), &m.OutcomePrices); err != nil {
			return err
		}
	}
	if m.TokenIDsJSON != "" {
		if err := json.Unmarshal([]byte(m.TokenIDsJSON), &m.ClobTokenIDs); err != nil {
			return err
		}
	}
	return nil
}

// UpsertMarket is idempotent on id. A market already RESOLVED or CANCELLED
// never transitions back to a non-terminal status from a later observation.
func (r *GormRepository) UpsertMarket(ctx context.Context, m Market) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if err := encodeMarket(&m); err != nil {
		return fmt.Errorf("marketstore: encode market %s: %w", m.ID, err)
	}
	m.LastUpdated = time.Now()

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Market
		err := tx.First(&existing, "id = ?", m.ID).Error
		if err == gorm.ErrRecordNotFound {
			return tx.Create(&m).Error
		}
		if err != nil {
			return err
		}
		if existing.Status.Terminal() && !m.Status.Terminal() {
			m.Status = existing.Status // ignore non-terminal observations after resolution
		}
		return tx.Model(&Market{}).Where("id = ?", m.ID).Updates(map[string]any{
			"condition_id":  m.ConditionID,
			"question":      m.Question,
			"slug":          m.Slug,
			"status":        m.Status,
			"outcomes_json": m.OutcomesJSON,
			"prices_json":   m.PricesJSON,
			"token_ids_json": m.TokenIDsJSON,
			"volume":        m.Volume,
			"liquidity":     m.Liquidity,
			"end_date":      m.EndDate,
			"event_id":      m.EventID,
			"event_title":   m.EventTitle,
			"last_updated":  m.LastUpdated,
		}).Error
	})
}

func (r *GormRepository) GetMarket(ctx context.Context, id string, allowClosed bool) (Market, bool, error) {
	var m Market
	q := r.db.WithContext(ctx)
	if !allowClosed {
		q = q.Where("status = ?", StatusActive)
	}
	err := q.First(&m, "id = ?", id).Error
	if err == gorm.ErrRecordNotFound {
		return Market{}, false, nil
	}
	if err != nil {
		return Market{}, false, err
	}
	if err := decodeMarket(&m); err != nil {
		return Market{}, false, err
	}
	return m, true, nil
}

func (r *GormRepository) ListActive(ctx context.Context, filter ListFilter, s ListSort, page Page) ([]Market, error) {
	q := r.db.WithContext(ctx).Where("status = ?", StatusActive)
	if filter.MinLiquidity > 0 {
		q = q.Where("liquidity >= ?", filter.MinLiquidity)
	}
	switch s {
	case SortByVolume:
		q = q.Order("volume DESC")
	case SortByLiquidity:
		q = q.Order("liquidity DESC")
	case SortByEndDate:
		q = q.Order("end_date ASC")
	}
	if page.Limit > 0 {
		q = q.Limit(page.Limit).Offset(page.Offset)
	}
	var markets []Market
	if err := q.Find(&markets).Error; err != nil {
		return nil, err
	}
	for i := range markets {
		if err := decodeMarket(&markets[i]); err != nil {
			return nil, err
		}
	}
	return markets, nil
}

// MemoryRepository is an in-memory Repository used by tests and by
// SKIP_DB=true deployments, which run without any database connection.
// Its contents are not persisted across restarts.
type MemoryRepository struct {
	mu      sync.RWMutex
	markets map[string]Market
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{markets: make(map[string]Market)}
}

func (r *MemoryRepository) UpsertMarket(ctx context.Context, m Market) error {
	if err := m.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.markets[m.ID]; ok && existing.Status.Terminal() && !m.Status.Terminal() {
		m.Status = existing.Status
	}
	m.LastUpdated = time.Now()
	r.markets[m.ID] = m
	return nil
}

func (r *MemoryRepository) GetMarket(ctx context.Context, id string, allowClosed bool) (Market, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[id]
	if !ok {
		return Market{}, false, nil
	}
	if !allowClosed && m.Status != StatusActive {
		return Market{}, false, nil
	}
	return m, true, nil
}

func (r *MemoryRepository) ListActive(ctx context.Context, filter ListFilter, s ListSort, page Page) ([]Market, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Market
	for _, m := range r.markets {
		if m.Status != StatusActive {
			continue
		}
		if filter.MinLiquidity > 0 && m.Liquidity < filter.MinLiquidity {
			continue
		}
		out = append(out, m)
	}
	switch s {
	case SortByVolume:
		sort.Slice(out, func(i, j int) bool { return out[i].Volume > out[j].Volume })
	case SortByLiquidity:
		sort.Slice(out, func(i, j int) bool { return out[i].Liquidity > out[j].Liquidity })
	case SortByEndDate:
		sort.Slice(out, func(i, j int) bool { return out[i].EndDate.Before(out[j].EndDate) })
	}
	if page.Limit > 0 {
		start := page.Offset
		if start > len(out) {
			start = len(out)
		}
		end := start + page.Limit
		if end > len(out) {
			end = len(out)
		}
		out = out[start:end]
	}
	return out, nil
}
