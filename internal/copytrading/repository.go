package copytrading

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Repository persists copy allocations, one active row per follower.
type Repository interface {
	ActiveAllocation(ctx context.Context, followerAddress string) (CopyAllocation, bool, error)
	Upsert(ctx context.Context, a CopyAllocation) error
	FollowersOf(ctx context.Context, leaderAddress string) ([]CopyAllocation, error)
	CountActive(ctx context.Context) (int, error)
}

type GormRepository struct{ db *gorm.DB }

func NewGormRepository(db *gorm.DB) *GormRepository { return &GormRepository{db: db} }

func (r *GormRepository) AutoMigrate() error { return r.db.AutoMigrate(&CopyAllocation{}) }

func (r *GormRepository) ActiveAllocation(ctx context.Context, followerAddress string) (CopyAllocation, bool, error) {
	var a CopyAllocation
	err := r.db.WithContext(ctx).First(&a, "follower_address = ? AND is_active = ?", followerAddress, true).Error
	if err == gorm.ErrRecordNotFound {
		return CopyAllocation{}, false, nil
	}
	if err != nil {
		return CopyAllocation{}, false, err
	}
	return a, true, nil
}

// Upsert deactivates any existing active allocation for the follower
// before writing the new one, enforcing the at-most-one-active invariant.
func (r *GormRepository) Upsert(ctx context.Context, a CopyAllocation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if a.IsActive {
			if err := tx.Model(&CopyAllocation{}).
				Where("follower_address = ? AND id <> ?", a.FollowerAddress, a.ID).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(&a).Error
	})
}

func (r *GormRepository) FollowersOf(ctx context.Context, leaderAddress string) ([]CopyAllocation, error) {
	var rows []CopyAllocation
	err := r.db.WithContext(ctx).Find(&rows, "leader_address = ? AND is_active = ?", leaderAddress, true).Error
	return rows, err
}

func (r *GormRepository) CountActive(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&CopyAllocation{}).Where("is_active = ?", true).Count(&count).Error
	return int(count), err
}

// MemoryRepository is an in-memory Repository for tests and SKIP_DB mode.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]CopyAllocation // keyed by id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]CopyAllocation)}
}

func (r *MemoryRepository) ActiveAllocation(ctx context.Context, followerAddress string) (CopyAllocation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.rows {
		if a.FollowerAddress == followerAddress && a.IsActive {
			return a, true, nil
		}
	}
	return CopyAllocation{}, false, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, a CopyAllocation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.IsActive {
		for id, existing := range r.rows {
			if existing.FollowerAddress == a.FollowerAddress && id != a.ID {
				existing.IsActive = false
				r.rows[id] = existing
			}
		}
	}
	r.rows[a.ID] = a
	return nil
}

func (r *MemoryRepository) FollowersOf(ctx context.Context, leaderAddress string) ([]CopyAllocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CopyAllocation
	for _, a := range r.rows {
		if a.LeaderAddress == leaderAddress && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *MemoryRepository) CountActive(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.rows {
		if a.IsActive {
			count++
		}
	}
	return count, nil
}
