// Package accounts is the directory service behind watched-user
// enumeration and leader-address classification: real trading users,
// registered bot users, and watched smart-trader/copy-leader addresses.
package accounts

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/polymarket-pulse/trader/internal/copytrading"
)

// User is a real trading account whose positions the watched-markets
// controller tracks.
type User struct {
	Address   string `gorm:"primaryKey;column:address"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (User) TableName() string { return "users" }

// BotUser is an address the platform itself controls (tier-1 leader
// resolution).
type BotUser struct {
	Address   string `gorm:"primaryKey;column:address"`
	BotUserID string `gorm:"column:bot_user_id"`
}

func (BotUser) TableName() string { return "bot_users" }

// WatchedAddress classifies a non-bot address already promoted to
// smart-trader or copy-leader status (tiers 2-3 of leader resolution).
type WatchedAddress struct {
	Address string `gorm:"primaryKey;column:address"`
	Kind    string `gorm:"column:kind"`
}

func (WatchedAddress) TableName() string { return "watched_addresses" }

// Directory satisfies watched.UserDirectory, copytrading.BotUserDirectory,
// and copytrading.WatchedAddressDirectory off the same three tables.
type Directory interface {
	AllUserAddresses(ctx context.Context) ([]string, error)
	RecentUserAddresses(ctx context.Context, limit int) ([]string, error)
	BotUserID(ctx context.Context, address string) (string, bool, error)
	Lookup(ctx context.Context, address string) (copytrading.WatchedAddressKind, bool, error)
	EnsureBotUser(ctx context.Context, address, botUserID string) error
	EnsureCopyLeader(ctx context.Context, address string) error
}

type GormDirectory struct{ db *gorm.DB }

func NewGormDirectory(db *gorm.DB) *GormDirectory { return &GormDirectory{db: db} }

func (d *GormDirectory) AutoMigrate() error {
	return d.db.AutoMigrate(&User{}, &BotUser{}, &WatchedAddress{})
}

func (d *GormDirectory) AllUserAddresses(ctx context.Context) ([]string, error) {
	var rows []User
	if err := d.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Address
	}
	return out, nil
}

func (d *GormDirectory) RecentUserAddresses(ctx context.Context, limit int) ([]string, error) {
	var rows []User
	if err := d.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Address
	}
	return out, nil
}

func (d *GormDirectory) BotUserID(ctx context.Context, address string) (string, bool, error) {
	var row BotUser
	err := d.db.WithContext(ctx).First(&row, "address = ?", address).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	return row.BotUserID, err == nil, err
}

func (d *GormDirectory) Lookup(ctx context.Context, address string) (copytrading.WatchedAddressKind, bool, error) {
	var row WatchedAddress
	err := d.db.WithContext(ctx).First(&row, "address = ?", address).Error
	if err == gorm.ErrRecordNotFound {
		return "", false, nil
	}
	return copytrading.WatchedAddressKind(row.Kind), err == nil, err
}

func (d *GormDirectory) EnsureBotUser(ctx context.Context, address, botUserID string) error {
	return d.db.WithContext(ctx).Where(BotUser{Address: address}).
		Assign(BotUser{BotUserID: botUserID}).
		FirstOrCreate(&BotUser{}).Error
}

func (d *GormDirectory) EnsureCopyLeader(ctx context.Context, address string) error {
	return d.db.WithContext(ctx).Where(WatchedAddress{Address: address}).
		Assign(WatchedAddress{Kind: string(copytrading.WatchedCopyLeader)}).
		FirstOrCreate(&WatchedAddress{}).Error
}

// MemoryDirectory is an in-memory Directory for tests and SKIP_DB mode.
type MemoryDirectory struct {
	mu       sync.Mutex
	users    map[string]time.Time
	botUsers map[string]string
	watched  map[string]copytrading.WatchedAddressKind
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:    make(map[string]time.Time),
		botUsers: make(map[string]string),
		watched:  make(map[string]copytrading.WatchedAddressKind),
	}
}

func (d *MemoryDirectory) AddUser(address string, createdAt time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[address] = createdAt
}

func (d *MemoryDirectory) AllUserAddresses(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.users))
	for addr := range d.users {
		out = append(out, addr)
	}
	return out, nil
}

func (d *MemoryDirectory) RecentUserAddresses(ctx context.Context, limit int) ([]string, error) {
	all, _ := d.AllUserAddresses(ctx)
	d.mu.Lock()
	sort.Slice(all, func(i, j int) bool { return d.users[all[i]].After(d.users[all[j]]) })
	d.mu.Unlock()
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (d *MemoryDirectory) BotUserID(ctx context.Context, address string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.botUsers[address]
	return id, ok, nil
}

func (d *MemoryDirectory) Lookup(ctx context.Context, address string) (copytrading.WatchedAddressKind, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kind, ok := d.watched[address]
	return kind, ok, nil
}

func (d *MemoryDirectory) EnsureBotUser(ctx context.Context, address, botUserID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.botUsers[address] = botUserID
	return nil
}

func (d *MemoryDirectory) EnsureCopyLeader(ctx context.Context, address string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.watched[address]; !ok {
		d.watched[address] = copytrading.WatchedCopyLeader
	}
	return nil
}
