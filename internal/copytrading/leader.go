package copytrading

import (
	"context"
	"sync"
)

// BotUserDirectory reports whether an address belongs to a registered bot
// user (tier 1 of leader resolution).
type BotUserDirectory interface {
	BotUserID(ctx context.Context, address string) (string, bool, error)
}

// WatchedAddressKind is the type recorded on a watched-address row, the
// tier-2/3 classification source.
type WatchedAddressKind string

const (
	WatchedSmartTrader WatchedAddressKind = "smart_trader"
	WatchedCopyLeader  WatchedAddressKind = "copy_leader"
)

// WatchedAddressDirectory reads and creates watched-address rows used by
// leader resolution tiers 2-4.
type WatchedAddressDirectory interface {
	Lookup(ctx context.Context, address string) (WatchedAddressKind, bool, error)
	EnsureBotUser(ctx context.Context, address, botUserID string) error
	EnsureCopyLeader(ctx context.Context, address string) error
}

// LeaderResolver implements the deterministic 3-tier leader classification
// with a single-writer guarantee on the resolved row: only one goroutine at
// a time may create a new copy_leader row for a given address.
type LeaderResolver struct {
	bots     BotUserDirectory
	watched  WatchedAddressDirectory

	mu       sync.Mutex
	inflight map[string]*sync.Mutex
}

func NewLeaderResolver(bots BotUserDirectory, watched WatchedAddressDirectory) *LeaderResolver {
	return &LeaderResolver{bots: bots, watched: watched, inflight: make(map[string]*sync.Mutex)}
}

func (r *LeaderResolver) lockFor(address string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.inflight[address]
	if !ok {
		l = &sync.Mutex{}
		r.inflight[address] = l
	}
	return l
}

// Resolve classifies address per the 3-tier rule, creating a copy_leader
// row as the fallback on the fourth tier.
func (r *LeaderResolver) Resolve(ctx context.Context, address string) (LeaderKind, error) {
	lock := r.lockFor(address)
	lock.Lock()
	defer lock.Unlock()

	if botUserID, ok, err := r.bots.BotUserID(ctx, address); err != nil {
		return "", err
	} else if ok {
		if err := r.watched.EnsureBotUser(ctx, address, botUserID); err != nil {
			return "", err
		}
		return LeaderBotUser, nil
	}

	kind, ok, err := r.watched.Lookup(ctx, address)
	if err != nil {
		return "", err
	}
	if ok && kind == WatchedSmartTrader {
		return LeaderSmartTrader, nil
	}
	if ok && kind == WatchedCopyLeader {
		return LeaderCopyLeader, nil
	}

	if err := r.watched.EnsureCopyLeader(ctx, address); err != nil {
		return "", err
	}
	return LeaderCopyLeader, nil
}
