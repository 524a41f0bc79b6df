package watched

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/marketstore"
)

// UserDirectory enumerates all real users' wallet addresses.
type UserDirectory interface {
	AllUserAddresses(ctx context.Context) ([]string, error)
	RecentUserAddresses(ctx context.Context, limit int) ([]string, error)
}

// SmartActivitySource lists markets with recent smart-wallet activity,
// the opt-in augmentation of the required subscription set.
type SmartActivitySource interface {
	RecentActiveMarkets(ctx context.Context, window time.Duration) ([]string, error)
}

// Controller runs the periodic reconciliation loop and doubles as the
// streamer's SubscriptionSource.
type Controller struct {
	cfg      config.WatchedConfig
	users    UserDirectory
	cache    *PositionCache
	repo     Repository
	store    *marketstore.Store
	activity SmartActivitySource // optional
	log      *slog.Logger

	cycle int

	mu      sync.RWMutex
	desired map[string]bool

	refreshSignal atomic.Bool
}

func New(cfg config.WatchedConfig, users UserDirectory, cache *PositionCache, repo Repository, store *marketstore.Store, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		cfg:     cfg,
		users:   users,
		cache:   cache,
		repo:    repo,
		store:   store,
		log:     log.With("component", "watched"),
		desired: make(map[string]bool),
	}
}

// SetSmartActivitySource enables the recently-active smart-wallet market
// augmentation; it only takes effect when cfg.IncludeSmartActivity is set.
func (c *Controller) SetSmartActivitySource(source SmartActivitySource) {
	c.activity = source
}

// DesiredMarkets implements streamer.SubscriptionSource.
func (c *Controller) DesiredMarkets() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.desired))
	for m := range c.desired {
		out = append(out, m)
	}
	return out
}

// RefreshRequested reports and clears whether a mutation signaled the
// streamer to refresh subscriptions since the last check.
func (c *Controller) RefreshRequested() bool {
	return c.refreshSignal.Swap(false)
}

func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.ReconcileInterval)
	defer ticker.Stop()

	c.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.reconcile(ctx)
		}
	}
}

func (c *Controller) reconcile(ctx context.Context) {
	c.cycle++

	addresses, err := c.users.AllUserAddresses(ctx)
	if err != nil {
		c.log.Warn("watched: enumerate users failed", "err", err)
		return
	}

	positions, failPct, err := c.cache.BatchFetch(ctx, addresses)
	if err != nil {
		c.log.Warn("watched: batch fetch failed", "err", err)
		return
	}

	required := c.computeRequired(ctx, positions)
	c.augmentWithSmartActivity(ctx, required)

	mutated := false
	now := time.Now()
	for marketID, count := range required {
		changed, err := c.repo.Upsert(ctx, WatchedMarket{MarketID: marketID, ActivePositions: count, LastPositionAt: now})
		if err != nil {
			c.log.Warn("watched: upsert failed", "market_id", marketID, "err", err)
			continue
		}
		if changed {
			mutated = true
		}
	}

	skipDeletes := failPct >= c.cfg.SkipDeleteFailPctMax
	if !skipDeletes {
		existing, err := c.repo.All(ctx)
		if err != nil {
			c.log.Warn("watched: list existing failed", "err", err)
		} else {
			for _, row := range existing {
				if _, ok := required[row.MarketID]; ok {
					continue
				}
				if err := c.repo.Delete(ctx, row.MarketID); err != nil {
					c.log.Warn("watched: delete failed", "market_id", row.MarketID, "err", err)
					continue
				}
				mutated = true
			}
		}
	} else {
		c.log.Warn("watched: skipping deletions, failure rate too high", "fail_pct", failPct)
	}

	c.setDesired(required)

	if mutated {
		c.refreshSignal.Store(true)
		c.cache.InvalidateAll()
	}

	if c.cfg.SweepEveryNCycles > 0 && c.cycle%c.cfg.SweepEveryNCycles == 0 {
		c.inactiveMarketSweep(ctx)
	}
}

// computeRequired builds { market_id -> count(owners) } for every
// condition held non-dust by any user, excluding terminal markets.
func (c *Controller) computeRequired(ctx context.Context, positions []Position) map[string]int {
	required := make(map[string]int)
	owners := make(map[string]map[string]bool) // market -> set of owner addresses

	for _, p := range positions {
		if p.IsDust() {
			continue
		}
		m, found, err := c.store.GetMarket(ctx, p.MarketID, true)
		if err != nil {
			c.log.Warn("watched: market lookup failed", "market_id", p.MarketID, "err", err)
			continue
		}
		if found && m.Status.Terminal() {
			continue
		}
		if owners[p.MarketID] == nil {
			owners[p.MarketID] = make(map[string]bool)
		}
		owners[p.MarketID][p.UserAddress] = true
	}
	for marketID, ownerSet := range owners {
		required[marketID] = len(ownerSet)
	}
	return required
}

// augmentWithSmartActivity adds markets with recent smart-wallet activity
// to the required set. Augmented entries carry no position owners, so they
// keep the subscription alive without inflating active_positions.
func (c *Controller) augmentWithSmartActivity(ctx context.Context, required map[string]int) {
	if !c.cfg.IncludeSmartActivity || c.activity == nil {
		return
	}
	markets, err := c.activity.RecentActiveMarkets(ctx, c.cfg.SmartActivityWindow)
	if err != nil {
		c.log.Warn("watched: smart activity lookup failed", "err", err)
		return
	}
	for _, marketID := range markets {
		if _, ok := required[marketID]; ok {
			continue
		}
		m, found, err := c.store.GetMarket(ctx, marketID, true)
		if err != nil || (found && m.Status.Terminal()) {
			continue
		}
		required[marketID] = 0
	}
}

func (c *Controller) setDesired(required map[string]int) {
	next := make(map[string]bool, len(required))
	for marketID := range required {
		next[marketID] = true
	}
	c.mu.Lock()
	c.desired = next
	c.mu.Unlock()
}

func (c *Controller) inactiveMarketSweep(ctx context.Context) {
	addresses, err := c.users.RecentUserAddresses(ctx, c.cfg.SweepUserLimit)
	if err != nil {
		c.log.Warn("watched: sweep enumerate failed", "err", err)
		return
	}
	positions, _, err := c.cache.BatchFetch(ctx, addresses)
	if err != nil {
		c.log.Warn("watched: sweep fetch failed", "err", err)
		return
	}
	required := c.computeRequired(ctx, positions)

	existing, err := c.repo.All(ctx)
	if err != nil {
		c.log.Warn("watched: sweep list failed", "err", err)
		return
	}
	for _, row := range existing {
		if _, ok := required[row.MarketID]; ok {
			continue
		}
		if err := c.repo.Delete(ctx, row.MarketID); err != nil {
			c.log.Warn("watched: sweep delete failed", "market_id", row.MarketID, "err", err)
		}
	}
}
