package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/errs"
	"github.com/polymarket-pulse/trader/internal/marketstore"
	"github.com/polymarket-pulse/trader/internal/retry"
)

// Poller runs the fast-discovery / complete-backfill dual cycle:
// every fast cycle it paginates a bounded number
// of pages looking for new-to-store markets and refreshes the top-N most
// active; every CompleteEvery-th cycle it instead exhaustively repaginates
// and upserts every matching market.
type Poller struct {
	cfg     config.PollerConfig
	client  *gammaClient
	store   *marketstore.Store
	limiter *rate.Limiter
	log     *slog.Logger

	cycle int
	seen  map[string]bool
}

func New(cfg config.PollerConfig, gammaCfg config.GammaConfig, store *marketstore.Store, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		cfg:     cfg,
		client:  newGammaClient(gammaCfg),
		store:   store,
		limiter: rate.NewLimiter(rate.Every(cfg.InterPagePause), 1),
		log:     log.With("component", "poller"),
		seen:    make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled, alternating fast and complete cycles
// at cfg.PollInterval.
func (p *Poller) Run(ctx context.Context) error {
	backoff := retry.New(1*time.Second, p.cfg.MaxBackoff, 0.1)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.runCycle(ctx, backoff)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.runCycle(ctx, backoff)
		}
	}
}

func (p *Poller) runCycle(ctx context.Context, backoff *retry.Backoff) {
	p.cycle++
	var err error
	if p.cfg.CompleteEvery > 0 && p.cycle%p.cfg.CompleteEvery == 0 {
		err = p.completeBackfill(ctx)
	} else {
		err = p.fastDiscovery(ctx)
	}
	if err != nil {
		var classified *errs.E
		if errors.As(err, &classified) && !errs.Retryable(classified.Kind) {
			p.log.Error("poll cycle failed (non-retryable)", "err", err)
			return
		}
		p.log.Warn("poll cycle failed, backing off", "err", err)
		_ = backoff.Sleep(ctx)
		return
	}
	backoff.Reset()
}

// fastDiscovery finds new-to-store markets up to a bounded page budget and
// refreshes the top-N active markets' metadata via the same pages.
func (p *Poller) fastDiscovery(ctx context.Context) error {
	newCount := 0
	for page := 0; page < p.cfg.FastPageBudget; page++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		markets, err := p.client.fetchPage(ctx, p.cfg.PageSize, page*p.cfg.PageSize, "volume24hr")
		if err != nil {
			return classifyFetchErr(err)
		}
		if len(markets) == 0 {
			break
		}
		for _, gm := range markets {
			m, err := toMarket(gm)
			if err != nil {
				p.log.Warn("poller: skip unparsable market", "id", gm.ID, "err", err)
				continue
			}
			isNew := !p.seen[m.ID]
			if isNew || page == 0 {
				if err := p.store.UpsertMarket(ctx, m); err != nil {
					p.log.Warn("poller: upsert failed", "id", m.ID, "err", err)
					continue
				}
				p.seen[m.ID] = true
				if isNew {
					newCount++
				}
			}
		}
	}
	p.log.Debug("fast discovery cycle complete", "new_markets", newCount)
	p.checkExpired(ctx)
	return nil
}

// expiredCheckLimit bounds how many past-end-date markets one fast cycle
// re-fetches for resolution status.
const expiredCheckLimit = 20

// checkExpired re-fetches active markets whose end date has passed, so a
// market resolved upstream transitions terminally in the store without
// waiting for the next complete backfill to reach its page.
func (p *Poller) checkExpired(ctx context.Context) {
	candidates, err := p.store.ListActive(ctx, marketstore.ListFilter{}, marketstore.SortByEndDate, marketstore.Page{Limit: expiredCheckLimit})
	if err != nil {
		p.log.Warn("poller: expired check list failed", "err", err)
		return
	}
	now := time.Now()
	for _, m := range candidates {
		if m.EndDate.IsZero() || m.EndDate.After(now) {
			continue
		}
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}
		gm, err := p.client.fetchMarket(ctx, m.ID)
		if err != nil {
			p.log.Warn("poller: expired check fetch failed", "id", m.ID, "err", err)
			continue
		}
		updated, err := toMarket(gm)
		if err != nil {
			p.log.Warn("poller: expired check skip unparsable market", "id", m.ID, "err", err)
			continue
		}
		if err := p.store.UpsertMarket(ctx, updated); err != nil {
			p.log.Warn("poller: expired check upsert failed", "id", m.ID, "err", err)
		}
	}
}

// completeBackfill exhaustively repaginates up to a hard page cap (or until
// a page comes back empty) and upserts every matching market.
func (p *Poller) completeBackfill(ctx context.Context) error {
	total := 0
	for page := 0; page < p.cfg.CompletePageCap; page++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		markets, err := p.client.fetchPage(ctx, p.cfg.PageSize, page*p.cfg.PageSize, "volume24hr")
		if err != nil {
			return classifyFetchErr(err)
		}
		if len(markets) == 0 {
			break
		}
		for _, gm := range markets {
			m, err := toMarket(gm)
			if err != nil {
				p.log.Warn("poller: skip unparsable market", "id", gm.ID, "err", err)
				continue
			}
			if err := p.store.UpsertMarket(ctx, m); err != nil {
				p.log.Warn("poller: upsert failed", "id", m.ID, "err", err)
				continue
			}
			p.seen[m.ID] = true
			total++
		}
		if len(markets) < p.cfg.PageSize {
			break // consecutive-empty-page-equivalent termination
		}
	}
	p.log.Info("complete backfill cycle done", "markets_upserted", total)
	return nil
}

func classifyFetchErr(err error) error {
	if errors.Is(err, errThrottled) {
		return errs.New(errs.UpstreamThrottled, "poller.fetchPage", err)
	}
	return errs.New(errs.UpstreamUnavailable, "poller.fetchPage", err)
}
