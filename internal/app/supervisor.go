// Package app is the composition root: it wires every domain component
// (market discovery, the live quote stream, the webhook bridge, the
// watched-markets controller, copy-trading, smart-wallet sharing, and
// TP/SL) and runs each as an independent supervised goroutine with
// cooperative cancellation.
package app

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/polymarket-go-sdk/pkg/auth"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/clob"
	"github.com/GoPolymarket/polymarket-go-sdk/pkg/data"
	"gorm.io/gorm"

	"github.com/polymarket-pulse/trader/internal/accounts"
	"github.com/polymarket-pulse/trader/internal/bridge"
	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/copytrading"
	"github.com/polymarket-pulse/trader/internal/dataclient"
	"github.com/polymarket-pulse/trader/internal/exchangeclient"
	"github.com/polymarket-pulse/trader/internal/marketstore"
	"github.com/polymarket-pulse/trader/internal/notify"
	"github.com/polymarket-pulse/trader/internal/poller"
	"github.com/polymarket-pulse/trader/internal/publisher"
	"github.com/polymarket-pulse/trader/internal/smartwallet"
	"github.com/polymarket-pulse/trader/internal/streamer"
	"github.com/polymarket-pulse/trader/internal/tpsl"
	"github.com/polymarket-pulse/trader/internal/watched"
)

// shutdownGrace bounds how long Run waits for every supervised task to
// unwind after ctx is cancelled.
const shutdownGrace = 5 * time.Second

// supervisedTask is one independently-scheduled long-running component.
type supervisedTask struct {
	name string
	run  func(ctx context.Context) error
}

// Supervisor owns every long-running component's lifecycle and the
// shared collaborators they're built from.
type Supervisor struct {
	cfg         config.Config
	log         *slog.Logger
	db          *gorm.DB
	store       *marketstore.Store
	poller      *poller.Poller
	streamer    *streamer.Streamer
	bridge      *bridge.Bridge
	publisher   *publisher.Publisher
	watchedCtrl *watched.Controller
	copyRepo    copytrading.Repository
	copyEngine  *copytrading.Engine
	copyFeed    *CopyFeed
	ingestor    *smartwallet.Ingestor
	tpslMonitor *tpsl.Monitor
	tradingMode string

	mu      sync.RWMutex
	running bool
}

// New wires every component from configuration, the two SDK clients the
// rest of the system cannot function without (order placement and
// balance/position reads), and the signer live orders are built with.
func New(cfg config.Config, clobClient clob.Client, dataClient data.Client, signer auth.Signer, log *slog.Logger) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}

	tradingMode := strings.ToLower(strings.TrimSpace(cfg.TradingMode))
	if tradingMode != "live" {
		tradingMode = "paper"
	}

	var db *gorm.DB
	if !cfg.SkipDB {
		var err error
		db, err = openDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := autoMigrate(db); err != nil {
			return nil, err
		}
	}

	store := newMarketStore(db)
	dirs := newAccountsDirectory(db)
	dataAdapter := dataclient.New(dataClient)

	positionCache := watched.NewPositionCache(dataAdapter, cfg.Watched.PositionCacheTTL)
	watchedRepo := newWatchedRepository(db)
	watchedCtrl := watched.New(cfg.Watched, dirs, positionCache, watchedRepo, store, log)

	p := poller.New(cfg.Poller, cfg.Gamma, store, log)
	s := streamer.New(cfg.CLOB, cfg.Watched, store, watchedCtrl, log)
	b := bridge.New(cfg.Redis, cfg.Webhook, log)
	pub := publisher.New(cfg.Redis, log)

	var notifier *notify.Notifier
	if cfg.Telegram.Enabled {
		notifier = notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	} else {
		notifier = notify.NewNotifier("", "")
	}

	var exClient exchangeclient.Client
	if tradingMode == "live" && !cfg.DryRun {
		exClient = exchangeclient.NewLiveClient(clobClient, dataClient, signer)
	} else {
		exClient = exchangeclient.NewPaperClient(exchangeclient.PaperConfig{InitialBalanceUSDC: 1000, FeeBps: 0, SlippageBps: 10})
	}

	chainReader := dataAdapter
	copyRepo := newCopyRepository(db)
	copyEngine := copytrading.NewEngine(cfg.Copy, copyRepo, exClient, chainReader, log)
	leaderResolver := copytrading.NewLeaderResolver(dirs, dirs)

	sup := &Supervisor{
		cfg: cfg, log: log.With("component", "supervisor"), db: db, store: store,
		poller: p, streamer: s, bridge: b, publisher: pub, watchedCtrl: watchedCtrl,
		copyRepo: copyRepo, copyEngine: copyEngine, tradingMode: tradingMode,
	}

	if db != nil {
		smartRepo := smartwallet.NewGormRepository(db)
		marketResolver := newStoreMarketResolver(store)
		sup.ingestor = smartwallet.NewIngestor(cfg.Smart, smartRepo, smartRepo, marketResolver, log)
		watchedCtrl.SetSmartActivitySource(newSmartActivityAdapter(smartRepo))
		shareFanout := smartwallet.NewShareFanout(smartRepo, cfg.Smart.ShareableMinValue, cfg.Smart.ShareableMaxAge)
		sup.copyFeed = NewCopyFeed(cfg.Smart.SyncInterval, smartRepo, leaderResolver, copyEngine, shareFanout, store, pub, notifier, log)
	} else {
		log.Warn("supervisor: SKIP_DB set, smart-wallet ingestion and copy-trade dispatch disabled")
	}

	tpslRepo := newTPSLRepository(db)
	sup.tpslMonitor = tpsl.NewMonitor(cfg.TPSL, tpslRepo, store, chainReader, exClient, notifier, log)

	return sup, nil
}

func newMarketStore(db *gorm.DB) *marketstore.Store {
	if db == nil {
		return marketstore.NewStore(marketstore.NewMemoryRepository(), nil)
	}
	return marketstore.NewStore(marketstore.NewGormRepository(db), nil)
}

func newAccountsDirectory(db *gorm.DB) accounts.Directory {
	if db == nil {
		return accounts.NewMemoryDirectory()
	}
	return accounts.NewGormDirectory(db)
}

func newWatchedRepository(db *gorm.DB) watched.Repository {
	if db == nil {
		return watched.NewMemoryRepository()
	}
	return watched.NewGormRepository(db)
}

func newCopyRepository(db *gorm.DB) copytrading.Repository {
	if db == nil {
		return copytrading.NewMemoryRepository()
	}
	return copytrading.NewGormRepository(db)
}

func newTPSLRepository(db *gorm.DB) tpsl.Repository {
	if db == nil {
		return tpsl.NewMemoryRepository()
	}
	return tpsl.NewGormRepository(db)
}

// Run launches every supervised task and blocks until ctx is cancelled or
// one task returns a non-context error. On cancellation it waits up to
// shutdownGrace for every task to unwind before returning.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setRunning(true)
	defer s.setRunning(false)

	tasks := []supervisedTask{
		{"poller", s.poller.Run},
		{"streamer", s.streamer.Run},
		{"bridge", s.bridge.Run},
		{"watched", s.watchedCtrl.Run},
		{"tpsl", s.tpslMonitor.Run},
	}
	if s.ingestor != nil {
		tasks = append(tasks, supervisedTask{"smartwallet", s.runSmartWalletPoll})
	}
	if s.copyFeed != nil {
		tasks = append(tasks, supervisedTask{"copyfeed", s.copyFeed.Run})
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(tasks))
	for _, t := range tasks {
		t := t
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := t.run(runCtx); err != nil && err != context.Canceled {
				s.log.Error("supervisor: task exited", "task", t.name, "err", err)
				errCh <- err
				cancel()
			}
		}()
	}

	<-runCtx.Done() // ctx cancelled, or a task failed and called cancel
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		s.log.Warn("supervisor: shutdown grace period exceeded, some tasks may not have unwound cleanly")
	}

	select {
	case err := <-errCh:
		return err
	default:
		return ctx.Err()
	}
}

func (s *Supervisor) runSmartWalletPoll(ctx context.Context) error {
	interval := s.cfg.Smart.SyncInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, _, err := s.ingestor.PollBackfill(ctx); err != nil {
				s.log.Warn("supervisor: smart-wallet poll failed", "err", err)
			}
		}
	}
}

func (s *Supervisor) setRunning(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = v
}

func (s *Supervisor) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Supervisor) TradingMode() string { return s.tradingMode }

// ComponentHealth reports a coarse status string per supervised
// component, for the API layer's /api/status endpoint.
func (s *Supervisor) ComponentHealth() map[string]string {
	health := map[string]string{
		"streamer": string(s.streamer.State()),
	}
	t := s.bridge.Tally()
	if t.Errors > 0 && t.Successes == 0 {
		health["bridge"] = "degraded"
	} else {
		health["bridge"] = "ok"
	}
	health["watched"] = "ok"
	health["tpsl"] = "ok"
	if s.ingestor != nil {
		health["smartwallet"] = "ok"
	} else {
		health["smartwallet"] = "disabled"
	}
	return health
}

// Bridge, Watched, and CopyRepo expose the collaborators the API server
// depends on.
func (s *Supervisor) Bridge() *bridge.Bridge          { return s.bridge }
func (s *Supervisor) Watched() *watched.Controller    { return s.watchedCtrl }
func (s *Supervisor) CopyRepo() copytrading.Repository { return s.copyRepo }
