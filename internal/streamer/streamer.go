// Package streamer holds the single live WebSocket session to the
// exchange's CLOB market channel: a dynamic subscription set driven by
// positions of interest, snapshot/delta/trade frame parsing, and
// reconnection with exponential backoff and jitter, modeled as an
// explicit connection state machine.
package streamer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polymarket-pulse/trader/internal/config"
	"github.com/polymarket-pulse/trader/internal/errs"
	"github.com/polymarket-pulse/trader/internal/marketstore"
	"github.com/polymarket-pulse/trader/internal/retry"
)

// State is one node of the connection state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribing  State = "subscribing"
	StateStreaming    State = "streaming"
)

const maxConsecutiveFailures = 5

// SubscriptionSource supplies the desired subscription set, written by the
// Watched-Markets Controller.
type SubscriptionSource interface {
	DesiredMarkets() []string
}

// inboundFrame is the wire shape of a CLOB market-channel message.
type inboundFrame struct {
	Type   string       `json:"type"`
	Market string       `json:"market"`
	Bids   [][2]float64 `json:"bids,omitempty"`
	Asks   [][2]float64 `json:"asks,omitempty"`
	Price  float64      `json:"price,omitempty"`
}

type outboundFrame struct {
	Type   string `json:"type"`
	Market string `json:"market"`
}

// Streamer owns one live WS connection and the dynamic subscription set.
type Streamer struct {
	url     string
	cfg     config.WatchedConfig
	store   *marketstore.Store
	source  SubscriptionSource
	log     *slog.Logger
	dialer  *websocket.Dialer

	mu          sync.Mutex
	state       State
	subscribed  map[string]bool
}

func New(cfg config.CLOBConfig, watchedCfg config.WatchedConfig, store *marketstore.Store, source SubscriptionSource, log *slog.Logger) *Streamer {
	if log == nil {
		log = slog.Default()
	}
	return &Streamer{
		url:        cfg.WSSURL,
		cfg:        watchedCfg,
		store:      store,
		source:     source,
		log:        log.With("component", "streamer"),
		dialer:     websocket.DefaultDialer,
		state:      StateDisconnected,
		subscribed: make(map[string]bool),
	}
}

func (s *Streamer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Streamer) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run drives the state machine until ctx is cancelled. It returns a Fatal
// classified error after maxConsecutiveFailures consecutive failed
// connects, for the supervisor to decide on a restart policy.
func (s *Streamer) Run(ctx context.Context) error {
	backoff := retry.New(s.cfg.WSReconnectBackoffMin, s.cfg.WSReconnectBackoffMax, 0.1)
	failedConnects := 0

	for {
		select {
		case <-ctx.Done():
			s.setState(StateDisconnected)
			return ctx.Err()
		default:
		}

		if err := s.connectAndStream(ctx); err != nil {
			if s.State() == StateStreaming {
				failedConnects = 0 // the connect succeeded; the stream dropped later
				backoff.Reset()
			} else {
				failedConnects++
			}
			s.setState(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("streamer disconnected", "err", err)
			if failedConnects >= maxConsecutiveFailures {
				return errs.New(errs.Fatal, "streamer.Run", fmt.Errorf("exceeded %d consecutive connect failures: %w", maxConsecutiveFailures, err))
			}
			if err := backoff.Sleep(ctx); err != nil {
				return err
			}
			continue
		}
		backoff.Reset()
	}
}

func (s *Streamer) connectAndStream(ctx context.Context) error {
	s.setState(StateConnecting)
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return errs.New(errs.UpstreamUnavailable, "streamer.connect", err)
	}
	defer conn.Close()

	s.setState(StateSubscribing)
	s.mu.Lock()
	s.subscribed = make(map[string]bool)
	s.mu.Unlock()
	if err := s.subscribeAll(conn, s.source.DesiredMarkets()); err != nil {
		return err
	}

	s.setState(StateStreaming)
	refreshTicker := time.NewTicker(5 * time.Second)
	defer refreshTicker.Stop()

	done := make(chan error, 1)
	go func() { done <- s.readLoop(conn) }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-done:
			return err
		case <-refreshTicker.C:
			if err := s.refreshSubscriptions(conn); err != nil {
				return err
			}
		}
	}
}

func (s *Streamer) subscribeAll(conn *websocket.Conn, markets []string) error {
	for _, m := range markets {
		if err := s.subscribe(conn, m); err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond) // small pacing between subscribe sends
	}
	return nil
}

func (s *Streamer) subscribe(conn *websocket.Conn, market string) error {
	s.mu.Lock()
	if len(s.subscribed) >= s.cfg.WSMaxSubscriptions {
		s.mu.Unlock()
		return nil
	}
	s.subscribed[market] = true
	s.mu.Unlock()

	frame := outboundFrame{Type: "subscribe", Market: market}
	return conn.WriteJSON(frame)
}

// refreshSubscriptions diffs the desired set against subscribed, issuing
// subscribes for additions. Removals are forgotten: the exchange session
// drops them on next reconnect.
func (s *Streamer) refreshSubscriptions(conn *websocket.Conn) error {
	desired := s.source.DesiredMarkets()
	s.mu.Lock()
	var toAdd []string
	for _, m := range desired {
		if !s.subscribed[m] {
			toAdd = append(toAdd, m)
		}
	}
	s.mu.Unlock()
	for _, m := range toAdd {
		if err := s.subscribe(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Streamer) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return errs.New(errs.UpstreamUnavailable, "streamer.read", err)
		}
		s.handleFrame(data)
	}
}

func (s *Streamer) handleFrame(data []byte) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warn("streamer: unparsable frame", "err", err)
		return
	}
	switch f.Type {
	case "snapshot", "orderbook":
		bid, ask := topOf(f.Bids), topOf(f.Asks)
		s.store.SetLiveQuote(f.Market, bid, ask, marketstore.SourceWS)
	case "delta":
		var bidPtr, askPtr *float64
		if len(f.Bids) > 0 {
			b := topOf(f.Bids)
			bidPtr = &b
		}
		if len(f.Asks) > 0 {
			a := topOf(f.Asks)
			askPtr = &a
		}
		s.store.Quote.ApplyDelta(f.Market, bidPtr, askPtr, marketstore.SourceWS)
	case "trade":
		s.store.Quote.SetLastTradePrice(f.Market, f.Price, marketstore.SourceWS)
	default:
		s.log.Debug("streamer: unknown frame type", "type", f.Type)
	}
}

func topOf(levels [][2]float64) float64 {
	if len(levels) == 0 {
		return 0
	}
	return levels[0][0]
}
