package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymarket-pulse/trader/internal/bridge"
)

type fakeSupervisor struct {
	running bool
	mode    string
}

func (f *fakeSupervisor) IsRunning() bool       { return f.running }
func (f *fakeSupervisor) TradingMode() string   { return f.mode }
func (f *fakeSupervisor) ComponentHealth() map[string]string {
	return map[string]string{"poller": "ok"}
}

type fakeBridge struct{ tally bridge.Tally }

func (f *fakeBridge) Tally() bridge.Tally { return f.tally }

type fakeWatched struct{ markets []string }

func (f *fakeWatched) DesiredMarkets() []string { return f.markets }

type fakeCopy struct{ count int }

func (f *fakeCopy) CountActive(ctx context.Context) (int, error) { return f.count, nil }

func newTestServer() (*Server, *fakeSupervisor) {
	sup := &fakeSupervisor{running: true, mode: "live"}
	s := NewServer(":0", sup, &fakeBridge{tally: bridge.Tally{Messages: 5, Successes: 4, Errors: 1}},
		&fakeWatched{markets: []string{"m1", "m2"}}, &fakeCopy{count: 3})
	return s, sup
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleReadyNotRunning(t *testing.T) {
	s, sup := newTestServer()
	sup.running = false
	req := httptest.NewRequest(http.MethodGet, "/api/ready", nil)
	rec := httptest.NewRecorder()
	s.handleReady(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleBridge(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/bridge", nil)
	rec := httptest.NewRecorder()
	s.handleBridge(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(5), body["messages"])
}

func TestHandleWatched(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/watched", nil)
	rec := httptest.NewRecorder()
	s.handleWatched(rec, req)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(2), body["count"])
}

func TestHandleCopyTrading(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/copy-trading", nil)
	rec := httptest.NewRecorder()
	s.handleCopyTrading(rec, req)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, float64(3), body["active_followers"])
}
