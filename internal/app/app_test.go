package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"dca-console/internal/config"
	"dca-console/internal/dashboard"
	"dca-console/internal/gateway"
	"dca-console/internal/network"
)

const testAccount = "0x00000000000000000000000000000000000000000000000000000000000000aa"

type fakeGateway struct {
	server      *httptest.Server
	ordersCalls atomic.Int32
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/dca/whitelist", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(gateway.CoinWhitelist{In: []string{"0x2::sui::SUI"}, Out: []string{"0x5::usdc::USDC"}})
	})
	mux.HandleFunc("/v1/dca/orders", func(w http.ResponseWriter, r *http.Request) {
		g.ordersCalls.Add(1)
		_, _ = io.WriteString(w, `{"data":[{"id":"0xorder","status":"open"}]}`)
	})
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

func writeConfig(t *testing.T, body string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func newTestApp(t *testing.T, g *fakeGateway, extra string) *App {
	t.Helper()
	cfg := writeConfig(t, "gateway:\n  mainnet_url: "+g.server.URL+"\n  testnet_url: "+g.server.URL+"\n"+extra)
	a, err := New(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestFormDefaults(t *testing.T) {
	f := formDefaults(config.FormConfig{CycleCount: " 12 ", Name: "   "})
	if f.CycleCount != "12" {
		t.Fatalf("expected configured cycle count, got %q", f.CycleCount)
	}
	if f.Name != "DCA Strategy" || f.TotalInAmount != "1000000000" {
		t.Fatalf("expected built-in defaults kept, got %#v", f)
	}
}

func TestNewDraftStoreDisabled(t *testing.T) {
	store, err := newDraftStore(config.DraftsConfig{Persist: false, Backend: "redis"})
	if err != nil || store != nil {
		t.Fatalf("expected no store when persistence is off, got %v %v", store, err)
	}
}

func TestNewDraftStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "drafts.db")
	store, err := newDraftStore(config.DraftsConfig{Persist: true, Backend: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("sqlite store: %v", err)
	}
	defer store.Close()
	ctx := context.Background()
	if err := store.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected database file: %v", err)
	}
}

func TestNewDraftStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := newDraftStore(config.DraftsConfig{Persist: true, Backend: "redis", Redis: config.RedisConfig{Addr: mr.Addr()}})
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	defer store.Close()
	if err := store.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("dca-console:k") {
		t.Fatalf("expected prefixed key in redis, got %v", mr.Keys())
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	g := newFakeGateway(t)
	cfg := writeConfig(t, "gateway:\n  mainnet_url: "+g.server.URL+"\nrefresh:\n  schedule: \"every so often\"\n")
	if _, err := New(cfg, zap.NewNop()); err == nil || !strings.Contains(err.Error(), "refresh schedule") {
		t.Fatalf("expected schedule error, got %v", err)
	}
}

func TestAppServesAPI(t *testing.T) {
	g := newFakeGateway(t)
	a := newTestApp(t, g, "")
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/v1/session", strings.NewReader(`{"account":"`+testAccount+`","network":"mainnet"}`))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("put session: %v", err)
	}
	defer resp.Body.Close()
	var view dashboard.View
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.Status != dashboard.StatusReady || len(view.Orders) != 1 {
		t.Fatalf("unexpected view %s %#v", view.Status, view.Orders)
	}
	if view.Form.OutCoinType != "0x5::usdc::USDC" {
		t.Fatalf("expected whitelist auto-selection, got %q", view.Form.OutCoinType)
	}

	metricsResp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	body, _ := io.ReadAll(metricsResp.Body)
	if !strings.Contains(string(body), "dca_console_refresh_total 1") {
		t.Fatalf("expected refresh counter in metrics output")
	}
}

func TestMetricsDisabled(t *testing.T) {
	g := newFakeGateway(t)
	a := newTestApp(t, g, "metrics:\n  enabled: false\n")
	srv := httptest.NewServer(a.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestOrderEventRefreshesSessionOrders(t *testing.T) {
	g := newFakeGateway(t)
	a := newTestApp(t, g, "")
	if err := a.dash.SetSession(context.Background(), dashboard.Session{Account: testAccount, Network: network.Mainnet}); err != nil {
		t.Fatalf("set session: %v", err)
	}
	before := g.ordersCalls.Load()

	a.handleOrderEvent(gateway.OrderEvent{Type: "order_updated", Account: "0xbb"})
	if got := g.ordersCalls.Load(); got != before {
		t.Fatalf("expected events for other accounts ignored, got %d calls", got-before)
	}
	a.handleOrderEvent(gateway.OrderEvent{Type: "order_updated", Account: "0xAA"})
	if got := g.ordersCalls.Load(); got != before+1 {
		t.Fatalf("expected one orders refresh, got %d", got-before)
	}
}

func TestScheduledRefresh(t *testing.T) {
	g := newFakeGateway(t)
	a := newTestApp(t, g, "refresh:\n  schedule: \"@every 1h\"\n")
	a.scheduledRefresh()
	if got := g.ordersCalls.Load(); got != 0 {
		t.Fatalf("expected no gateway calls without a session, got %d", got)
	}
	if err := a.dash.SetSession(context.Background(), dashboard.Session{Account: testAccount, Network: network.Testnet}); err != nil {
		t.Fatalf("set session: %v", err)
	}
	a.scheduledRefresh()
	if got := g.ordersCalls.Load(); got != 2 {
		t.Fatalf("expected session and scheduled refresh, got %d calls", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	g := newFakeGateway(t)
	a := newTestApp(t, g, "http:\n  address: 127.0.0.1:0\n")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected clean shutdown, got %v", err)
	}
}
