package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"dca-console/internal/api"
	"dca-console/internal/config"
	"dca-console/internal/dashboard"
	"dca-console/internal/drafts"
	"dca-console/internal/gateway"
	"dca-console/internal/journal"
	"dca-console/internal/metrics"
	"dca-console/internal/network"
	"dca-console/internal/notify"
	"dca-console/internal/state"
	"dca-console/internal/state/redis"
	"dca-console/internal/state/sqlite"
	"dca-console/internal/strategy"
)

const storeConnectTimeout = 5 * time.Second

type App struct {
	cfg     *config.Config
	log     *zap.Logger
	store   state.Store
	journal *journal.Writer
	stream  *gateway.Stream
	cron    *cron.Cron
	dash    *dashboard.Dashboard
	server  *api.Server

	mu  sync.Mutex
	ctx context.Context
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, ctx: context.Background()}

	store, err := newDraftStore(cfg.Drafts)
	if err != nil {
		return nil, fmt.Errorf("draft store: %w", err)
	}
	a.store = store

	writer, err := journal.New(cfg.Journal, log.Named("journal"))
	if err != nil {
		a.closeStore()
		return nil, fmt.Errorf("journal: %w", err)
	}
	a.journal = writer

	m := metrics.NewNoop()
	var metricsHandler http.Handler
	if cfg.Metrics.EnabledValue() {
		prom := metrics.NewPrometheus()
		m = prom.Metrics
		metricsHandler = prom.Handler()
	}

	sinks := []notify.Notifier{notify.NewLog(log.Named("notify"))}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, notify.NewTelegram(cfg.Telegram, log.Named("telegram")))
	}

	if url := strings.TrimSpace(cfg.Gateway.StreamURL); url != "" {
		a.stream = gateway.NewStream(url, cfg.Gateway.ReconnectDelay, cfg.Gateway.PingInterval, log.Named("stream"))
	}

	opts := dashboard.Options{
		Backends:         backends(cfg.Gateway, log.Named("gateway")),
		Explorers:        explorers(cfg.Network),
		Drafts:           drafts.New(formDefaults(cfg.Form)),
		Store:            store,
		Notifier:         notify.NewMulti(sinks...),
		Metrics:          m,
		WhitelistRetries: cfg.Gateway.WhitelistRetries,
		OnSessionChange:  a.followSession,
		Log:              log.Named("dashboard"),
	}
	if writer != nil {
		opts.Journal = writer
	}
	a.dash = dashboard.New(opts)

	if schedule := strings.TrimSpace(cfg.Refresh.Schedule); schedule != "" {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(schedule, a.scheduledRefresh); err != nil {
			a.Close()
			return nil, fmt.Errorf("refresh schedule %q: %w", schedule, err)
		}
	}

	a.server = api.New(a.dash, api.Options{
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		Log:            log.Named("api"),
	})
	return a, nil
}

// Handler exposes the HTTP API without starting a listener.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	a.journal.Start(ctx)
	if a.cron != nil {
		a.cron.Start()
		defer func() {
			<-a.cron.Stop().Done()
		}()
		a.log.Info("scheduled refresh enabled", zap.String("schedule", a.cfg.Refresh.Schedule))
	}

	var wg sync.WaitGroup
	if a.stream != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.stream.Run(ctx, a.handleOrderEvent); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("order stream stopped", zap.Error(err))
			}
		}()
	}

	err := a.server.Run(ctx, a.cfg.HTTP.Address)
	wg.Wait()
	return err
}

// Close releases everything New acquired. It is safe to call more than once.
func (a *App) Close() {
	if a.dash != nil {
		a.dash.Close()
	}
	if a.stream != nil {
		_ = a.stream.Close()
	}
	if err := a.journal.Close(); err != nil {
		a.log.Warn("journal close failed", zap.Error(err))
	}
	a.closeStore()
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("draft store close failed", zap.Error(err))
	}
	a.store = nil
}

func (a *App) runContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

func (a *App) scheduledRefresh() {
	err := a.dash.Refresh(a.runContext())
	switch {
	case err == nil:
	case errors.Is(err, dashboard.ErrNoAccount), errors.Is(err, dashboard.ErrUnsupportedNetwork):
		a.log.Debug("scheduled refresh skipped", zap.Error(err))
	default:
		a.log.Warn("scheduled refresh failed", zap.Error(err))
	}
}

// followSession points the order stream at the connected account.
func (a *App) followSession(ctx context.Context, s dashboard.Session) {
	if a.stream == nil {
		return
	}
	account := s.Account
	if !s.Network.Supported() {
		account = ""
	}
	if err := a.stream.Follow(ctx, account); err != nil {
		a.log.Warn("order stream follow failed", zap.String("account", account), zap.Error(err))
	}
}

func (a *App) handleOrderEvent(ev gateway.OrderEvent) {
	account, err := network.NormalizeAddress(ev.Account)
	if err != nil || account != a.dash.Session().Account {
		return
	}
	a.log.Debug("order event", zap.String("type", ev.Type), zap.String("order_id", ev.OrderID), zap.String("status", ev.Status))
	if err := a.dash.RefreshOrders(a.runContext()); err != nil {
		a.log.Debug("event refresh skipped", zap.Error(err))
	}
}

func backends(cfg config.GatewayConfig, log *zap.Logger) map[network.Type]dashboard.Backend {
	apiKey := cfg.APIKey()
	out := make(map[network.Type]dashboard.Backend, 2)
	for _, net := range []network.Type{network.Mainnet, network.Testnet} {
		url := strings.TrimSpace(cfg.URLFor(string(net)))
		if url == "" {
			continue
		}
		out[net] = gateway.New(url, apiKey, cfg.Timeout, log.With(zap.String("network", string(net))))
	}
	return out
}

func explorers(cfg config.NetworkConfig) map[network.Type]string {
	return map[network.Type]string{
		network.Mainnet: cfg.ExplorerFor(string(network.Mainnet)),
		network.Testnet: cfg.ExplorerFor(string(network.Testnet)),
	}
}

// formDefaults layers the configured overrides onto the built-in form.
func formDefaults(cfg config.FormConfig) strategy.Fields {
	f := strategy.DefaultFields()
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&f.Name, cfg.Name)
	set(&f.InCoinType, cfg.InCoinType)
	set(&f.TotalInAmount, cfg.TotalInAmount)
	set(&f.CycleCount, cfg.CycleCount)
	set(&f.CycleFrequency, cfg.CycleFrequency)
	return f
}

// newDraftStore opens the configured persistence backend, or returns nil
// when drafts only live in memory.
func newDraftStore(cfg config.DraftsConfig) (state.Store, error) {
	if !cfg.Persist {
		return nil, nil
	}
	switch cfg.Backend {
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
		defer cancel()
		store, err := redis.New(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "", "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		store, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown drafts backend %q", cfg.Backend)
}
