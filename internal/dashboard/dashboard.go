package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dca-console/internal/drafts"
	"dca-console/internal/gateway"
	"dca-console/internal/journal"
	"dca-console/internal/metrics"
	"dca-console/internal/network"
	"dca-console/internal/notify"
	"dca-console/internal/state"
	"dca-console/internal/strategy"
)

const maxSubmissions = 256

// Backend is the protocol gateway of one network together with the hook
// that executes what it builds.
type Backend interface {
	gateway.Gateway
	gateway.Transactor
}

type Journal interface {
	Enqueue(journal.Entry)
}

type Session struct {
	Account string       `json:"account"`
	Network network.Type `json:"network"`
}

type Options struct {
	// Backends and Explorers are keyed by protocol environment, mainnet or
	// testnet.
	Backends  map[network.Type]Backend
	Explorers map[network.Type]string
	Drafts    *drafts.Store
	// Store enables draft persistence per account when set.
	Store            state.Store
	Notifier         notify.Notifier
	Metrics          *metrics.Metrics
	Journal          Journal
	WhitelistRetries int
	// OnSessionChange runs after every session switch, before the refresh.
	OnSessionChange func(ctx context.Context, s Session)
	Log             *zap.Logger
	Now             func() time.Time
}

// generations guard refresh results. A result is applied only when no
// session change and no newer fetch of the same kind started after it.
type generations struct {
	session   uint64
	whitelist uint64
	orders    uint64
}

type Dashboard struct {
	backends  map[network.Type]Backend
	explorers map[network.Type]string
	drafts    *drafts.Store
	store     state.Store
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	journal   Journal
	retries   int
	onSession func(context.Context, Session)
	log       *zap.Logger
	now       func() time.Time
	newID     func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu               sync.Mutex
	session          Session
	gen              generations
	refreshing       int
	err              string
	whitelistWarning string
	whitelist        gateway.CoinWhitelist
	orders           []gateway.Order
	submissions      map[string]*Submission
	submissionOrder  []string
}

func New(opts Options) *Dashboard {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Drafts == nil {
		opts.Drafts = drafts.New(strategy.DefaultFields())
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.NewLog(log)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dashboard{
		backends:    opts.Backends,
		explorers:   opts.Explorers,
		drafts:      opts.Drafts,
		store:       opts.Store,
		notifier:    opts.Notifier,
		metrics:     opts.Metrics,
		journal:     opts.Journal,
		retries:     opts.WhitelistRetries,
		onSession:   opts.OnSessionChange,
		log:         log,
		now:         opts.Now,
		newID:       uuid.NewString,
		ctx:         ctx,
		cancel:      cancel,
		submissions: make(map[string]*Submission),
	}
}

// Close aborts in-flight executions and waits for them to settle.
func (d *Dashboard) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dashboard) Session() Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.session
}

// SetSession switches the connected account or network. Data of the old
// session is discarded and, when the new one is usable, a refresh runs.
func (d *Dashboard) SetSession(ctx context.Context, s Session) error {
	account := strings.TrimSpace(s.Account)
	if account != "" {
		normalized, err := network.NormalizeAddress(account)
		if err != nil {
			return err
		}
		account = normalized
	}
	s.Account = account
	s.Network = network.Parse(string(s.Network))

	d.mu.Lock()
	prev := d.session
	if prev == s {
		d.mu.Unlock()
		return nil
	}
	d.session = s
	d.gen.session++
	d.err = ""
	d.whitelistWarning = ""
	d.whitelist = gateway.CoinWhitelist{}
	d.orders = nil
	d.mu.Unlock()

	if prev.Account != s.Account && d.store != nil {
		d.restoreDrafts(ctx, s.Account)
	}
	if d.onSession != nil {
		d.onSession(ctx, s)
	}
	if s.Account == "" || !s.Network.Supported() {
		return nil
	}
	return d.Refresh(ctx)
}

func (d *Dashboard) restoreDrafts(ctx context.Context, account string) {
	d.drafts.Reset()
	if account == "" {
		return
	}
	if _, err := d.drafts.Restore(ctx, d.store, account); err != nil {
		d.log.Warn("restore drafts failed", zap.String("account", account), zap.Error(err))
	}
}

// backendLocked resolves the gateway for the current session. d.mu must be
// held.
func (d *Dashboard) backendLocked() (Backend, error) {
	if d.session.Account == "" {
		return nil, ErrNoAccount
	}
	if !d.session.Network.Supported() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, d.session.Network)
	}
	backend, ok := d.backends[d.session.Network.Env()]
	if !ok || backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoBackend, d.session.Network)
	}
	return backend, nil
}

func (d *Dashboard) activeBackend() (Session, Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	backend, err := d.backendLocked()
	return d.session, backend, err
}

// Refresh reloads the coin whitelist and then the orders. Gateway failures
// end up in the view, not in the returned error, which only reports that no
// refresh could be started.
func (d *Dashboard) Refresh(ctx context.Context) error {
	d.mu.Lock()
	backend, err := d.backendLocked()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	sess := d.session
	d.gen.whitelist++
	d.gen.orders++
	gen := d.gen
	d.refreshing++
	d.err = ""
	d.whitelistWarning = ""
	d.mu.Unlock()
	d.metrics.Refresh.Inc()

	list, wlErr := backend.CoinWhitelist(ctx, d.retries)
	orders, ordErr := backend.Orders(ctx, sess.Account)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.refreshing--
	if gen.session != d.gen.session {
		d.dropStale("refresh", sess)
		return nil
	}
	if gen.whitelist == d.gen.whitelist {
		d.applyWhitelistLocked(list, wlErr)
	} else {
		d.dropStale("whitelist", sess)
	}
	if gen.orders == d.gen.orders {
		d.applyOrdersLocked(orders, ordErr)
	} else {
		d.dropStale("orders", sess)
	}
	return nil
}

// RefreshOrders reloads only the order list.
func (d *Dashboard) RefreshOrders(ctx context.Context) error {
	d.mu.Lock()
	backend, err := d.backendLocked()
	if err != nil {
		d.mu.Unlock()
		return err
	}
	sess := d.session
	d.gen.orders++
	gen := d.gen
	d.mu.Unlock()

	orders, ordErr := backend.Orders(ctx, sess.Account)

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen.session != d.gen.session || gen.orders != d.gen.orders {
		d.dropStale("orders", sess)
		return nil
	}
	d.applyOrdersLocked(orders, ordErr)
	return nil
}

func (d *Dashboard) dropStale(what string, sess Session) {
	d.metrics.StaleRefreshDropped.Inc()
	d.log.Debug("dropping stale result", zap.String("kind", what), zap.String("account", sess.Account), zap.String("network", string(sess.Network)))
}

func (d *Dashboard) applyWhitelistLocked(list gateway.CoinWhitelist, err error) {
	if err != nil {
		d.whitelistWarning = FormatError(err)
		d.metrics.WhitelistFallback.Inc()
		d.log.Warn("coin whitelist unavailable, falling back to free text", zap.Error(err))
		return
	}
	if list.In == nil {
		list.In = []string{}
	}
	if list.Out == nil {
		list.Out = []string{}
	}
	d.whitelist = list
	d.drafts.Update(func(f *strategy.Fields) { selectFromWhitelist(list, f) })
}

func (d *Dashboard) applyOrdersLocked(orders []gateway.Order, err error) {
	err = gateway.ClassifyOrdersError(err)
	switch {
	case err == nil:
		if orders == nil {
			orders = []gateway.Order{}
		}
		d.orders = orders
		d.err = ""
	case errors.Is(err, gateway.ErrNoOrders):
		d.orders = []gateway.Order{}
		d.err = ""
	default:
		d.err = FormatError(err)
		d.metrics.RefreshFailed.Inc()
		d.log.Warn("load orders failed", zap.Error(err))
	}
}

// selectFromWhitelist moves a coin that the non-empty whitelist does not
// offer onto the first entry of that list.
func selectFromWhitelist(list gateway.CoinWhitelist, f *strategy.Fields) {
	if len(list.In) > 0 && !contains(list.In, f.InCoinType) {
		f.InCoinType = list.In[0]
	}
	if len(list.Out) > 0 && !contains(list.Out, f.OutCoinType) {
		f.OutCoinType = list.Out[0]
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (d *Dashboard) currentWhitelist() gateway.CoinWhitelist {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.whitelist
}

func (d *Dashboard) Form() strategy.Fields {
	return d.drafts.Fields()
}

func (d *Dashboard) UpdateForm(f strategy.Fields) strategy.Fields {
	list := d.currentWhitelist()
	return d.drafts.Update(func(cur *strategy.Fields) {
		*cur = f
		selectFromWhitelist(list, cur)
	})
}

func (d *Dashboard) Drafts() []strategy.Draft {
	return d.drafts.List()
}

func (d *Dashboard) SaveDraft(ctx context.Context) strategy.Draft {
	draft := d.drafts.Save()
	d.metrics.DraftsSaved.Inc()
	d.persistDrafts(ctx)
	return draft
}

func (d *Dashboard) LoadDraft(id string) (strategy.Fields, error) {
	if _, err := d.drafts.LoadByID(id); err != nil {
		return strategy.Fields{}, err
	}
	list := d.currentWhitelist()
	return d.drafts.Update(func(f *strategy.Fields) { selectFromWhitelist(list, f) }), nil
}

func (d *Dashboard) DeleteDraft(ctx context.Context, id string) bool {
	removed := d.drafts.Delete(id)
	if removed {
		d.persistDrafts(ctx)
	}
	return removed
}

func (d *Dashboard) ApplyTemplate(id string) (strategy.Fields, error) {
	tpl, err := strategy.TemplateByID(id)
	if err != nil {
		return strategy.Fields{}, err
	}
	return d.drafts.ApplyTemplate(tpl), nil
}

func (d *Dashboard) persistDrafts(ctx context.Context) {
	if d.store == nil {
		return
	}
	account := d.Session().Account
	if account == "" {
		return
	}
	if err := d.drafts.Persist(ctx, d.store, account); err != nil {
		d.log.Warn("persist drafts failed", zap.String("account", account), zap.Error(err))
	}
}

// Estimate charts the live form.
func (d *Dashboard) Estimate() (strategy.ChartData, error) {
	f := d.drafts.Fields()
	return Chart(f.TotalInAmount, f.CycleCount, f.PerCycleMinOutAmount, f.PerCycleMaxOutAmount)
}

func (d *Dashboard) findOrder(id string) (gateway.Order, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.orders {
		if o.ID == id {
			return o, true
		}
	}
	return gateway.Order{}, false
}

// CreateOrder submits the live form as a new order. It fails without
// contacting the gateway when the form is not submittable.
func (d *Dashboard) CreateOrder(ctx context.Context) (*Submission, error) {
	sess, backend, err := d.activeBackend()
	if err != nil {
		return nil, err
	}
	req, err := strategy.BuildOpenOrderRequest(d.drafts.Fields(), d.now())
	if err != nil {
		return nil, err
	}
	return d.submit(ctx, sess, backend, gateway.TxOpen, "", func(ctx context.Context) (gateway.TxPayload, error) {
		return backend.BuildOpenOrder(ctx, req)
	}), nil
}

func (d *Dashboard) Withdraw(ctx context.Context, orderID string) (*Submission, error) {
	sess, backend, err := d.activeBackend()
	if err != nil {
		return nil, err
	}
	order, ok := d.findOrder(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return d.submit(ctx, sess, backend, gateway.TxWithdraw, order.ID, func(ctx context.Context) (gateway.TxPayload, error) {
		return backend.BuildWithdraw(ctx, order.Ref())
	}), nil
}

func (d *Dashboard) CloseOrder(ctx context.Context, orderID string) (*Submission, error) {
	sess, backend, err := d.activeBackend()
	if err != nil {
		return nil, err
	}
	order, ok := d.findOrder(orderID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return d.submit(ctx, sess, backend, gateway.TxClose, order.ID, func(ctx context.Context) (gateway.TxPayload, error) {
		return backend.BuildCloseOrders(ctx, []gateway.OrderRef{order.Ref()})
	}), nil
}

func (d *Dashboard) Submission(id string) (*Submission, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sub, ok := d.submissions[id]
	return sub, ok
}

var loadingMessages = map[gateway.TxKind]string{
	gateway.TxOpen:     "Opening DCA order",
	gateway.TxWithdraw: "Withdrawing from DCA order",
	gateway.TxClose:    "Closing DCA order",
}

// submit builds the payload inline and executes it in the background. The
// returned submission may already have failed if the build did.
func (d *Dashboard) submit(ctx context.Context, sess Session, backend Backend, kind gateway.TxKind, orderID string, build func(context.Context) (gateway.TxPayload, error)) *Submission {
	sub := newSubmission(d.newID(), kind, orderID, d.now())
	d.track(sub)
	d.metrics.OrdersSubmitted.Inc()
	d.record(sess, sub)
	handle := d.notifier.Loading(ctx, loadingMessages[kind])

	tx, err := build(ctx)
	if err != nil {
		d.failSubmission(ctx, sess, sub, handle, err)
		return sub
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		digest, err := backend.Execute(d.ctx, sess.Account, tx)
		if err != nil {
			d.failSubmission(d.ctx, sess, sub, handle, err)
			return
		}
		url := network.TransactionURL(d.explorers[sess.Network.Env()], digest)
		sub.succeed(digest, url, d.now())
		d.metrics.OrdersSucceeded.Inc()
		d.record(sess, sub)
		d.notifier.Success(d.ctx, url, handle)
		if err := d.RefreshOrders(d.ctx); err != nil {
			d.log.Debug("post-submission refresh skipped", zap.Error(err))
		}
	}()
	return sub
}

func (d *Dashboard) failSubmission(ctx context.Context, sess Session, sub *Submission, handle notify.Handle, err error) {
	sub.fail(err, d.now())
	d.metrics.OrdersFailed.Inc()
	d.record(sess, sub)
	d.notifier.Error(ctx, err, handle)
	d.log.Warn("transaction failed", zap.String("submission_id", sub.ID()), zap.String("kind", string(sub.Outcome().Kind)), zap.Error(err))
}

func (d *Dashboard) track(sub *Submission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submissions[sub.ID()] = sub
	d.submissionOrder = append(d.submissionOrder, sub.ID())
	for len(d.submissionOrder) > maxSubmissions {
		oldest := d.submissions[d.submissionOrder[0]]
		select {
		case <-oldest.Done():
		default:
			return
		}
		delete(d.submissions, d.submissionOrder[0])
		d.submissionOrder = d.submissionOrder[1:]
	}
}

func (d *Dashboard) record(sess Session, sub *Submission) {
	if d.journal == nil {
		return
	}
	o := sub.Outcome()
	d.journal.Enqueue(journal.Entry{
		Time:         d.now().UTC(),
		SubmissionID: o.ID,
		Account:      sess.Account,
		Network:      string(sess.Network),
		Kind:         string(o.Kind),
		Status:       string(o.State),
		OrderID:      o.OrderID,
		Digest:       o.Digest,
		Error:        o.Error,
	})
}
