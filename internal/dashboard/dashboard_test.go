package dashboard

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dca-console/internal/drafts"
	"dca-console/internal/gateway"
	"dca-console/internal/network"
	"dca-console/internal/strategy"
)

func newTestDashboard(t *testing.T, backend *fakeBackend, opts Options) (*Dashboard, *fakeNotifier) {
	t.Helper()
	notifier := &fakeNotifier{}
	opts.Backends = map[network.Type]Backend{network.Mainnet: backend, network.Testnet: backend}
	opts.Explorers = map[network.Type]string{network.Mainnet: "https://suiscan.xyz/mainnet", network.Testnet: "https://suiscan.xyz/testnet"}
	opts.Notifier = notifier
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Unix(1700000000, 0) }
	}
	d := New(opts)
	t.Cleanup(d.Close)
	return d, notifier
}

func connect(t *testing.T, d *Dashboard, net network.Type) {
	t.Helper()
	if err := d.SetSession(context.Background(), Session{Account: testAccount, Network: net}); err != nil {
		t.Fatalf("set session: %v", err)
	}
}

func TestViewWithoutAccount(t *testing.T) {
	d, _ := newTestDashboard(t, &fakeBackend{}, Options{})
	v := d.View()
	if v.Status != StatusConnect {
		t.Fatalf("expected %s, got %s", StatusConnect, v.Status)
	}
	if err := d.Refresh(context.Background()); !errors.Is(err, ErrNoAccount) {
		t.Fatalf("expected ErrNoAccount, got %v", err)
	}
}

func TestUnsupportedNetwork(t *testing.T) {
	backend := &fakeBackend{}
	d, _ := newTestDashboard(t, backend, Options{})
	connect(t, d, network.Devnet)
	v := d.View()
	if v.Status != StatusUnsupported || v.Message != network.UnsupportedMessage {
		t.Fatalf("unexpected view %s %q", v.Status, v.Message)
	}
	if backend.calls() != 0 {
		t.Fatalf("expected no gateway calls on unsupported network")
	}
	if _, err := d.CreateOrder(context.Background()); !errors.Is(err, ErrUnsupportedNetwork) {
		t.Fatalf("expected ErrUnsupportedNetwork, got %v", err)
	}
}

func TestSetSessionRejectsBadAddress(t *testing.T) {
	d, _ := newTestDashboard(t, &fakeBackend{}, Options{})
	err := d.SetSession(context.Background(), Session{Account: "0xnothex", Network: network.Mainnet})
	if !errors.Is(err, network.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestRefreshLoadsWhitelistAndOrders(t *testing.T) {
	backend := &fakeBackend{
		whitelist: gateway.CoinWhitelist{In: []string{"0x2::sui::SUI"}, Out: []string{testOutCoin, "0xcc::usdt::USDT"}},
		orders:    []gateway.Order{{ID: "0x1234567890abcdef", Status: "open", InCoinType: "0x2::sui::SUI", OutCoinType: testOutCoin}},
	}
	d, _ := newTestDashboard(t, backend, Options{})
	connect(t, d, network.Mainnet)

	v := d.View()
	if v.Status != StatusReady {
		t.Fatalf("expected ready, got %s (%s)", v.Status, v.Message)
	}
	if len(v.Orders) != 1 || v.Orders[0].ShortID != "0x1234...cdef" {
		t.Fatalf("unexpected orders %#v", v.Orders)
	}
	if v.InCoin.FreeText || len(v.OutCoin.Options) != 2 {
		t.Fatalf("expected whitelist pickers, got %#v %#v", v.InCoin, v.OutCoin)
	}
	// Coins not offered by the whitelist move to its first entry.
	if v.Form.InCoinType != "0x2::sui::SUI" || v.Form.OutCoinType != testOutCoin {
		t.Fatalf("expected auto-selected coins, got %q %q", v.Form.InCoinType, v.Form.OutCoinType)
	}
}

func TestWhitelistFailureIsWarning(t *testing.T) {
	backend := &fakeBackend{
		whitelistErr: errors.New("rpc timeout"),
		orders:       []gateway.Order{{ID: "0x1"}},
	}
	d, _ := newTestDashboard(t, backend, Options{})
	connect(t, d, network.Testnet)

	v := d.View()
	if v.Status != StatusReady {
		t.Fatalf("expected ready despite whitelist failure, got %s", v.Status)
	}
	if v.WhitelistWarning != "rpc timeout" {
		t.Fatalf("expected whitelist warning, got %q", v.WhitelistWarning)
	}
	if !v.InCoin.FreeText || !v.OutCoin.FreeText {
		t.Fatalf("expected free text coin entry")
	}
	if v.Form.InCoinType != strategy.DefaultInCoin {
		t.Fatalf("expected default in coin, got %q", v.Form.InCoinType)
	}
	if len(v.Orders) != 1 {
		t.Fatalf("expected orders to load after whitelist failure")
	}
}

func TestNoOrdersIsEmptyList(t *testing.T) {
	for _, ordersErr := range []error{gateway.ErrNoOrders, errors.New("TypeError: Cannot read properties of undefined (reading 'value')")} {
		backend := &fakeBackend{ordersErr: ordersErr}
		d, _ := newTestDashboard(t, backend, Options{})
		connect(t, d, network.Mainnet)
		v := d.View()
		if v.Status != StatusReady || v.Message != "" {
			t.Fatalf("%v: expected ready without error, got %s %q", ordersErr, v.Status, v.Message)
		}
		if v.Orders == nil || len(v.Orders) != 0 {
			t.Fatalf("%v: expected empty order list, got %#v", ordersErr, v.Orders)
		}
	}
}

func TestOrdersFailureKeepsPreviousList(t *testing.T) {
	backend := &fakeBackend{orders: []gateway.Order{{ID: "0x1"}, {ID: "0x2"}}}
	d, _ := newTestDashboard(t, backend, Options{})
	connect(t, d, network.Mainnet)

	backend.set(func(f *fakeBackend) { f.ordersErr = errors.New("gateway exploded") })
	if err := d.RefreshOrders(context.Background()); err != nil {
		t.Fatalf("refresh orders: %v", err)
	}
	v := d.View()
	if v.Status != StatusError || v.Message != "gateway exploded" {
		t.Fatalf("expected panel error, got %s %q", v.Status, v.Message)
	}
	if len(v.Orders) != 2 {
		t.Fatalf("expected previous orders kept, got %d", len(v.Orders))
	}

	backend.set(func(f *fakeBackend) { f.ordersErr = nil })
	if err := d.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if v := d.View(); v.Status != StatusReady {
		t.Fatalf("expected error cleared by refresh, got %s", v.Status)
	}
}

func TestStaleRefreshDropped(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{orders: []gateway.Order{{ID: "0xold"}}, ordersGate: gate}
	d, _ := newTestDashboard(t, backend, Options{})
	// Connect without blocking on the gated refresh.
	d.mu.Lock()
	d.session = Session{Account: testAccount, Network: network.Mainnet}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Refresh(context.Background())
	}()
	waitFor(t, func() bool { return backend.calls() == 1 })
	if v := d.View(); v.Status != StatusLoading {
		t.Fatalf("expected loading while refresh is in flight, got %s", v.Status)
	}

	// A newer orders-only refresh overtakes the first one.
	backend.set(func(f *fakeBackend) {
		f.orders = []gateway.Order{{ID: "0xnew"}}
		f.ordersGate = nil
	})
	if err := d.RefreshOrders(context.Background()); err != nil {
		t.Fatalf("refresh orders: %v", err)
	}
	backend.set(func(f *fakeBackend) { f.orders = []gateway.Order{{ID: "0xold"}} })
	gate <- struct{}{}
	<-done

	v := d.View()
	if len(v.Orders) != 1 || v.Orders[0].ID != "0xnew" {
		t.Fatalf("expected stale result dropped, got %#v", v.Orders)
	}
	if v.Status != StatusReady {
		t.Fatalf("expected ready after refreshes settle, got %s", v.Status)
	}
}

func TestSessionChangeDropsInFlightRefresh(t *testing.T) {
	gate := make(chan struct{})
	backend := &fakeBackend{orders: []gateway.Order{{ID: "0xold"}}, ordersGate: gate}
	d, _ := newTestDashboard(t, backend, Options{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.SetSession(context.Background(), Session{Account: testAccount, Network: network.Mainnet})
	}()
	waitFor(t, func() bool { return backend.calls() == 1 })

	if err := d.SetSession(context.Background(), Session{}); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	gate <- struct{}{}
	<-done
	v := d.View()
	if v.Status != StatusConnect || len(v.Orders) != 0 {
		t.Fatalf("expected old session result dropped, got %s %#v", v.Status, v.Orders)
	}
}

func TestCreateOrderNotSubmittable(t *testing.T) {
	backend := &fakeBackend{}
	d, notifier := newTestDashboard(t, backend, Options{})
	connect(t, d, network.Mainnet)

	_, err := d.CreateOrder(context.Background())
	if !errors.Is(err, strategy.ErrNotSubmittable) {
		t.Fatalf("expected ErrNotSubmittable, got %v", err)
	}
	if len(backend.openRequests) != 0 || len(notifier.all()) != 0 {
		t.Fatalf("expected nothing sent for an unsubmittable form")
	}
	if v := d.View(); v.CanSubmit || !strings.Contains(v.SubmitBlocker, "Signature") {
		t.Fatalf("expected signature blocker, got %q", v.SubmitBlocker)
	}
}

func fillForm(d *Dashboard) {
	f := d.Form()
	f.OutCoinType = testOutCoin
	f.Signature = "0xsig"
	d.UpdateForm(f)
}

func TestCreateOrderSuccess(t *testing.T) {
	backend := &fakeBackend{digest: "9Digest"}
	d, notifier := newTestDashboard(t, backend, Options{})
	connect(t, d, network.Mainnet)
	fillForm(d)
	callsBefore := backend.calls()

	sub, err := d.CreateOrder(context.Background())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	waitDone(t, sub)
	out := sub.Outcome()
	if out.State != SubmissionSucceeded || out.Digest != "9Digest" {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if out.ExplorerURL != "https://suiscan.xyz/mainnet/txblock/9Digest" {
		t.Fatalf("unexpected explorer url %q", out.ExplorerURL)
	}
	req := backend.openRequests[0]
	if req.PerCycleInAmountLimit != "250000000" || req.Timestamp != 1700000000 {
		t.Fatalf("unexpected request %#v", req)
	}
	if backend.execAccounts[0] != testAccount {
		t.Fatalf("expected execution for session account, got %q", backend.execAccounts[0])
	}
	waitFor(t, func() bool { return backend.calls() > callsBefore })

	notices := notifier.all()
	if len(notices) != 2 || notices[0].kind != "loading" || notices[1].kind != "success" {
		t.Fatalf("unexpected notices %#v", notices)
	}
	if notices[0].handle != notices[1].handle || notices[1].text != out.ExplorerURL {
		t.Fatalf("expected success on the loading handle with explorer url, got %#v", notices)
	}
	if got, ok := d.Submission(sub.ID()); !ok || got != sub {
		t.Fatalf("expected submission lookup by id")
	}
}

func TestCreateOrderBuildFailure(t *testing.T) {
	backend := &fakeBackend{buildErr: errors.New("invalid price signature")}
	d, notifier := newTestDashboard(t, backend, Options{})
	connect(t, d, network.Mainnet)
	fillForm(d)

	sub, err := d.CreateOrder(context.Background())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	select {
	case <-sub.Done():
	default:
		t.Fatalf("expected build failure to finish the submission immediately")
	}
	if out := sub.Outcome(); out.State != SubmissionFailed || out.Error != "invalid price signature" {
		t.Fatalf("unexpected outcome %#v", out)
	}
	if len(backend.executed) != 0 {
		t.Fatalf("expected nothing executed")
	}
	notices := notifier.all()
	if len(notices) != 2 || notices[1].kind != "error" || notices[1].handle != notices[0].handle {
		t.Fatalf("unexpected notices %#v", notices)
	}
	if v := d.View(); v.Status != StatusReady {
		t.Fatalf("build failures must not become panel errors, got %s", v.Status)
	}
}

func TestExecuteFailure(t *testing.T) {
	backend := &fakeBackend{execErr: errors.New("user rejected")}
	d, notifier := newTestDashboard(t, backend, Options{})
	connect(t, d, network.Mainnet)
	fillForm(d)

	sub, err := d.CreateOrder(context.Background())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	waitDone(t, sub)
	if out := sub.Outcome(); out.State != SubmissionFailed || out.Error != "user rejected" {
		t.Fatalf("unexpected outcome %#v", out)
	}
	waitFor(t, func() bool { return len(notifier.all()) == 2 })
	if n := notifier.all()[1]; n.kind != "error" || n.text != "user rejected" {
		t.Fatalf("unexpected notice %#v", n)
	}
}

func TestWithdrawAndClose(t *testing.T) {
	order := gateway.Order{ID: "0xorder", InCoinType: "A", OutCoinType: "B"}
	backend := &fakeBackend{orders: []gateway.Order{order}, digest: "d"}
	d, _ := newTestDashboard(t, backend, Options{})
	connect(t, d, network.Testnet)

	if _, err := d.Withdraw(context.Background(), "0xmissing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	sub, err := d.Withdraw(context.Background(), "0xorder")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	waitDone(t, sub)
	if backend.withdrawRefs[0] != order.Ref() {
		t.Fatalf("unexpected withdraw ref %#v", backend.withdrawRefs[0])
	}
	if out := sub.Outcome(); out.Kind != gateway.TxWithdraw || out.OrderID != "0xorder" || !strings.HasPrefix(out.ExplorerURL, "https://suiscan.xyz/testnet/") {
		t.Fatalf("unexpected outcome %#v", out)
	}

	sub, err = d.CloseOrder(context.Background(), "0xorder")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	waitDone(t, sub)
	if len(backend.closeRefs) != 1 || len(backend.closeRefs[0]) != 1 || backend.closeRefs[0][0] != order.Ref() {
		t.Fatalf("unexpected close refs %#v", backend.closeRefs)
	}
}

func TestDraftsAndTemplates(t *testing.T) {
	d, _ := newTestDashboard(t, &fakeBackend{}, Options{})
	fillForm(d)
	draft := d.SaveDraft(context.Background())
	if draft.Name != strategy.DefaultName || draft.OutCoinType != testOutCoin {
		t.Fatalf("unexpected draft %#v", draft)
	}
	if _, err := d.ApplyTemplate("aggressive"); err != nil {
		t.Fatalf("apply template: %v", err)
	}
	if f := d.Form(); f.CycleCount != "3" || f.CycleFrequency != "21600" {
		t.Fatalf("unexpected template result %#v", f)
	}
	if _, err := d.ApplyTemplate("nope"); !errors.Is(err, strategy.ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
	f, err := d.LoadDraft(draft.ID)
	if err != nil {
		t.Fatalf("load draft: %v", err)
	}
	if f.CycleCount != "4" {
		t.Fatalf("expected draft cycle count restored, got %s", f.CycleCount)
	}
	if _, err := d.LoadDraft("missing"); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}
	if !d.DeleteDraft(context.Background(), draft.ID) || d.DeleteDraft(context.Background(), draft.ID) {
		t.Fatalf("expected exactly one delete to succeed")
	}
}

func TestDraftPersistencePerAccount(t *testing.T) {
	store := &memoryStore{}
	backend := &fakeBackend{}
	d, _ := newTestDashboard(t, backend, Options{Store: store, Drafts: drafts.New(strategy.DefaultFields())})
	connect(t, d, network.Mainnet)
	d.SaveDraft(context.Background())

	other := "0x00000000000000000000000000000000000000000000000000000000000000cc"
	if err := d.SetSession(context.Background(), Session{Account: other, Network: network.Mainnet}); err != nil {
		t.Fatalf("switch account: %v", err)
	}
	if len(d.Drafts()) != 0 {
		t.Fatalf("expected no drafts for the other account")
	}
	connect(t, d, network.Mainnet)
	if len(d.Drafts()) != 1 {
		t.Fatalf("expected drafts restored for the first account, got %d", len(d.Drafts()))
	}
}

func TestViewChartCap(t *testing.T) {
	d, _ := newTestDashboard(t, &fakeBackend{}, Options{})
	v := d.View()
	if v.Chart == nil || len(v.Chart.Points) != 4 {
		t.Fatalf("expected chart for default form")
	}
	f := d.Form()
	f.CycleCount = "100000"
	d.UpdateForm(f)
	v = d.View()
	if v.Chart != nil || v.ChartOmitted == "" {
		t.Fatalf("expected chart omitted above the point cap")
	}
	if _, err := d.Estimate(); !errors.Is(err, ErrChartTooLarge) {
		t.Fatalf("expected ErrChartTooLarge, got %v", err)
	}
}

func waitDone(t *testing.T, sub *Submission) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for submission %s", sub.ID())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestSessionChangeHook(t *testing.T) {
	var seen []Session
	d, _ := newTestDashboard(t, &fakeBackend{}, Options{
		OnSessionChange: func(_ context.Context, s Session) { seen = append(seen, s) },
	})
	connect(t, d, network.Mainnet)
	connect(t, d, network.Mainnet)
	if err := d.SetSession(context.Background(), Session{Account: testAccount, Network: "Testnet"}); err != nil {
		t.Fatalf("switch network: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected hook on each change only, got %d calls", len(seen))
	}
	if seen[1].Network != network.Testnet {
		t.Fatalf("expected parsed network, got %q", seen[1].Network)
	}
}
