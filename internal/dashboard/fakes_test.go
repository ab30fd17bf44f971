package dashboard

import (
	"context"
	"strconv"
	"sync"

	"dca-console/internal/gateway"
	"dca-console/internal/notify"
	"dca-console/internal/strategy"
)

const (
	testAccount = "0x00000000000000000000000000000000000000000000000000000000000000aa"
	testOutCoin = "0x00000000000000000000000000000000000000000000000000000000000000bb::usdc::USDC"
)

type fakeBackend struct {
	mu sync.Mutex

	whitelist    gateway.CoinWhitelist
	whitelistErr error
	orders       []gateway.Order
	ordersErr    error
	ordersCalls  int
	// ordersGate, when set, blocks Orders until a value is received.
	ordersGate chan struct{}

	buildErr     error
	execErr      error
	digest       string
	openRequests []strategy.OpenOrderRequest
	withdrawRefs []gateway.OrderRef
	closeRefs    [][]gateway.OrderRef
	executed     []gateway.TxPayload
	execAccounts []string
}

func (f *fakeBackend) CoinWhitelist(ctx context.Context, retryCount int) (gateway.CoinWhitelist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.whitelist, f.whitelistErr
}

func (f *fakeBackend) Orders(ctx context.Context, account string) ([]gateway.Order, error) {
	f.mu.Lock()
	f.ordersCalls++
	gate := f.ordersGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]gateway.Order(nil), f.orders...), f.ordersErr
}

func (f *fakeBackend) BuildOpenOrder(ctx context.Context, req strategy.OpenOrderRequest) (gateway.TxPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openRequests = append(f.openRequests, req)
	if f.buildErr != nil {
		return gateway.TxPayload{}, f.buildErr
	}
	return gateway.TxPayload{Kind: gateway.TxOpen, Bytes: "open"}, nil
}

func (f *fakeBackend) BuildWithdraw(ctx context.Context, ref gateway.OrderRef) (gateway.TxPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawRefs = append(f.withdrawRefs, ref)
	if f.buildErr != nil {
		return gateway.TxPayload{}, f.buildErr
	}
	return gateway.TxPayload{Kind: gateway.TxWithdraw, Bytes: "withdraw"}, nil
}

func (f *fakeBackend) BuildCloseOrders(ctx context.Context, refs []gateway.OrderRef) (gateway.TxPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeRefs = append(f.closeRefs, refs)
	if f.buildErr != nil {
		return gateway.TxPayload{}, f.buildErr
	}
	return gateway.TxPayload{Kind: gateway.TxClose, Bytes: "close"}, nil
}

func (f *fakeBackend) Execute(ctx context.Context, account string, tx gateway.TxPayload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, tx)
	f.execAccounts = append(f.execAccounts, account)
	if f.execErr != nil {
		return "", f.execErr
	}
	return f.digest, nil
}

func (f *fakeBackend) set(fn func(*fakeBackend)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ordersCalls
}

type notice struct {
	kind   string
	handle notify.Handle
	text   string
}

type fakeNotifier struct {
	mu      sync.Mutex
	n       int
	notices []notice
}

func (f *fakeNotifier) Loading(_ context.Context, msg string) notify.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	h := notify.Handle("h" + strconv.Itoa(f.n))
	f.notices = append(f.notices, notice{kind: "loading", handle: h, text: msg})
	return h
}

func (f *fakeNotifier) Success(_ context.Context, explorerURL string, h notify.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice{kind: "success", handle: h, text: explorerURL})
}

func (f *fakeNotifier) Error(_ context.Context, err error, h notify.Handle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, notice{kind: "error", handle: h, text: FormatError(err)})
}

func (f *fakeNotifier) all() []notice {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notice(nil), f.notices...)
}

type memoryStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.items[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = make(map[string][]byte)
	}
	m.items[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
