package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handle ties the success or error notice of a transaction to the loading
// notice that preceded it.
type Handle string

// Notifier reports the lifecycle of a submitted transaction.
type Notifier interface {
	Loading(ctx context.Context, msg string) Handle
	Success(ctx context.Context, explorerURL string, h Handle)
	Error(ctx context.Context, err error, h Handle)
}

func newHandle() Handle {
	return Handle(uuid.NewString())
}

func errorText(err error) string {
	if err == nil || err.Error() == "" {
		return "Unknown error"
	}
	return err.Error()
}

type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

func (l *Log) Loading(_ context.Context, msg string) Handle {
	h := newHandle()
	l.log.Info("transaction pending", zap.String("handle", string(h)), zap.String("message", msg))
	return h
}

func (l *Log) Success(_ context.Context, explorerURL string, h Handle) {
	l.log.Info("transaction succeeded", zap.String("handle", string(h)), zap.String("explorer_url", explorerURL))
}

func (l *Log) Error(_ context.Context, err error, h Handle) {
	l.log.Warn("transaction failed", zap.String("handle", string(h)), zap.String("error", errorText(err)))
}

// Multi fans every notice out to all sinks and maps its own handle onto the
// handles each sink returned.
type Multi struct {
	sinks []Notifier

	mu      sync.Mutex
	handles map[Handle][]Handle
}

func NewMulti(sinks ...Notifier) *Multi {
	kept := make([]Notifier, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Multi{sinks: kept, handles: make(map[Handle][]Handle)}
}

func (m *Multi) Loading(ctx context.Context, msg string) Handle {
	h := newHandle()
	children := make([]Handle, len(m.sinks))
	for i, s := range m.sinks {
		children[i] = s.Loading(ctx, msg)
	}
	m.mu.Lock()
	m.handles[h] = children
	m.mu.Unlock()
	return h
}

func (m *Multi) Success(ctx context.Context, explorerURL string, h Handle) {
	children := m.take(h)
	for i, s := range m.sinks {
		s.Success(ctx, explorerURL, children[i])
	}
}

func (m *Multi) Error(ctx context.Context, err error, h Handle) {
	children := m.take(h)
	for i, s := range m.sinks {
		s.Error(ctx, err, children[i])
	}
}

func (m *Multi) take(h Handle) []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	children, ok := m.handles[h]
	delete(m.handles, h)
	if !ok {
		children = make([]Handle, len(m.sinks))
	}
	return children
}
