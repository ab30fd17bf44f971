package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// OrderEvent is pushed by the gateway whenever an order of the subscribed
// account changes on chain.
type OrderEvent struct {
	Type    string `json:"type"`
	Account string `json:"account"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type streamMessage struct {
	Method  string `json:"method"`
	Account string `json:"account,omitempty"`
}

var pingMessage = streamMessage{Method: "ping"}

// Stream follows order events for a single account and reconnects on
// failure.
type Stream struct {
	url            string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	account string
}

func NewStream(url string, reconnectDelay, pingInterval time.Duration, log *zap.Logger) *Stream {
	if log == nil {
		log = zap.NewNop()
	}
	return &Stream{url: url, reconnectDelay: reconnectDelay, pingInterval: pingInterval, log: log}
}

func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return nil
	}
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Follow switches the subscription to account. An empty account only
// unsubscribes. When not connected the subscription is sent on connect.
func (s *Stream) Follow(ctx context.Context, account string) error {
	s.mu.Lock()
	prev := s.account
	s.account = account
	conn := s.conn
	s.mu.Unlock()
	if conn == nil || prev == account {
		return nil
	}
	if prev != "" {
		if err := writeJSON(ctx, conn, streamMessage{Method: "unsubscribe", Account: prev}); err != nil {
			return err
		}
	}
	if account == "" {
		return nil
	}
	return writeJSON(ctx, conn, streamMessage{Method: "subscribe", Account: account})
}

func (s *Stream) Run(ctx context.Context, handler func(OrderEvent)) error {
	for {
		if err := s.ensureConnected(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("order stream connect failed", zap.Error(err))
			if !s.wait(ctx) {
				return ctx.Err()
			}
			continue
		}
		pingCtx, cancel := context.WithCancel(ctx)
		pingDone := make(chan struct{})
		go func() {
			defer close(pingDone)
			s.pingLoop(pingCtx)
		}()
		err := s.readLoop(ctx, handler)
		cancel()
		<-pingDone
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logReadLoopError(err)
		s.resetConn()
		if !s.wait(ctx) {
			return ctx.Err()
		}
	}
}

func (s *Stream) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.reconnectDelay):
		return true
	}
}

func (s *Stream) ensureConnected(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	account := s.account
	s.mu.Unlock()
	if account == "" {
		return nil
	}
	return writeJSON(ctx, conn, streamMessage{Method: "subscribe", Account: account})
}

func (s *Stream) readLoop(ctx context.Context, handler func(OrderEvent)) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.New("order stream not connected")
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var event OrderEvent
		if err := json.Unmarshal(data, &event); err != nil {
			s.log.Debug("order stream: skipping malformed message", zap.Error(err))
			continue
		}
		if event.Type == "" || event.Type == "pong" {
			continue
		}
		if handler != nil {
			handler(event)
		}
	}
}

func (s *Stream) pingLoop(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	interval := s.pingInterval
	s.mu.Unlock()
	if conn == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeJSON(ctx, conn, pingMessage); err != nil {
				return
			}
		}
	}
}

func (s *Stream) logReadLoopError(err error) {
	if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
		s.log.Info("order stream ended", zap.Error(err))
		return
	}
	s.log.Warn("order stream ended", zap.Error(err))
}

func (s *Stream) resetConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "reset")
		s.conn = nil
	}
}

func (s *Stream) Close() error {
	s.resetConn()
	return nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
