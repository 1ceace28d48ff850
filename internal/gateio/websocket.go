package gateio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"

	"github.com/quantarc/gateio-gateway/errs"
	"github.com/quantarc/gateio-gateway/internal/observability"
)

const (
	wsDialTimeout     = 10 * time.Second
	wsWriteTimeout    = 5 * time.Second
	wsReadLimit       = 2 * 1024 * 1024
	wsMaxDialBackoff  = 20 * time.Second
	wsMaxDialAttempts = 5
)

// wsTransport is the production Transport over github.com/coder/websocket.
// One instance serves one endpoint for the adapter's lifetime; there is no
// automatic reconnect, the adapter's teardown policy owns failure handling.
type wsTransport struct {
	url      string
	handlers Handlers

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	closed bool
}

// NewWebsocketTransport returns a Transport dialing the given endpoint URL.
func NewWebsocketTransport(url string, handlers Handlers) Transport {
	return &wsTransport{url: url, handlers: handlers}
}

// Connect dials the endpoint with bounded exponential backoff, starts the
// read loop, and invokes the OnOpen hook. A transport that was already closed
// refuses to connect.
func (t *wsTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return errs.New(errs.ExchangeGateio, errs.CodePurged, errs.WithMessage("transport closed"))
	}
	if t.conn != nil {
		t.mu.Unlock()
		return errs.New(errs.ExchangeGateio, errs.CodeInvalid, errs.WithMessage("transport already connected"))
	}
	t.mu.Unlock()

	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	conn.SetReadLimit(wsReadLimit)

	readCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
		return errs.New(errs.ExchangeGateio, errs.CodePurged, errs.WithMessage("transport closed"))
	}
	t.conn = conn
	t.cancel = cancel
	t.mu.Unlock()

	go t.readLoop(readCtx, conn)

	if t.handlers.OnOpen != nil {
		t.handlers.OnOpen()
	}
	return nil
}

func (t *wsTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	boff := backoff.NewExponentialBackOff()
	boff.MaxInterval = wsMaxDialBackoff

	var lastErr error
	for attempt := 0; attempt < wsMaxDialAttempts; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, wsDialTimeout)
		conn, _, err := websocket.Dial(dialCtx, t.url, nil)
		cancel()
		if err == nil {
			return conn, nil
		}
		lastErr = err
		observability.Log().Error("websocket dial failed",
			observability.Field{Key: "url", Value: t.url},
			observability.Field{Key: "attempt", Value: attempt + 1},
			observability.Field{Key: "error", Value: err.Error()},
		)
		sleep := boff.NextBackOff()
		if sleep == backoff.Stop {
			sleep = wsMaxDialBackoff
		}
		select {
		case <-ctx.Done():
			return nil, errs.New(errs.ExchangeGateio, errs.CodeNetwork,
				errs.WithMessage("dial canceled"), errs.WithCause(ctx.Err()))
		case <-time.After(sleep):
		}
	}
	return nil, errs.New(errs.ExchangeGateio, errs.CodeNetwork,
		errs.WithMessage(fmt.Sprintf("dial %s exhausted %d attempts", t.url, wsMaxDialAttempts)),
		errs.WithCause(lastErr))
}

func (t *wsTransport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()
			if !closed && t.handlers.OnClose != nil {
				t.handlers.OnClose(err)
			}
			return
		}
		if t.handlers.OnMessage != nil {
			t.handlers.OnMessage(data)
		}
	}
}

// Send writes a text frame with a bounded write timeout.
func (t *wsTransport) Send(ctx context.Context, payload []byte) error {
	t.mu.Lock()
	conn := t.conn
	closed := t.closed
	t.mu.Unlock()
	if closed || conn == nil {
		return errs.New(errs.ExchangeGateio, errs.CodeNetwork, errs.WithMessage("websocket not connected"))
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, payload); err != nil {
		return errs.New(errs.ExchangeGateio, errs.CodeNetwork,
			errs.WithMessage("write frame"), errs.WithCause(err))
	}
	return nil
}

// Close tears the connection down. Safe to call more than once.
func (t *wsTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	cancel := t.cancel
	t.conn = nil
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutdown")
	}
	return nil
}
