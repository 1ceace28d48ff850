// Package gateio implements the Gate.io exchange-connectivity adapter: the
// channel lifecycle state machine, order correlation, the outbound protocol
// encoder, the inbound response dispatcher, latency recording, and the
// downstream broadcast fan-out.
package gateio

import "context"

// Handlers carries the connection lifecycle hooks a Transport invokes.
// OnMessage and OnClose run on the transport's read goroutine; OnOpen runs on
// the goroutine that called Connect, after the read loop has started.
type Handlers struct {
	OnOpen    func()
	OnMessage func(payload []byte)
	OnClose   func(err error)
}

// Transport is a single websocket connection to one exchange endpoint.
// Close is idempotent; Send after Close returns an error.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// TransportFactory builds a Transport for an endpoint URL. Injected so tests
// can substitute in-memory fakes for real websocket connections.
type TransportFactory func(url string, handlers Handlers) Transport
