package gateio

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/quantarc/gateio-gateway/errs"
	"github.com/quantarc/gateio-gateway/internal/observability"
	"github.com/quantarc/gateio-gateway/internal/schema"
)

// Channel identifies one of the five logical websocket connections.
type Channel int

const (
	// ChannelPublicSpot carries spot market data.
	ChannelPublicSpot Channel = iota
	// ChannelPublicFuturesUSDT carries USDT-settled futures market data.
	ChannelPublicFuturesUSDT
	// ChannelPublicFuturesBTC carries BTC-settled futures market data.
	ChannelPublicFuturesBTC
	// ChannelPrivateSpot carries authenticated spot order flow.
	ChannelPrivateSpot
	// ChannelPrivateFutures carries authenticated futures order flow.
	ChannelPrivateFutures
)

var channelNames = map[Channel]string{
	ChannelPublicSpot:        "public_spot",
	ChannelPublicFuturesUSDT: "public_futures_usdt",
	ChannelPublicFuturesBTC:  "public_futures_btc",
	ChannelPrivateSpot:       "private_spot",
	ChannelPrivateFutures:    "private_futures",
}

func (c Channel) String() string {
	if name, ok := channelNames[c]; ok {
		return name
	}
	return "unknown"
}

// Private reports whether the channel requires authentication.
func (c Channel) Private() bool {
	return c == ChannelPrivateSpot || c == ChannelPrivateFutures
}

// Control-frame pacing on public sockets: one control message per interval
// with a small burst allowance.
const (
	publicControlRate  = rate.Limit(5)
	publicControlBurst = 5
)

// ChannelSet owns the five logical websocket channels and their lifecycle
// statuses. All transitions go through it; the purged flag is terminal.
type ChannelSet struct {
	mu            sync.RWMutex
	transports    map[Channel]Transport
	statuses      map[Channel]schema.ChannelStatus
	authenticated bool
	purged        bool

	limiter *rate.Limiter
}

// NewChannelSet returns a channel set with every status OFFLINE.
func NewChannelSet() *ChannelSet {
	return &ChannelSet{
		transports: make(map[Channel]Transport, 5),
		statuses: map[Channel]schema.ChannelStatus{
			ChannelPublicSpot:        schema.StatusOffline,
			ChannelPublicFuturesUSDT: schema.StatusOffline,
			ChannelPublicFuturesBTC:  schema.StatusOffline,
			ChannelPrivateSpot:       schema.StatusOffline,
			ChannelPrivateFutures:    schema.StatusOffline,
		},
		limiter: rate.NewLimiter(publicControlRate, publicControlBurst),
	}
}

// Attach registers the transport serving a channel.
func (cs *ChannelSet) Attach(ch Channel, t Transport) {
	if t == nil {
		return
	}
	cs.mu.Lock()
	cs.transports[ch] = t
	cs.mu.Unlock()
}

// Connect establishes the channel's transport.
func (cs *ChannelSet) Connect(ctx context.Context, ch Channel) error {
	cs.mu.RLock()
	t := cs.transports[ch]
	purged := cs.purged
	cs.mu.RUnlock()
	if purged {
		return errs.New(errs.ExchangeGateio, errs.CodePurged, errs.WithMessage("channel set purged"))
	}
	if t == nil {
		return errs.New(errs.ExchangeGateio, errs.CodeInvalid,
			errs.WithMessage("no transport attached for channel "+ch.String()))
	}
	return t.Connect(ctx)
}

// Send routes a frame to the channel's transport. Control frames on public
// channels are paced by the shared rate limiter.
func (cs *ChannelSet) Send(ctx context.Context, ch Channel, payload []byte) error {
	cs.mu.RLock()
	t := cs.transports[ch]
	purged := cs.purged
	cs.mu.RUnlock()
	if purged {
		return errs.New(errs.ExchangeGateio, errs.CodePurged, errs.WithMessage("channel set purged"))
	}
	if t == nil {
		return errs.New(errs.ExchangeGateio, errs.CodeNetwork,
			errs.WithMessage("channel "+ch.String()+" has no transport"))
	}
	if !ch.Private() {
		if err := cs.limiter.Wait(ctx); err != nil {
			return errs.New(errs.ExchangeGateio, errs.CodeNetwork,
				errs.WithMessage("control frame pacing interrupted"), errs.WithCause(err))
		}
	}
	return t.Send(ctx, payload)
}

// Status reports the lifecycle state of one channel.
func (cs *ChannelSet) Status(ch Channel) schema.ChannelStatus {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.statuses[ch]
}

// SetStatus records a channel transition.
func (cs *ChannelSet) SetStatus(ch Channel, status schema.ChannelStatus) {
	cs.mu.Lock()
	cs.statuses[ch] = status
	cs.mu.Unlock()
}

// Statuses returns a snapshot of every channel status.
func (cs *ChannelSet) Statuses() map[Channel]schema.ChannelStatus {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make(map[Channel]schema.ChannelStatus, len(cs.statuses))
	for ch, st := range cs.statuses {
		out[ch] = st
	}
	return out
}

// Authenticated reports whether a login acknowledgement has been accepted.
func (cs *ChannelSet) Authenticated() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.authenticated
}

// SetAuthenticated records the outcome of an exchange login.
func (cs *ChannelSet) SetAuthenticated(ok bool) {
	cs.mu.Lock()
	cs.authenticated = ok
	cs.mu.Unlock()
}

// Purged reports whether the channel set has been terminally shut down.
func (cs *ChannelSet) Purged() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.purged
}

// Shutdown closes every attached transport exactly once and marks all
// statuses OFFLINE. Used by the fail-fast teardown path; the set stays
// usable for status queries but every socket is gone.
func (cs *ChannelSet) Shutdown() {
	cs.mu.Lock()
	transports := cs.transports
	cs.transports = make(map[Channel]Transport, 5)
	for ch := range cs.statuses {
		cs.statuses[ch] = schema.StatusOffline
	}
	cs.authenticated = false
	cs.mu.Unlock()

	for ch, t := range transports {
		if err := t.Close(); err != nil {
			observability.Log().Error("close transport",
				observability.Field{Key: "channel", Value: ch.String()},
				observability.Field{Key: "error", Value: err.Error()},
			)
		}
	}
}

// Purge is the terminal shutdown path: closes all sockets, resets statuses,
// and marks the set unusable. Idempotent; a second call is a no-op.
func (cs *ChannelSet) Purge() {
	cs.mu.Lock()
	if cs.purged {
		cs.mu.Unlock()
		return
	}
	cs.purged = true
	cs.mu.Unlock()
	cs.Shutdown()
}

// PublicChannelFor routes a symbol to its public market-data socket. FUTURE
// symbols settle on the BTC socket only for the BTC-quoted contract.
func PublicChannelFor(sym schema.Symbol) Channel {
	if sym.Kind == schema.MarketSpot {
		return ChannelPublicSpot
	}
	if sym.IsBTCQuoted() {
		return ChannelPublicFuturesBTC
	}
	return ChannelPublicFuturesUSDT
}

// PrivateChannelFor routes an instrument to its order-flow socket.
func PrivateChannelFor(instrument schema.InstrumentType) Channel {
	if instrument.IsSpot() {
		return ChannelPrivateSpot
	}
	return ChannelPrivateFutures
}
