package gateio

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantarc/gateio-gateway/errs"
	"github.com/quantarc/gateio-gateway/internal/schema"
)

// fakeTransport records sent frames and counts Close calls.
type fakeTransport struct {
	mu         sync.Mutex
	handlers   Handlers
	sent       [][]byte
	connectErr error
	sendErr    error
	closed     int
}

func newFakeTransport() *fakeTransport { return &fakeTransport{} }

func (f *fakeTransport) Connect(ctx context.Context) error {
	if f.connectErr != nil {
		return f.connectErr
	}
	if f.handlers.OnOpen != nil {
		f.handlers.OnOpen()
	}
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, payload []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) sentFrames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestChannelSetStartsOffline(t *testing.T) {
	cs := NewChannelSet()
	for ch, status := range cs.Statuses() {
		require.Equal(t, schema.StatusOffline, status, "channel %s", ch)
	}
	require.False(t, cs.Authenticated())
	require.False(t, cs.Purged())
}

func TestConnectWithoutTransport(t *testing.T) {
	cs := NewChannelSet()
	err := cs.Connect(context.Background(), ChannelPublicSpot)
	require.Error(t, err)
	var typed *errs.E
	require.ErrorAs(t, err, &typed)
	require.Equal(t, errs.CodeInvalid, typed.Code)
}

func TestSendRoutesToAttachedTransport(t *testing.T) {
	cs := NewChannelSet()
	ft := newFakeTransport()
	cs.Attach(ChannelPrivateSpot, ft)

	require.NoError(t, cs.Send(context.Background(), ChannelPrivateSpot, []byte(`{"x":1}`)))
	require.Len(t, ft.sentFrames(), 1)
}

func TestShutdownClosesEachTransportOnce(t *testing.T) {
	cs := NewChannelSet()
	transports := make([]*fakeTransport, 0, 5)
	for _, ch := range []Channel{
		ChannelPublicSpot, ChannelPublicFuturesUSDT, ChannelPublicFuturesBTC,
		ChannelPrivateSpot, ChannelPrivateFutures,
	} {
		ft := newFakeTransport()
		transports = append(transports, ft)
		cs.Attach(ch, ft)
		cs.SetStatus(ch, schema.StatusOnline)
	}
	cs.SetAuthenticated(true)

	cs.Shutdown()
	cs.Shutdown()

	for _, ft := range transports {
		require.Equal(t, 1, ft.closeCount())
	}
	for _, status := range cs.Statuses() {
		require.Equal(t, schema.StatusOffline, status)
	}
	require.False(t, cs.Authenticated())
	require.False(t, cs.Purged())
}

func TestPurgeIsTerminalAndIdempotent(t *testing.T) {
	cs := NewChannelSet()
	ft := newFakeTransport()
	cs.Attach(ChannelPublicSpot, ft)

	cs.Purge()
	cs.Purge()

	require.True(t, cs.Purged())
	require.Equal(t, 1, ft.closeCount())

	err := cs.Send(context.Background(), ChannelPublicSpot, []byte("{}"))
	var typed *errs.E
	require.ErrorAs(t, err, &typed)
	require.Equal(t, errs.CodePurged, typed.Code)

	err = cs.Connect(context.Background(), ChannelPublicSpot)
	require.ErrorAs(t, err, &typed)
	require.Equal(t, errs.CodePurged, typed.Code)
}

func TestPublicChannelRouting(t *testing.T) {
	require.Equal(t, ChannelPublicSpot,
		PublicChannelFor(schema.Symbol{Base: "BTC_USDT", Kind: schema.MarketSpot}))
	require.Equal(t, ChannelPublicFuturesBTC,
		PublicChannelFor(schema.Symbol{Base: "BTC_USD", Kind: schema.MarketFuture}))
	require.Equal(t, ChannelPublicFuturesUSDT,
		PublicChannelFor(schema.Symbol{Base: "ETH_USD", Kind: schema.MarketFuture}))
	require.Equal(t, ChannelPublicFuturesUSDT,
		PublicChannelFor(schema.Symbol{Base: "BTC_USDT", Kind: schema.MarketFuture}))
}

func TestPrivateChannelRouting(t *testing.T) {
	require.Equal(t, ChannelPrivateSpot, PrivateChannelFor(schema.InstrumentSpot))
	require.Equal(t, ChannelPrivateFutures, PrivateChannelFor(schema.InstrumentLinearPerpetual))
	require.Equal(t, ChannelPrivateFutures, PrivateChannelFor(schema.InstrumentInverseFuture))
}
