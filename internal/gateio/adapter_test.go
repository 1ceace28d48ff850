package gateio

import (
	"context"
	"errors"
	"strconv"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/quantarc/gateio-gateway/config"
	"github.com/quantarc/gateio-gateway/internal/schema"
	"github.com/quantarc/gateio-gateway/internal/sessions"
)

var testEndpoints = config.Endpoints{
	PublicSpot:        "ws://public-spot",
	PublicFuturesUSDT: "ws://public-futures-usdt",
	PublicFuturesBTC:  "ws://public-futures-btc",
	PrivateSpot:       "ws://private-spot",
	PrivateFutures:    "ws://private-futures",
}

type adapterFixture struct {
	adapter    *Adapter
	transports map[string]*fakeTransport
	registry   *sessions.Registry
	mirror     *fakeMirror
	recorder   *callbackRecorder
}

func newAdapterFixture(t *testing.T, authenticate bool) *adapterFixture {
	t.Helper()
	fx := &adapterFixture{
		transports: make(map[string]*fakeTransport),
		registry:   sessions.NewRegistry(),
		mirror:     &fakeMirror{},
		recorder:   &callbackRecorder{},
	}
	factory := func(url string, handlers Handlers) Transport {
		ft := newFakeTransport()
		ft.handlers = handlers
		fx.transports[url] = ft
		return ft
	}

	adapter, err := New(context.Background(), AdapterConfig{
		Account:      "acct-1",
		Key:          "test-key",
		Secret:       "test-secret",
		Authenticate: authenticate,
		Endpoints:    testEndpoints,
		Callbacks:    fx.recorder.callbacks(),
		Registry:     fx.registry,
		Mirror:       fx.mirror,
		Factory:      factory,
		Clock:        fixedClock(1700000000),
		AlgoResolver: func(orderID int64) (string, bool) {
			if orderID == 101 {
				return "twap-1", true
			}
			return "", false
		},
	})
	require.NoError(t, err)
	fx.adapter = adapter
	return fx
}

func (fx *adapterFixture) loginAck(t *testing.T, channel string) {
	t.Helper()
	url := testEndpoints.PrivateSpot
	if channel == loginChannelFutures {
		url = testEndpoints.PrivateFutures
	}
	fx.transports[url].handlers.OnMessage([]byte(`{"header":{"channel":"` + channel + `","status":200}}`))
}

func TestPublicOnlyAdapterOnlineAfterConnect(t *testing.T) {
	fx := newAdapterFixture(t, false)

	require.Equal(t, schema.StatusOnline, fx.adapter.Status())
	require.Len(t, fx.transports, 3)
	require.NotContains(t, fx.transports, testEndpoints.PrivateSpot)
}

func TestAuthenticatedAdapterOfflineUntilLoginAck(t *testing.T) {
	fx := newAdapterFixture(t, true)

	require.Equal(t, schema.StatusOffline, fx.adapter.Status())

	// Each private socket sent its signed login frame on open.
	for _, url := range []string{testEndpoints.PrivateSpot, testEndpoints.PrivateFutures} {
		frames := fx.transports[url].sentFrames()
		require.Len(t, frames, 1)
		var frame loginFrame
		require.NoError(t, json.Unmarshal(frames[0], &frame))
		require.Equal(t, "api", frame.Event)
		require.Equal(t, "test-key", frame.Payload.APIKey)
		require.Equal(t, "acct-1", frame.Payload.ReqID)
	}

	fx.loginAck(t, loginChannelSpot)
	require.Equal(t, schema.StatusOnline, fx.adapter.Status())
}

func TestLoginRejectClosesEverySocketOnce(t *testing.T) {
	fx := newAdapterFixture(t, true)

	fx.transports[testEndpoints.PrivateFutures].handlers.OnMessage(
		[]byte(`{"header":{"channel":"futures.login","status":401},"data":{"errs":{"label":"AUTH_FAIL","message":"bad key"}}}`))

	require.Equal(t, schema.StatusOffline, fx.adapter.Status())
	require.Equal(t, 1, fx.recorder.disconnectCount())
	for url, ft := range fx.transports {
		require.Equal(t, 1, ft.closeCount(), "transport %s", url)
	}
}

func TestConnectFailurePurges(t *testing.T) {
	factory := func(url string, handlers Handlers) Transport {
		ft := newFakeTransport()
		ft.handlers = handlers
		if url == testEndpoints.PublicFuturesBTC {
			ft.connectErr = errors.New("dial refused")
		}
		return ft
	}

	_, err := New(context.Background(), AdapterConfig{
		Account:   "acct-1",
		Endpoints: testEndpoints,
		Registry:  sessions.NewRegistry(),
		Factory:   factory,
		Clock:     fixedClock(1700000000),
	})
	require.Error(t, err)
}

func TestNewRejectsIncompleteEndpoints(t *testing.T) {
	_, err := New(context.Background(), AdapterConfig{
		Account:   "acct-1",
		Endpoints: config.Endpoints{PublicSpot: "ws://only-spot"},
	})
	require.Error(t, err)

	// Private endpoints are only required when authenticating.
	publicOnly := testEndpoints
	publicOnly.PrivateSpot = ""
	publicOnly.PrivateFutures = ""
	adapter, err := New(context.Background(), AdapterConfig{
		Account:   "acct-1",
		Endpoints: publicOnly,
		Registry:  sessions.NewRegistry(),
		Factory: func(url string, handlers Handlers) Transport {
			ft := newFakeTransport()
			ft.handlers = handlers
			return ft
		},
	})
	require.NoError(t, err)
	require.Equal(t, schema.StatusOnline, adapter.Status())
}

func TestPurgeTerminalAndIdempotent(t *testing.T) {
	fx := newAdapterFixture(t, false)

	fx.adapter.Purge()
	fx.adapter.Purge()
	require.Equal(t, schema.StatusOffline, fx.adapter.Status())
	for _, ft := range fx.transports {
		require.Equal(t, 1, ft.closeCount())
	}
}

func TestLogoutAnnouncesDisconnectUnlessPurged(t *testing.T) {
	fx := newAdapterFixture(t, false)

	fx.adapter.Logout()
	require.Equal(t, 1, fx.recorder.disconnectCount())

	fx.adapter.Purge()
	fx.adapter.Logout()
	require.Equal(t, 1, fx.recorder.disconnectCount())
}

func TestPlaceStreamsSyntheticReceiptToOrderSessions(t *testing.T) {
	fx := newAdapterFixture(t, true)
	fx.loginAck(t, loginChannelSpot)

	sender := &fakeSender{}
	fx.registry.Bind("sess-1", sender)
	fx.adapter.SetOrderChannel("sess-1", "cred-1")

	err := fx.adapter.Place(context.Background(), schema.PlaceRequest{
		Symbol:       schema.Symbol{Base: "BTC_USDT", Kind: schema.MarketFuture},
		Instrument:   schema.InstrumentLinearPerpetual,
		OrderID:      101,
		Side:         schema.SideBuy,
		Price:        43000,
		Quantity:     0.01,
		Source:       schema.SourceMarket,
		CredentialID: "cred-1",
	})
	require.NoError(t, err)

	payloads := sender.received()
	require.Len(t, payloads, 1)
	var env schema.Envelope
	require.NoError(t, json.Unmarshal(payloads[0], &env))
	require.Equal(t, "GATEIO", env.Exchange)
	require.Equal(t, "acct-1", env.Name)
	require.Equal(t, "cred-1", env.CredentialID)
	require.NotEmpty(t, env.TraceID)
	require.Len(t, env.Data, 1)
	require.Equal(t, "order", env.Data[0].Channel)

	raw, err := json.Marshal(env.Data[0].Data)
	require.NoError(t, err)
	var msg orderStateMessage
	require.NoError(t, json.Unmarshal(raw, &msg))
	require.Equal(t, int64(101), msg.InternalOrderID)
	require.Equal(t, "market", msg.RequestSource)
	require.NotNil(t, msg.AlgorithmID)
	require.Equal(t, "twap-1", *msg.AlgorithmID)
	require.Len(t, msg.Data, 1)
	require.Equal(t, "received", msg.Data[0].State)
	require.Equal(t, "BTC_USDT@FUTURE", msg.Data[0].Symbol)

	// Synthetic receipts never hit the mirror.
	require.Zero(t, fx.mirror.count())
}

func TestSendNativeOrderLatency(t *testing.T) {
	fx := newAdapterFixture(t, true)
	fx.loginAck(t, loginChannelSpot)

	quality := &fakeSender{}
	fx.registry.Bind("q-1", quality)
	fx.adapter.SetOrderExecutionQualityChannel("q-1", "cred-1")

	fx.adapter.StartLatencyMeasurement(101, "twap-1", 1_000_000)
	require.NoError(t, fx.adapter.Place(context.Background(), schema.PlaceRequest{
		Symbol:       schema.Symbol{Base: "BTC_USDT", Kind: schema.MarketFuture},
		Instrument:   schema.InstrumentLinearPerpetual,
		OrderID:      101,
		Side:         schema.SideBuy,
		Price:        43000,
		Quantity:     0.01,
		Source:       schema.SourceAlgo,
		CredentialID: "cred-1",
	}))

	fx.adapter.SendNativeOrderLatency(context.Background(), 101)

	payloads := quality.received()
	require.Len(t, payloads, 1)
	var env schema.Envelope
	require.NoError(t, json.Unmarshal(payloads[0], &env))
	require.Equal(t, "cred-1", env.CredentialID)
	require.Equal(t, "order_execution_quality", env.Data[0].Channel)

	raw, err := json.Marshal(env.Data[0].Data)
	require.NoError(t, err)
	var reports []latencyReport
	require.NoError(t, json.Unmarshal(raw, &reports))
	require.Len(t, reports, 1)
	require.Equal(t, "twap-1", reports[0].AlgorithmID)
	require.Positive(t, reports[0].InternalLatency)
	require.Nil(t, reports[0].Slippage)
}

func TestSendNativeOrderLatencyCarriesExchangeFigures(t *testing.T) {
	fx := newAdapterFixture(t, true)
	fx.loginAck(t, loginChannelSpot)

	quality := &fakeSender{}
	fx.registry.Bind("q-1", quality)
	fx.adapter.SetOrderExecutionQualityChannel("q-1", "cred-1")

	fx.adapter.StartLatencyMeasurement(101, "twap-1", 1_000_000)
	require.NoError(t, fx.adapter.Place(context.Background(), schema.PlaceRequest{
		Symbol:       schema.Symbol{Base: "BTC_USDT", Kind: schema.MarketFuture},
		Instrument:   schema.InstrumentLinearPerpetual,
		OrderID:      101,
		Side:         schema.SideBuy,
		Price:        43000,
		Quantity:     0.01,
		Source:       schema.SourceAlgo,
		CredentialID: "cred-1",
	}))

	fx.adapter.RecordExchangeLatency(101, 2500)
	fx.adapter.SetSlippage(101, 0.12)
	fx.adapter.SendNativeOrderLatency(context.Background(), 101)

	payloads := quality.received()
	require.Len(t, payloads, 1)
	var env schema.Envelope
	require.NoError(t, json.Unmarshal(payloads[0], &env))

	raw, err := json.Marshal(env.Data[0].Data)
	require.NoError(t, err)
	var reports []latencyReport
	require.NoError(t, json.Unmarshal(raw, &reports))
	require.Len(t, reports, 1)
	require.Equal(t, int64(2500), reports[0].ExchangeLatency)
	require.Equal(t, reports[0].InternalLatency+2500, reports[0].RoundTripLatency)
	require.NotNil(t, reports[0].Slippage)
	require.Equal(t, 0.12, *reports[0].Slippage)
}

func TestSendNativeOrderLatencyMissingMeasurement(t *testing.T) {
	fx := newAdapterFixture(t, false)

	quality := &fakeSender{}
	fx.registry.Bind("q-1", quality)
	fx.adapter.SetOrderExecutionQualityChannel("q-1", "cred-1")

	fx.adapter.SendNativeOrderLatency(context.Background(), 999)
	require.Empty(t, quality.received())
}

func TestSendFinalLatencyInfo(t *testing.T) {
	fx := newAdapterFixture(t, true)
	fx.loginAck(t, loginChannelSpot)

	quality := &fakeSender{}
	fx.registry.Bind("q-1", quality)
	fx.adapter.SetOrderExecutionQualityChannel("q-1", "cred-1")

	fx.adapter.StartLatencyMeasurement(101, "twap-1", 0)
	require.NoError(t, fx.adapter.Place(context.Background(), schema.PlaceRequest{
		Symbol:     schema.Symbol{Base: "BTC_USDT", Kind: schema.MarketFuture},
		Instrument: schema.InstrumentLinearPerpetual,
		OrderID:    101,
		Side:       schema.SideBuy,
		Price:      43000,
		Quantity:   0.01,
		Source:     schema.SourceAlgo,
	}))

	fx.adapter.SendFinalLatencyInfo(context.Background(), "twap-1", "cred-1")
	require.Len(t, quality.received(), 1)

	// Blank credential logs and returns.
	fx.adapter.SendFinalLatencyInfo(context.Background(), "twap-1", "")
	require.Len(t, quality.received(), 1)
}

func TestModifySagaObservableUntilResolved(t *testing.T) {
	fx := newAdapterFixture(t, true)
	fx.loginAck(t, loginChannelSpot)

	require.NoError(t, fx.adapter.Place(context.Background(), schema.PlaceRequest{
		Symbol:       schema.Symbol{Base: "BTC_USDT", Kind: schema.MarketFuture},
		Instrument:   schema.InstrumentLinearPerpetual,
		OrderID:      101,
		Side:         schema.SideBuy,
		Price:        43000,
		Quantity:     0.01,
		Source:       schema.SourceAlgo,
		CredentialID: "cred-1",
	}))

	_, ok := fx.adapter.ModifySaga(101)
	require.False(t, ok)

	require.NoError(t, fx.adapter.Modify(context.Background(), 101, 0.02, 43500, schema.SourceAlgo))

	saga, ok := fx.adapter.ModifySaga(101)
	require.True(t, ok)
	require.Equal(t, StepPending, saga.Cancel)
	require.Equal(t, StepPending, saga.Place)

	futures := fx.transports[testEndpoints.PrivateFutures]
	futures.handlers.OnMessage([]byte(`{"header":{"channel":"futures.order_cancel","status":200,"request_id":"101"}}`))
	saga, ok = fx.adapter.ModifySaga(101)
	require.True(t, ok)
	require.Equal(t, StepAccepted, saga.Cancel)
	require.Equal(t, StepPending, saga.Place)

	futures.handlers.OnMessage([]byte(`{"header":{"channel":"futures.order_place","status":200,"request_id":"101"}}`))
	_, ok = fx.adapter.ModifySaga(101)
	require.False(t, ok)
}

func TestSendRejectResponse(t *testing.T) {
	fx := newAdapterFixture(t, false)

	sender := &fakeSender{}
	fx.registry.Bind("sess-1", sender)
	fx.adapter.SetOrderChannel("sess-1", "cred-1")

	fx.adapter.SendRejectResponse(context.Background(), RejectMessage{
		CredentialID:  "cred-1",
		AlgorithmID:   42,
		Price:         100,
		Quantity:      2,
		Side:          schema.SideSell,
		Symbol:        "BTC_USDT@SPOT",
		Message:       "risk check failed",
		RequestSource: "algo",
	})

	payloads := sender.received()
	require.Len(t, payloads, 1)
	var env schema.Envelope
	require.NoError(t, json.Unmarshal(payloads[0], &env))

	raw, err := json.Marshal(env.Data[0].Data)
	require.NoError(t, err)
	var payload rejectPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	require.Equal(t, int64(42), payload.AlgorithmID)
	require.Equal(t, "1", payload.Code)
	require.Len(t, payload.Data, 1)
	require.Equal(t, "order_reject", payload.Data[0].State)
	require.Equal(t, "000", payload.Data[0].SCode)
	require.Equal(t, "risk check failed", payload.Data[0].SMsg)
	require.Equal(t, strconv.FormatInt(int64(1700000000)*100+42, 10), payload.Data[0].OrdID)

	// Rejects are mirrored.
	require.Equal(t, 1, fx.mirror.count())
}

func TestSendRejectResponseNeedsIdentity(t *testing.T) {
	fx := newAdapterFixture(t, false)

	sender := &fakeSender{}
	fx.registry.Bind("sess-1", sender)
	fx.adapter.SetOrderChannel("sess-1", "cred-1")

	fx.adapter.SendRejectResponse(context.Background(), RejectMessage{Message: "no identity"})
	require.Empty(t, sender.received())
}

func TestSendAlgoExecutionStatus(t *testing.T) {
	fx := newAdapterFixture(t, false)

	sender := &fakeSender{}
	fx.registry.Bind("sess-1", sender)
	fx.adapter.SetOrderChannel("sess-1", "cred-1")

	fx.adapter.SendAlgoExecutionStatus(context.Background(), AlgoExecutionStatus{
		Message:       "slicing",
		IsInitialized: true,
		AlgorithmID:   42,
		Symbol:        "BTC_USDT@FUTURE",
	})

	payloads := sender.received()
	require.Len(t, payloads, 1)
	var env schema.Envelope
	require.NoError(t, json.Unmarshal(payloads[0], &env))
	require.Equal(t, "algo_execution_status", env.Data[0].Channel)

	// Status relays bypass the mirror.
	require.Zero(t, fx.mirror.count())
}

func TestSnapshotSurfaces(t *testing.T) {
	fx := newAdapterFixture(t, false)

	require.Equal(t, map[string]any{"response": "SUCCESS"}, fx.adapter.OpenOrders())
	require.Empty(t, fx.adapter.AccountData())
	require.Empty(t, fx.adapter.PositionData())
	require.Empty(t, fx.adapter.OrderData())
	require.Empty(t, fx.adapter.OrderbookData())
	require.Empty(t, fx.adapter.LastTradesData())
	require.Zero(t, fx.adapter.CorrelatedOrders())
}

func TestMarketDataSubscriptionsRouteBySymbol(t *testing.T) {
	fx := newAdapterFixture(t, false)

	require.NoError(t, fx.adapter.SubscribeOrderbooks(context.Background(),
		[]string{"BTC_USD@FUTURE", "ETH_USDT@SPOT", "not-a-symbol"}))

	require.Len(t, fx.transports[testEndpoints.PublicFuturesBTC].sentFrames(), 1)
	require.Len(t, fx.transports[testEndpoints.PublicSpot].sentFrames(), 1)
	require.Empty(t, fx.transports[testEndpoints.PublicFuturesUSDT].sentFrames())
}
