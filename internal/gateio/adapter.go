package gateio

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/quantarc/gateio-gateway/config"
	"github.com/quantarc/gateio-gateway/errs"
	"github.com/quantarc/gateio-gateway/internal/observability"
	"github.com/quantarc/gateio-gateway/internal/schema"
	"github.com/quantarc/gateio-gateway/internal/sessions"
)

const sendTimeout = 5 * time.Second

// AdapterConfig carries everything needed to construct one adapter instance.
type AdapterConfig struct {
	Account      string
	Key          string
	Secret       string
	Passphrase   string
	Authenticate bool
	SimTrading   bool

	Endpoints config.Endpoints
	Callbacks schema.Callbacks
	Registry  *sessions.Registry
	Mirror    MirrorStore

	// Factory defaults to the production websocket transport.
	Factory TransportFactory
	// Clock defaults to time.Now; injected for deterministic tests.
	Clock func() time.Time
	// AlgoResolver maps an internal order id to its algorithm id, if the
	// order was algorithm-driven.
	AlgoResolver func(orderID int64) (string, bool)

	MaxFanoutWorkers int
}

// Adapter is the Gate.io exchange-connectivity adapter. One instance serves
// one account; a purged instance cannot be reused.
type Adapter struct {
	account      string
	authenticate bool
	simTrading   bool
	callbacks    schema.Callbacks
	algoResolver func(orderID int64) (string, bool)

	channels   *ChannelSet
	store      *CorrelationStore
	encoder    *RequestEncoder
	dispatcher *ResponseDispatcher
	latency    *LatencyRecorder
	fanout     *Fanout
	signer     *Signer
}

var _ schema.ExchangeAdapter = (*Adapter)(nil)

// New constructs the adapter, attaches transports for the five logical
// channels, connects the public sockets unconditionally, and, when
// authentication is requested, connects the private sockets. Each private
// socket sends its signed login frame from the transport's on-open hook.
func New(ctx context.Context, cfg AdapterConfig) (*Adapter, error) {
	if err := cfg.Endpoints.Validate(cfg.Authenticate); err != nil {
		return nil, err
	}
	factory := cfg.Factory
	if factory == nil {
		factory = NewWebsocketTransport
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	a := &Adapter{
		account:      cfg.Account,
		authenticate: cfg.Authenticate,
		simTrading:   cfg.SimTrading,
		callbacks:    cfg.Callbacks,
		algoResolver: cfg.AlgoResolver,
		channels:     NewChannelSet(),
		store:        NewCorrelationStore(clock),
		latency:      NewLatencyRecorder(),
		signer:       NewSigner(cfg.Account, cfg.Key, cfg.Secret, clock),
	}
	a.fanout = NewFanout(cfg.Registry, cfg.Mirror, cfg.MaxFanoutWorkers, clock)

	sagas := newModifyTracker()
	a.encoder = NewRequestEncoder(a.channels, a.store, a.latency, sagas, a.streamOrderState, clock)
	a.dispatcher = NewResponseDispatcher(a.channels, a.encoder, sagas, cfg.Callbacks, cfg.Account)

	a.channels.Attach(ChannelPublicSpot, factory(cfg.Endpoints.PublicSpot, a.publicHandlers(ChannelPublicSpot)))
	a.channels.Attach(ChannelPublicFuturesUSDT, factory(cfg.Endpoints.PublicFuturesUSDT, a.publicHandlers(ChannelPublicFuturesUSDT)))
	a.channels.Attach(ChannelPublicFuturesBTC, factory(cfg.Endpoints.PublicFuturesBTC, a.publicHandlers(ChannelPublicFuturesBTC)))
	if cfg.Authenticate {
		a.channels.Attach(ChannelPrivateSpot, factory(cfg.Endpoints.PrivateSpot, a.privateHandlers(ChannelPrivateSpot, loginChannelSpot)))
		a.channels.Attach(ChannelPrivateFutures, factory(cfg.Endpoints.PrivateFutures, a.privateHandlers(ChannelPrivateFutures, loginChannelFutures)))
	}

	channels := []Channel{ChannelPublicSpot, ChannelPublicFuturesUSDT, ChannelPublicFuturesBTC}
	if cfg.Authenticate {
		channels = append(channels, ChannelPrivateSpot, ChannelPrivateFutures)
	}
	var connectErrs []error
	for _, ch := range channels {
		if err := a.channels.Connect(ctx, ch); err != nil {
			connectErrs = append(connectErrs, err)
		}
	}
	if err := observability.AggregateErrors("connect channels", connectErrs); err != nil {
		a.channels.Purge()
		return nil, err
	}
	return a, nil
}

// publicHandlers wires lifecycle hooks for a public market-data socket: it
// goes ONLINE as soon as the transport opens, no authentication involved.
func (a *Adapter) publicHandlers(ch Channel) Handlers {
	return Handlers{
		OnOpen: func() {
			a.channels.SetStatus(ch, schema.StatusOnline)
		},
		OnMessage: func(payload []byte) {
			observability.Telemetry().IncCounter("gateway_public_frames_total", 1,
				map[string]string{"channel": ch.String()})
		},
		OnClose: func(err error) {
			a.channels.SetStatus(ch, schema.StatusOffline)
			observability.Log().Error("public socket closed",
				observability.Field{Key: "channel", Value: ch.String()},
				observability.Field{Key: "error", Value: err.Error()},
			)
		},
	}
}

// privateHandlers wires the three private-channel reactions: on-open sends
// the signed login frame as a continuation, on-message forwards to the
// dispatcher, on-close marks the channel OFFLINE and clears authentication.
func (a *Adapter) privateHandlers(ch Channel, loginChannel string) Handlers {
	return Handlers{
		OnOpen: func() {
			a.sendLogin(ch, loginChannel)
		},
		OnMessage: func(payload []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			a.dispatcher.Dispatch(ctx, payload)
		},
		OnClose: func(err error) {
			a.channels.SetStatus(ch, schema.StatusOffline)
			a.channels.SetAuthenticated(false)
			observability.Log().Error("private socket closed",
				observability.Field{Key: "channel", Value: ch.String()},
				observability.Field{Key: "error", Value: err.Error()},
			)
		},
	}
}

func (a *Adapter) sendLogin(ch Channel, loginChannel string) {
	frame, err := a.signer.LoginFrame(loginChannel)
	if err != nil {
		observability.Log().Error("build login frame",
			observability.Field{Key: "channel", Value: loginChannel},
			observability.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := a.channels.Send(ctx, ch, frame); err != nil {
		observability.Log().Error("send login frame",
			observability.Field{Key: "channel", Value: loginChannel},
			observability.Field{Key: "error", Value: err.Error()},
		)
		return
	}
	observability.Log().Info("sent private login",
		observability.Field{Key: "channel", Value: loginChannel})
}

// Place submits a new order.
func (a *Adapter) Place(ctx context.Context, req schema.PlaceRequest) error {
	return a.encoder.Place(ctx, req)
}

// Cancel cancels a previously placed order by internal order id.
func (a *Adapter) Cancel(ctx context.Context, orderID int64, source schema.RequestSource) error {
	return a.encoder.Cancel(ctx, orderID, source)
}

// CancelByExchangeID cancels an order the adapter never placed itself.
func (a *Adapter) CancelByExchangeID(ctx context.Context, exchangeOrderID string, symbol schema.Symbol, instrument schema.InstrumentType, source schema.RequestSource) error {
	return a.encoder.CancelByExchangeID(ctx, exchangeOrderID, symbol, instrument, source)
}

// Modify amends price and quantity as a cancel-then-place saga.
func (a *Adapter) Modify(ctx context.Context, orderID int64, quantity, price float64, source schema.RequestSource) error {
	return a.encoder.Modify(ctx, orderID, quantity, price, source)
}

// SubscribeOrderbooks subscribes order-book updates for the given symbols.
func (a *Adapter) SubscribeOrderbooks(ctx context.Context, symbols []string) error {
	return a.encoder.SubscribeOrderbooks(ctx, schema.ParseSymbols(symbols))
}

// UnsubscribeOrderbooks reverses SubscribeOrderbooks.
func (a *Adapter) UnsubscribeOrderbooks(ctx context.Context, symbols []string) error {
	return a.encoder.UnsubscribeOrderbooks(ctx, schema.ParseSymbols(symbols))
}

// SubscribeTickers subscribes both ticker channels for the given symbols.
func (a *Adapter) SubscribeTickers(ctx context.Context, symbols []string) error {
	return a.encoder.SubscribeTickers(ctx, schema.ParseSymbols(symbols))
}

// UnsubscribeTickers reverses SubscribeTickers.
func (a *Adapter) UnsubscribeTickers(ctx context.Context, symbols []string) error {
	return a.encoder.UnsubscribeTickers(ctx, schema.ParseSymbols(symbols))
}

// SubscribeTrades subscribes public trades for the given symbols.
func (a *Adapter) SubscribeTrades(ctx context.Context, symbols []string) error {
	return a.encoder.SubscribeTrades(ctx, schema.ParseSymbols(symbols))
}

// UnsubscribeTrades reverses SubscribeTrades.
func (a *Adapter) UnsubscribeTrades(ctx context.Context, symbols []string) error {
	return a.encoder.UnsubscribeTrades(ctx, schema.ParseSymbols(symbols))
}

// SubscribeFunding is a callable no-op pending exchange-side support.
func (a *Adapter) SubscribeFunding(ctx context.Context, symbols []string) error {
	return a.encoder.SubscribeFunding(ctx, schema.ParseSymbols(symbols))
}

// SubscribeTopOfBook is a callable no-op pending exchange-side support.
func (a *Adapter) SubscribeTopOfBook(ctx context.Context, symbols []string) error {
	return a.encoder.SubscribeTopOfBook(ctx, schema.ParseSymbols(symbols))
}

// SubscribePositions is a callable no-op pending exchange-side support.
func (a *Adapter) SubscribePositions(ctx context.Context) error {
	return a.encoder.SubscribePositions(ctx)
}

// UnsubscribePositions is a callable no-op pending exchange-side support.
func (a *Adapter) UnsubscribePositions(ctx context.Context) error {
	return a.encoder.UnsubscribePositions(ctx)
}

// SubscribeAccount is a callable no-op pending exchange-side support.
func (a *Adapter) SubscribeAccount(ctx context.Context) error {
	return a.encoder.SubscribeAccount(ctx)
}

// Status derives the aggregate adapter state from channel statuses: ONLINE
// iff every required channel is ONLINE, where required means the public
// sockets plus, for authenticated adapters, both private sockets and an
// accepted login.
func (a *Adapter) Status() schema.ChannelStatus {
	if a.channels.Purged() {
		return schema.StatusOffline
	}
	statuses := a.channels.Statuses()
	required := []Channel{ChannelPublicSpot, ChannelPublicFuturesUSDT, ChannelPublicFuturesBTC}
	if a.authenticate {
		if !a.channels.Authenticated() {
			return schema.StatusOffline
		}
		required = append(required, ChannelPrivateSpot, ChannelPrivateFutures)
	}
	for _, ch := range required {
		if statuses[ch] != schema.StatusOnline {
			return schema.StatusOffline
		}
	}
	return schema.StatusOnline
}

// Purge tears the adapter down. Terminal and idempotent.
func (a *Adapter) Purge() {
	a.channels.Purge()
}

// Logout announces a gateway disconnect unless the adapter is already purged.
func (a *Adapter) Logout() {
	if a.channels.Purged() {
		return
	}
	if a.callbacks.GatewayDisconnect != nil {
		a.callbacks.GatewayDisconnect(errs.ExchangeGateio, a.account)
	}
}

// SimTrading reports whether the adapter targets the simulated environment.
func (a *Adapter) SimTrading() bool { return a.simTrading }

// SetOrderChannel subscribes a downstream session to order events.
func (a *Adapter) SetOrderChannel(sessionID, credentialID string) {
	a.fanout.SubscribeOrders(sessionID, credentialID)
}

// UnsetOrderChannel removes a session from the order-event audience.
func (a *Adapter) UnsetOrderChannel(sessionID string) {
	a.fanout.UnsubscribeOrders(sessionID)
}

// SetOrderExecutionQualityChannel subscribes a session to latency reports.
func (a *Adapter) SetOrderExecutionQualityChannel(sessionID, credentialID string) {
	a.fanout.SubscribeExecutionQuality(sessionID, credentialID)
}

// UnsetOrderExecutionQualityChannel removes a session from latency reports.
func (a *Adapter) UnsetOrderExecutionQualityChannel(sessionID string) {
	a.fanout.UnsubscribeExecutionQuality(sessionID)
}

// StartLatencyMeasurement opens the internal-latency window for an order.
// The OEMS calls this before Place; the encoder closes the window right
// before dispatch.
func (a *Adapter) StartLatencyMeasurement(orderID int64, algoID string, startNanos int64) {
	a.latency.StartMeasurement(orderID, algoID, startNanos)
}

// RecordExchangeLatency attaches the exchange-side latency to an order's
// completed measurement, finishing the round-trip figure. The OEMS calls
// this once it learns the acknowledgement timestamp.
func (a *Adapter) RecordExchangeLatency(orderID, micros int64) {
	a.latency.RecordExchangeLatency(orderID, micros)
}

// SetSlippage records the slippage percentage for a completed order.
func (a *Adapter) SetSlippage(orderID int64, pct float64) {
	a.latency.SetSlippage(orderID, pct)
}

// ModifySaga reports the in-flight cancel-then-place saga for an order, so
// a partial modify failure is observable beyond the logs.
func (a *Adapter) ModifySaga(orderID int64) (ModifySaga, bool) {
	return a.encoder.Saga(strconv.FormatInt(orderID, 10))
}

// orderStateData is one per-order entry inside a streamed order event.
type orderStateData struct {
	OrdID    string  `json:"ordId"`
	State    string  `json:"state"`
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Side     string  `json:"side"`
}

// orderStateMessage is the order-channel payload streamed to subscribers.
type orderStateMessage struct {
	ID              string           `json:"id"`
	InternalOrderID int64            `json:"internal_order_id"`
	RequestSource   string           `json:"request_source"`
	AlgorithmID     *string          `json:"algorithm_id"`
	Data            []orderStateData `json:"data"`
}

// streamOrderState builds the normalized order-state envelope for a client
// id and fans it out. The synthetic "received" state skips the mirror.
func (a *Adapter) streamOrderState(ctx context.Context, clientID int64, exchangeOrderID, state string) {
	orderID, ok := a.store.OrderForClient(clientID)
	if !ok {
		observability.Log().Error("stream order state: unknown client id",
			observability.Field{Key: "client_id", Value: clientID})
		return
	}
	attrs, _ := a.store.Attributes(clientID)

	ordID := exchangeOrderID
	if ordID == "" {
		ordID = strconv.FormatInt(a.store.GenerateClientID(orderID), 10)
	}
	msg := orderStateMessage{
		ID:              strconv.FormatInt(clientID, 10),
		InternalOrderID: orderID,
		RequestSource:   string(attrs.Source),
		Data: []orderStateData{{
			OrdID:    ordID,
			State:    state,
			Symbol:   attrs.Symbol.String(),
			Price:    attrs.Price,
			Quantity: attrs.Quantity,
			Side:     attrs.Side.String(),
		}},
	}
	if a.algoResolver != nil {
		if algoID, found := a.algoResolver(orderID); found {
			msg.AlgorithmID = &algoID
		}
	}

	env := schema.Envelope{
		Exchange: errs.ExchangeGateio,
		Name:     a.account,
		TraceID:  uuid.NewString(),
		Data:     []schema.ChannelData{{Channel: "order", Data: msg}},
	}
	if cred, found := a.store.CredentialFor(orderID); found {
		env.CredentialID = cred
	}
	if err := a.fanout.BroadcastOrder(ctx, env, state); err != nil {
		observability.Log().Error("broadcast order state",
			observability.Field{Key: "state", Value: state},
			observability.Field{Key: "error", Value: err.Error()},
		)
	}
}

// latencyReport is the execution-quality payload. Timestamps are
// nanoseconds, latencies microseconds; slippage is null when unmeasured.
type latencyReport struct {
	StartTime        int64    `json:"start_time"`
	EndTime          int64    `json:"end_time"`
	InternalLatency  int64    `json:"internal_latency"`
	ExchangeLatency  int64    `json:"exchange_latency"`
	RoundTripLatency int64    `json:"round_trip_latency"`
	AlgorithmID      string   `json:"algorithm_id"`
	Slippage         *float64 `json:"slippage_percentage"`
	Timestamp        string   `json:"ts"`
}

// SendNativeOrderLatency reports the completed measurement for one order to
// execution-quality subscribers. Missing measurement or credential logs and
// returns without retry.
func (a *Adapter) SendNativeOrderLatency(ctx context.Context, orderID int64) {
	m, ok := a.latency.Measurement(orderID)
	if !ok {
		observability.Log().Error("latency information missing",
			observability.Field{Key: "order_id", Value: orderID})
		return
	}
	cred, ok := a.store.CredentialFor(orderID)
	if !ok {
		observability.Log().Error("credential id missing for latency report",
			observability.Field{Key: "order_id", Value: orderID})
		return
	}
	a.sendLatencyReport(ctx, m, cred)
}

// SendFinalLatencyInfo reports the rolling per-algorithm average. A missing
// average or blank credential logs and returns.
func (a *Adapter) SendFinalLatencyInfo(ctx context.Context, algoID, credentialID string) {
	avg, ok := a.latency.AverageByAlgo(algoID)
	if !ok || credentialID == "" {
		observability.Log().Error("latency info or credential id missing",
			observability.Field{Key: "algorithm_id", Value: algoID})
		return
	}
	a.sendLatencyReport(ctx, avg, credentialID)
}

func (a *Adapter) sendLatencyReport(ctx context.Context, m Measurement, credentialID string) {
	report := latencyReport{
		StartTime:        m.StartNanos,
		EndTime:          m.EndNanos,
		InternalLatency:  m.InternalMicros,
		ExchangeLatency:  m.ExchangeMicros,
		RoundTripLatency: m.RoundTripMicros,
		AlgorithmID:      m.AlgoID,
		Timestamp:        isoTimestamp(time.Now()),
	}
	if m.Slippage != SlippageUnset {
		slippage := m.Slippage
		report.Slippage = &slippage
	}
	env := schema.Envelope{
		Exchange:     errs.ExchangeGateio,
		Name:         a.account,
		CredentialID: credentialID,
		TraceID:      uuid.NewString(),
		Data: []schema.ChannelData{{
			Channel: "order_execution_quality",
			Data:    []latencyReport{report},
		}},
	}
	if err := a.fanout.BroadcastExecutionQuality(ctx, env); err != nil {
		observability.Log().Error("broadcast latency report",
			observability.Field{Key: "error", Value: err.Error()})
	}
}

// RejectMessage carries the inputs for a synthesized order rejection.
type RejectMessage struct {
	CredentialID  string
	AlgorithmID   int64
	OrderID       string
	Price         float64
	Quantity      float64
	Side          schema.Side
	Symbol        string
	Message       string
	RequestSource string
}

type rejectOrderEntry struct {
	ClOrdID  string  `json:"clOrdId"`
	OrdID    string  `json:"ordId"`
	Price    float64 `json:"price"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	SCode    string  `json:"sCode"`
	SMsg     string  `json:"sMsg"`
	State    string  `json:"state"`
	Symbol   string  `json:"symbol"`
	Tag      string  `json:"tag"`
	TS       string  `json:"ts"`
}

type rejectPayload struct {
	AlgorithmID   int64              `json:"algorithm_id"`
	Code          string             `json:"code"`
	Data          []rejectOrderEntry `json:"data"`
	ID            string             `json:"id"`
	InTime        string             `json:"inTime"`
	Msg           string             `json:"msg"`
	Op            string             `json:"op"`
	OutTime       string             `json:"outTime"`
	RequestSource string             `json:"request_source"`
}

// SendRejectResponse builds and fans out an order_reject envelope. When the
// message carries no order id, a client id derived from the algorithm id
// stands in.
func (a *Adapter) SendRejectResponse(ctx context.Context, msg RejectMessage) {
	ordID := msg.OrderID
	if ordID == "" {
		if msg.AlgorithmID == 0 {
			observability.Log().Error("missing order id and algorithm id in reject response")
			return
		}
		ordID = strconv.FormatInt(a.store.GenerateClientID(msg.AlgorithmID), 10)
	}

	payload := rejectPayload{
		AlgorithmID: msg.AlgorithmID,
		Code:        "1",
		Data: []rejectOrderEntry{{
			OrdID:    ordID,
			Price:    msg.Price,
			Side:     msg.Side.String(),
			Quantity: msg.Quantity,
			SCode:    "000",
			SMsg:     msg.Message,
			State:    "order_reject",
			Symbol:   msg.Symbol,
		}},
		Op:            "order",
		RequestSource: msg.RequestSource,
	}
	env := schema.Envelope{
		Exchange:     errs.ExchangeGateio,
		Name:         a.account,
		CredentialID: msg.CredentialID,
		TraceID:      uuid.NewString(),
		Data:         []schema.ChannelData{{Channel: "order", Data: payload}},
	}
	if err := a.fanout.BroadcastOrder(ctx, env, "order_reject"); err != nil {
		observability.Log().Error("broadcast reject response",
			observability.Field{Key: "error", Value: err.Error()})
	}
}

// AlgoExecutionStatus relays an algorithm's execution progress.
type AlgoExecutionStatus struct {
	Message       string `json:"message"`
	IsInitialized bool   `json:"is_initialized"`
	RequestSource string `json:"request_source"`
	AlgorithmID   int64  `json:"algorithm_id"`
	Symbol        string `json:"symbol"`
	IsCompleted   bool   `json:"is_completed"`
	Timestamp     string `json:"ts,omitempty"`
}

// SendAlgoExecutionStatus relays an algorithm execution status to order
// subscribers.
func (a *Adapter) SendAlgoExecutionStatus(ctx context.Context, status AlgoExecutionStatus) {
	status.Timestamp = isoTimestamp(time.Now())
	env := schema.Envelope{
		Exchange: errs.ExchangeGateio,
		Name:     a.account,
		TraceID:  uuid.NewString(),
		Data:     []schema.ChannelData{{Channel: "algo_execution_status", Data: status}},
	}
	if err := a.fanout.BroadcastOrder(ctx, env, receivedState); err != nil {
		observability.Log().Error("broadcast algo execution status",
			observability.Field{Key: "error", Value: err.Error()})
	}
}

// OpenOrders returns the open-order snapshot surface.
func (a *Adapter) OpenOrders() map[string]any {
	return map[string]any{"response": "SUCCESS"}
}

// AccountData returns the latest account snapshot.
func (a *Adapter) AccountData() map[string]any { return map[string]any{} }

// PositionData returns the latest position snapshot.
func (a *Adapter) PositionData() map[string]any { return map[string]any{} }

// OrderData returns the order snapshot surface.
func (a *Adapter) OrderData() []any { return []any{} }

// OrderbookData returns the orderbook snapshot surface.
func (a *Adapter) OrderbookData() []any { return []any{} }

// LastTradesData returns the recent-trade snapshot surface.
func (a *Adapter) LastTradesData() []any { return []any{} }

// CorrelatedOrders reports the correlation store size, for monitoring
// unbounded growth under long-running sessions.
func (a *Adapter) CorrelatedOrders() int { return a.store.Len() }

// isoTimestamp formats a UTC timestamp as ISO-8601 with milliseconds.
func isoTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
