package gateio

import (
	"context"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/quantarc/gateio-gateway/errs"
	"github.com/quantarc/gateio-gateway/internal/observability"
	"github.com/quantarc/gateio-gateway/internal/schema"
)

const (
	placeChannelSpot     = "spot.order_place"
	placeChannelFutures  = "futures.order_place"
	cancelChannelSpot    = "spot.order_cancel"
	cancelChannelFutures = "futures.order_cancel"
	amendChannelSpot     = "spot.order_amend"
	amendChannelFutures  = "futures.order_amend"
)

type apiPayload struct {
	ReqID    string `json:"req_id"`
	ReqParam any    `json:"req_param"`
}

// apiFrame is the outbound order-operation wire frame.
type apiFrame struct {
	Time    int64      `json:"time"`
	Channel string     `json:"channel"`
	Event   string     `json:"event"`
	Payload apiPayload `json:"payload"`
}

// placeParams covers both market segments; the futures variant carries
// {price, text, size, contract}, the spot variant {currency_pair, type,
// account, side, amount} plus the shared price and tag.
type placeParams struct {
	Price        string  `json:"price"`
	Text         string  `json:"text"`
	Size         float64 `json:"size,omitempty"`
	Contract     string  `json:"contract,omitempty"`
	CurrencyPair string  `json:"currency_pair,omitempty"`
	Type         string  `json:"type,omitempty"`
	Account      string  `json:"account,omitempty"`
	Side         string  `json:"side,omitempty"`
	Amount       float64 `json:"amount,omitempty"`
}

// cancelParams carries the order reference; currency_pair only for spot.
type cancelParams struct {
	OrderID      any    `json:"order_id"`
	CurrencyPair string `json:"currency_pair,omitempty"`
}

// StepState tracks one half of a modify saga.
type StepState int

const (
	// StepPending means no acknowledgement has arrived yet.
	StepPending StepState = iota
	// StepAccepted means the exchange acknowledged the step.
	StepAccepted
	// StepRejected means the exchange rejected the step.
	StepRejected
)

// ModifySaga is the observable state of one cancel-then-place amend. Partial
// failure is visible: either step may reject independently and no rollback
// is performed.
type ModifySaga struct {
	OrderID int64
	Cancel  StepState
	Place   StepState
}

// Done reports whether both steps have resolved.
func (s ModifySaga) Done() bool {
	return s.Cancel != StepPending && s.Place != StepPending
}

// modifyTracker indexes in-flight modify sagas by request id.
type modifyTracker struct {
	mu    sync.Mutex
	sagas map[string]ModifySaga
}

func newModifyTracker() *modifyTracker {
	return &modifyTracker{sagas: make(map[string]ModifySaga)}
}

func (t *modifyTracker) begin(reqID string, orderID int64) {
	t.mu.Lock()
	t.sagas[reqID] = ModifySaga{OrderID: orderID}
	t.mu.Unlock()
}

// resolveCancel records the cancel-step outcome for an in-flight saga.
func (t *modifyTracker) resolveCancel(reqID string, accepted bool) (ModifySaga, bool) {
	return t.resolve(reqID, accepted, true)
}

// resolvePlace records the place-step outcome for an in-flight saga.
func (t *modifyTracker) resolvePlace(reqID string, accepted bool) (ModifySaga, bool) {
	return t.resolve(reqID, accepted, false)
}

func (t *modifyTracker) resolve(reqID string, accepted, cancelStep bool) (ModifySaga, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	saga, ok := t.sagas[reqID]
	if !ok {
		return ModifySaga{}, false
	}
	state := StepRejected
	if accepted {
		state = StepAccepted
	}
	if cancelStep {
		saga.Cancel = state
	} else {
		saga.Place = state
	}
	if saga.Done() {
		delete(t.sagas, reqID)
	} else {
		t.sagas[reqID] = saga
	}
	return saga, true
}

// Saga returns the in-flight saga for a request id, if any.
func (t *modifyTracker) Saga(reqID string) (ModifySaga, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	saga, ok := t.sagas[reqID]
	return saga, ok
}

// RequestEncoder builds outbound protocol frames and routes them through the
// channel set. It owns the write side of the correlation store.
type RequestEncoder struct {
	channels *ChannelSet
	store    *CorrelationStore
	latency  *LatencyRecorder
	sagas    *modifyTracker

	// stream emits a synthetic order-state event for externally tagged
	// sources; nil disables the emission.
	stream func(ctx context.Context, clientID int64, exchangeOrderID, state string)

	now func() time.Time
}

// NewRequestEncoder wires an encoder over the channel set and shared state.
// The saga tracker is shared with the response dispatcher, which marks the
// step outcomes as acknowledgements arrive.
func NewRequestEncoder(channels *ChannelSet, store *CorrelationStore, latency *LatencyRecorder,
	sagas *modifyTracker,
	stream func(ctx context.Context, clientID int64, exchangeOrderID, state string),
	now func() time.Time) *RequestEncoder {
	if now == nil {
		now = time.Now
	}
	if sagas == nil {
		sagas = newModifyTracker()
	}
	return &RequestEncoder{
		channels: channels,
		store:    store,
		latency:  latency,
		sagas:    sagas,
		stream:   stream,
		now:      now,
	}
}

// Place encodes and dispatches an order placement. The correlation entry is
// recorded after dispatch; externally tagged market/limit sources get a
// synthetic "received" event because the exchange sends no receipt for them.
func (e *RequestEncoder) Place(ctx context.Context, req schema.PlaceRequest) error {
	clientID := e.store.GenerateClientID(req.OrderID)
	params := placeParams{
		Price: decimal.NewFromFloat(req.Price).String(),
		Text:  ClientTag(clientID),
	}
	if req.Instrument.IsSpot() {
		params.CurrencyPair = req.Symbol.Base
		params.Type = req.OrderType.Wire()
		params.Account = "spot"
		params.Side = req.Side.Wire()
		params.Amount = req.Quantity
	} else {
		params.Size = req.Quantity
		params.Contract = req.Symbol.Base
	}

	channel := placeChannelFutures
	if req.Instrument.IsSpot() {
		channel = placeChannelSpot
	}
	payload, err := e.marshalFrame(channel, strconv.FormatInt(req.OrderID, 10), params)
	if err != nil {
		return err
	}

	// Close the internal-latency window immediately before dispatch.
	e.latency.StopMeasurement(req.OrderID, time.Now().UnixNano())

	if err := e.channels.Send(ctx, PrivateChannelFor(req.Instrument), payload); err != nil {
		return err
	}

	e.store.Insert(req.OrderID, clientID, OrderAttributes{
		Side:      req.Side,
		OrderType: req.OrderType,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Symbol:    req.Symbol,
		Source:    req.Source,
	}, req.CredentialID, req.Instrument)

	if req.Source.ExternallyTagged() && e.stream != nil {
		e.stream(ctx, clientID, "", receivedState)
	}

	observability.Log().Debug("sent place order",
		observability.Field{Key: "symbol", Value: req.Symbol.String()},
		observability.Field{Key: "side", Value: req.Side.String()},
		observability.Field{Key: "price", Value: req.Price},
		observability.Field{Key: "order_id", Value: req.OrderID},
	)
	return nil
}

// Cancel encodes and dispatches a cancel for a previously placed order. A
// correlation miss aborts locally with a typed error.
func (e *RequestEncoder) Cancel(ctx context.Context, orderID int64, source schema.RequestSource) error {
	rec, ok := e.store.Record(orderID)
	if !ok {
		err := errs.OrderNotFound(orderID)
		observability.Log().Error("cancel order", observability.Field{Key: "error", Value: err.Error()})
		return err
	}

	params := cancelParams{OrderID: orderID}
	channel := cancelChannelFutures
	if rec.Instrument.IsSpot() {
		channel = cancelChannelSpot
		params.CurrencyPair = rec.Symbol.Base
	}
	payload, err := e.marshalFrame(channel, strconv.FormatInt(orderID, 10), params)
	if err != nil {
		return err
	}
	if err := e.channels.Send(ctx, PrivateChannelFor(rec.Instrument), payload); err != nil {
		return err
	}

	observability.Log().Debug("sent cancel order",
		observability.Field{Key: "symbol", Value: rec.Symbol.String()},
		observability.Field{Key: "order_id", Value: orderID},
		observability.Field{Key: "source", Value: string(source)},
	)
	return nil
}

// CancelByExchangeID cancels an order the adapter never placed itself, so no
// correlation entry exists; the caller supplies symbol and instrument.
func (e *RequestEncoder) CancelByExchangeID(ctx context.Context, exchangeOrderID string, symbol schema.Symbol, instrument schema.InstrumentType, source schema.RequestSource) error {
	params := cancelParams{OrderID: exchangeOrderID}
	channel := cancelChannelFutures
	if instrument.IsSpot() {
		channel = cancelChannelSpot
		params.CurrencyPair = symbol.Base
	}
	payload, err := e.marshalFrame(channel, exchangeOrderID, params)
	if err != nil {
		return err
	}
	if err := e.channels.Send(ctx, PrivateChannelFor(instrument), payload); err != nil {
		return err
	}

	observability.Log().Debug("sent cancel order by exchange id",
		observability.Field{Key: "exchange_order_id", Value: exchangeOrderID},
		observability.Field{Key: "source", Value: string(source)},
	)
	return nil
}

// Modify amends price and quantity as a best-effort cancel-then-place saga
// reusing the original order id and recorded credential. Not a transaction:
// either step may reject independently and no rollback is performed.
func (e *RequestEncoder) Modify(ctx context.Context, orderID int64, quantity, price float64, source schema.RequestSource) error {
	rec, ok := e.store.Record(orderID)
	if !ok {
		err := errs.OrderNotFound(orderID)
		observability.Log().Error("modify order", observability.Field{Key: "error", Value: err.Error()})
		return err
	}
	attrs, ok := e.store.Attributes(rec.ClientID)
	if !ok {
		err := errs.OrderNotFound(orderID)
		observability.Log().Error("modify order attributes missing",
			observability.Field{Key: "error", Value: err.Error()})
		return err
	}

	e.sagas.begin(strconv.FormatInt(orderID, 10), orderID)

	var stepErrs []error
	if err := e.Cancel(ctx, orderID, source); err != nil {
		stepErrs = append(stepErrs, err)
	}
	if err := e.Place(ctx, schema.PlaceRequest{
		Symbol:       rec.Symbol,
		Instrument:   rec.Instrument,
		OrderID:      orderID,
		OrderType:    attrs.OrderType,
		Side:         attrs.Side,
		Price:        price,
		Quantity:     quantity,
		Source:       source,
		CredentialID: rec.CredentialID,
	}); err != nil {
		stepErrs = append(stepErrs, err)
	}
	return observability.AggregateErrors("modify order", stepErrs,
		observability.Field{Key: "order_id", Value: orderID})
}

// Saga reports the in-flight modify saga for an order, keyed by the request
// id the order operations carry.
func (e *RequestEncoder) Saga(reqID string) (ModifySaga, bool) {
	return e.sagas.Saga(reqID)
}

func (e *RequestEncoder) marshalFrame(channel, reqID string, params any) ([]byte, error) {
	frame := apiFrame{
		Time:    e.now().Unix(),
		Channel: channel,
		Event:   "api",
		Payload: apiPayload{ReqID: reqID, ReqParam: params},
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil, errs.New(errs.ExchangeGateio, errs.CodeInvalid,
			errs.WithMessage("marshal "+channel+" frame"), errs.WithCause(err))
	}
	return payload, nil
}
