package gateio

import (
	"context"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/quantarc/gateio-gateway/errs"
	"github.com/quantarc/gateio-gateway/internal/observability"
	"github.com/quantarc/gateio-gateway/internal/schema"
)

const statusOK = 200

// statusCode tolerates the exchange sending the header status as either a
// JSON string or a number.
type statusCode int

func (s *statusCode) UnmarshalJSON(data []byte) error {
	if len(data) >= 2 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		code, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		*s = statusCode(code)
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return err
	}
	*s = statusCode(code)
	return nil
}

type inboundHeader struct {
	Channel   string     `json:"channel"`
	Status    statusCode `json:"status"`
	RequestID string     `json:"request_id"`
}

type inboundErrs struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

type inboundData struct {
	Errs   inboundErrs     `json:"errs"`
	Result json.RawMessage `json:"result"`
}

// inboundFrame is the private-channel acknowledgement envelope.
type inboundFrame struct {
	Header *inboundHeader `json:"header"`
	Data   inboundData    `json:"data"`
}

// sessionSubscriber is the slice of the request encoder the dispatcher
// drives: post-login account subscriptions and fail-fast teardown.
type sessionSubscriber interface {
	SubscribeFills(ctx context.Context) error
	SubscribePositions(ctx context.Context) error
	SubscribeAccount(ctx context.Context) error
	UnsubscribeFills(ctx context.Context) error
	UnsubscribePositions(ctx context.Context) error
}

// ResponseDispatcher parses inbound private-channel frames, drives channel
// status transitions, and funnels every branch into one normalized operation
// response so the OEMS never observes wire-format detail.
type ResponseDispatcher struct {
	channels  *ChannelSet
	encoder   sessionSubscriber
	sagas     *modifyTracker
	callbacks schema.Callbacks
	account   string

	mu              sync.Mutex
	loginSubscribed bool
}

// NewResponseDispatcher wires a dispatcher over the channel set, the encoder
// (for post-login subscriptions), and the shared modify-saga tracker.
func NewResponseDispatcher(channels *ChannelSet, encoder sessionSubscriber, sagas *modifyTracker,
	callbacks schema.Callbacks, account string) *ResponseDispatcher {
	return &ResponseDispatcher{
		channels:  channels,
		encoder:   encoder,
		sagas:     sagas,
		callbacks: callbacks,
		account:   account,
	}
}

// Dispatch handles one inbound frame. Parse failures are logged and dropped;
// frames without a recognized envelope are ignored.
func (d *ResponseDispatcher) Dispatch(ctx context.Context, payload []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		observability.Log().Error("parse inbound frame",
			observability.Field{Key: "error", Value: err.Error()},
		)
		observability.Telemetry().IncCounter("gateway_inbound_frames_total", 1,
			map[string]string{"outcome": "parse_error"})
		return
	}
	if frame.Header == nil {
		return
	}

	channel := frame.Header.Channel
	status := int(frame.Header.Status)
	success := status == statusOK

	outcome := "reject"
	if success {
		outcome = "ack"
	}
	observability.Telemetry().IncCounter("gateway_inbound_frames_total", 1,
		map[string]string{"channel": channel, "outcome": outcome})

	switch channel {
	case loginChannelSpot, loginChannelFutures:
		d.handleLogin(ctx, frame, status, success)
	case placeChannelSpot, placeChannelFutures:
		d.handlePlace(frame, status, success)
	case cancelChannelSpot, cancelChannelFutures:
		d.handleCancel(frame, status, success)
	case amendChannelSpot, amendChannelFutures:
		d.handleAmend(frame, status, success)
	default:
		d.handleUnrecognized(ctx, frame, status)
	}
}

func (d *ResponseDispatcher) handleLogin(ctx context.Context, frame inboundFrame, status int, success bool) {
	if !success {
		d.respond("ERROR", schema.EventDetail{
			Label:   frame.Data.Errs.Label,
			Status:  status,
			Message: "FAILED",
			Event:   schema.EventLoginFail,
		})
		observability.Log().Error("login rejected",
			observability.Field{Key: "label", Value: frame.Data.Errs.Label},
			observability.Field{Key: "status", Value: status},
		)
		d.teardown(ctx)
		return
	}

	d.channels.SetAuthenticated(true)
	for _, ch := range []Channel{
		ChannelPublicSpot, ChannelPublicFuturesUSDT, ChannelPublicFuturesBTC,
		ChannelPrivateSpot, ChannelPrivateFutures,
	} {
		d.channels.SetStatus(ch, schema.StatusOnline)
	}
	d.respond("SUCCESS", schema.EventDetail{
		Label:   "OK",
		Status:  status,
		Message: "SUCCESS",
		Event:   schema.EventLoginAccept,
	})
	observability.Log().Info("logged in successfully")

	d.mu.Lock()
	alreadySubscribed := d.loginSubscribed
	d.loginSubscribed = true
	d.mu.Unlock()
	if !alreadySubscribed {
		var subErrs []error
		if err := d.encoder.SubscribeFills(ctx); err != nil {
			subErrs = append(subErrs, err)
		}
		if err := d.encoder.SubscribePositions(ctx); err != nil {
			subErrs = append(subErrs, err)
		}
		if err := d.encoder.SubscribeAccount(ctx); err != nil {
			subErrs = append(subErrs, err)
		}
		_ = observability.AggregateErrors("post-login subscriptions", subErrs)
	}
}

func (d *ResponseDispatcher) handlePlace(frame inboundFrame, status int, success bool) {
	if success {
		d.respond("SUCCESS", schema.EventDetail{
			Label:   "OK",
			Status:  status,
			Message: "Order Request sent",
			Event:   schema.EventPlaceAck,
		})
	} else {
		d.respond("ERROR", schema.EventDetail{
			Label:   frame.Data.Errs.Label,
			Status:  status,
			Message: "FAILED",
			Event:   schema.EventPlaceReject,
		})
		observability.Log().Error("place order rejected",
			observability.Field{Key: "label", Value: frame.Data.Errs.Label},
			observability.Field{Key: "status", Value: status},
		)
	}
	d.resolveSagaStep(frame.Header.RequestID, success, false)
}

func (d *ResponseDispatcher) handleCancel(frame inboundFrame, status int, success bool) {
	if success {
		d.respond("SUCCESS", schema.EventDetail{
			Label:   "OK",
			Status:  status,
			Message: "Cancel Request sent",
			Event:   schema.EventCancelAccept,
		})
	} else {
		d.respond("ERROR", schema.EventDetail{
			Label:   frame.Data.Errs.Label,
			Status:  status,
			Message: "FAILED",
			Event:   schema.EventCancelFail,
		})
		observability.Log().Error("cancel order rejected",
			observability.Field{Key: "label", Value: frame.Data.Errs.Label},
			observability.Field{Key: "status", Value: status},
		)
	}
	d.resolveSagaStep(frame.Header.RequestID, success, true)
}

func (d *ResponseDispatcher) handleAmend(frame inboundFrame, status int, success bool) {
	if success {
		d.respond("SUCCESS", schema.EventDetail{
			Label:   "OK",
			Status:  status,
			Message: "Modify Request sent",
			Event:   schema.EventModifyAccept,
		})
		return
	}
	d.respond("ERROR", schema.EventDetail{
		Label:   frame.Data.Errs.Label,
		Status:  status,
		Message: "FAILED",
		Event:   schema.EventModifyFail,
	})
	observability.Log().Error("modify order rejected",
		observability.Field{Key: "label", Value: frame.Data.Errs.Label},
		observability.Field{Key: "status", Value: status},
	)
}

// handleUnrecognized applies the fail-fast policy: any frame on an unknown
// channel tears both spot and futures sessions down together.
func (d *ResponseDispatcher) handleUnrecognized(ctx context.Context, frame inboundFrame, status int) {
	d.respond("ERROR", schema.EventDetail{
		Label:   frame.Data.Errs.Label,
		Status:  status,
		Message: "FAILED",
		Event:   schema.EventNone,
	})
	observability.Log().Error("unexpected inbound channel",
		observability.Field{Key: "channel", Value: frame.Header.Channel},
		observability.Field{Key: "status", Value: status},
	)
	d.teardown(ctx)
}

func (d *ResponseDispatcher) teardown(ctx context.Context) {
	var tearErrs []error
	if err := d.encoder.UnsubscribePositions(ctx); err != nil {
		tearErrs = append(tearErrs, err)
	}
	if err := d.encoder.UnsubscribeFills(ctx); err != nil {
		tearErrs = append(tearErrs, err)
	}
	_ = observability.AggregateErrors("session teardown", tearErrs)

	if d.callbacks.GatewayDisconnect != nil {
		d.callbacks.GatewayDisconnect(errs.ExchangeGateio, d.account)
	}
	d.channels.Shutdown()
}

func (d *ResponseDispatcher) resolveSagaStep(reqID string, accepted, cancelStep bool) {
	if d.sagas == nil || reqID == "" {
		return
	}
	var saga ModifySaga
	var ok bool
	if cancelStep {
		saga, ok = d.sagas.resolveCancel(reqID, accepted)
	} else {
		saga, ok = d.sagas.resolvePlace(reqID, accepted)
	}
	if !ok {
		return
	}
	if saga.Done() && (saga.Cancel == StepRejected || saga.Place == StepRejected) {
		observability.Log().Error("modify saga completed with rejection",
			observability.Field{Key: "order_id", Value: saga.OrderID},
			observability.Field{Key: "cancel_accepted", Value: saga.Cancel == StepAccepted},
			observability.Field{Key: "place_accepted", Value: saga.Place == StepAccepted},
		)
	}
}

func (d *ResponseDispatcher) respond(result string, detail schema.EventDetail) {
	if d.callbacks.OperationResponse != nil {
		d.callbacks.OperationResponse(result, detail)
	}
}
