package gateio

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/quantarc/gateio-gateway/errs"
	"github.com/quantarc/gateio-gateway/internal/observability"
	"github.com/quantarc/gateio-gateway/internal/schema"
)

const (
	orderbookChannelSpot    = "spot.order_book_update"
	orderbookChannelFutures = "futures.order_book_update"
	tickersChannelSpot      = "spot.tickers"
	tickersChannelFutures   = "futures.tickers"
	bookTickerChannelSpot   = "spot.book_ticker"
	bookTickerChannelFut    = "futures.book_ticker"
	tradesChannelSpot       = "spot.trades"
	tradesChannelFutures    = "futures.trades"

	orderbookInterval = "100ms"
	orderbookDepth    = "20"
)

// streamFrame is the outbound market-data subscription wire frame.
type streamFrame struct {
	Time    int64    `json:"time"`
	Channel string   `json:"channel"`
	Event   string   `json:"event"`
	Payload []string `json:"payload"`
}

// SubscribeOrderbooks subscribes the order-book-update channel for each
// symbol on its public socket.
func (e *RequestEncoder) SubscribeOrderbooks(ctx context.Context, symbols []schema.Symbol) error {
	return e.streamOrderbooks(ctx, "subscribe", symbols)
}

// UnsubscribeOrderbooks reverses SubscribeOrderbooks.
func (e *RequestEncoder) UnsubscribeOrderbooks(ctx context.Context, symbols []schema.Symbol) error {
	return e.streamOrderbooks(ctx, "unsubscribe", symbols)
}

func (e *RequestEncoder) streamOrderbooks(ctx context.Context, event string, symbols []schema.Symbol) error {
	var sendErrs []error
	for _, sym := range symbols {
		channel := orderbookChannelFutures
		payload := []string{sym.Base, orderbookInterval, orderbookDepth}
		if sym.Kind == schema.MarketSpot {
			channel = orderbookChannelSpot
			payload = []string{sym.Base, orderbookInterval}
		}
		if err := e.sendStreamFrame(ctx, PublicChannelFor(sym), channel, event, payload); err != nil {
			sendErrs = append(sendErrs, err)
		}
	}
	return observability.AggregateErrors("orderbook "+event, sendErrs)
}

// SubscribeTickers subscribes both ticker channels (tickers and book_ticker)
// for each symbol.
func (e *RequestEncoder) SubscribeTickers(ctx context.Context, symbols []schema.Symbol) error {
	return e.streamTickers(ctx, "subscribe", symbols)
}

// UnsubscribeTickers reverses SubscribeTickers.
func (e *RequestEncoder) UnsubscribeTickers(ctx context.Context, symbols []schema.Symbol) error {
	return e.streamTickers(ctx, "unsubscribe", symbols)
}

func (e *RequestEncoder) streamTickers(ctx context.Context, event string, symbols []schema.Symbol) error {
	var sendErrs []error
	for _, sym := range symbols {
		tickers, bookTicker := tickersChannelFutures, bookTickerChannelFut
		if sym.Kind == schema.MarketSpot {
			tickers, bookTicker = tickersChannelSpot, bookTickerChannelSpot
		}
		socket := PublicChannelFor(sym)
		if err := e.sendStreamFrame(ctx, socket, tickers, event, []string{sym.Base}); err != nil {
			sendErrs = append(sendErrs, err)
		}
		if err := e.sendStreamFrame(ctx, socket, bookTicker, event, []string{sym.Base}); err != nil {
			sendErrs = append(sendErrs, err)
		}
	}
	return observability.AggregateErrors("tickers "+event, sendErrs)
}

// SubscribeTrades subscribes the public trades channel for each symbol.
func (e *RequestEncoder) SubscribeTrades(ctx context.Context, symbols []schema.Symbol) error {
	return e.streamTrades(ctx, "subscribe", symbols)
}

// UnsubscribeTrades reverses SubscribeTrades.
func (e *RequestEncoder) UnsubscribeTrades(ctx context.Context, symbols []schema.Symbol) error {
	return e.streamTrades(ctx, "unsubscribe", symbols)
}

func (e *RequestEncoder) streamTrades(ctx context.Context, event string, symbols []schema.Symbol) error {
	var sendErrs []error
	for _, sym := range symbols {
		channel := tradesChannelFutures
		if sym.Kind == schema.MarketSpot {
			channel = tradesChannelSpot
		}
		if err := e.sendStreamFrame(ctx, PublicChannelFor(sym), channel, event, []string{sym.Base}); err != nil {
			sendErrs = append(sendErrs, err)
		}
	}
	return observability.AggregateErrors("trades "+event, sendErrs)
}

// SubscribeFunding is a callable no-op pending exchange-side support.
func (e *RequestEncoder) SubscribeFunding(ctx context.Context, symbols []schema.Symbol) error {
	return nil
}

// SubscribeTopOfBook is a callable no-op pending exchange-side support.
func (e *RequestEncoder) SubscribeTopOfBook(ctx context.Context, symbols []schema.Symbol) error {
	return nil
}

// SubscribePositions is a callable no-op pending exchange-side support.
func (e *RequestEncoder) SubscribePositions(ctx context.Context) error { return nil }

// UnsubscribePositions is a callable no-op pending exchange-side support.
func (e *RequestEncoder) UnsubscribePositions(ctx context.Context) error { return nil }

// SubscribeAccount is a callable no-op pending exchange-side support.
func (e *RequestEncoder) SubscribeAccount(ctx context.Context) error { return nil }

// SubscribeFills is a callable no-op pending exchange-side support.
func (e *RequestEncoder) SubscribeFills(ctx context.Context) error { return nil }

// UnsubscribeFills is a callable no-op pending exchange-side support.
func (e *RequestEncoder) UnsubscribeFills(ctx context.Context) error { return nil }

func (e *RequestEncoder) sendStreamFrame(ctx context.Context, socket Channel, channel, event string, payload []string) error {
	frame := streamFrame{
		Time:    e.now().Unix(),
		Channel: channel,
		Event:   event,
		Payload: payload,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return errs.New(errs.ExchangeGateio, errs.CodeInvalid,
			errs.WithMessage("marshal "+channel+" frame"), errs.WithCause(err))
	}
	return e.channels.Send(ctx, socket, data)
}
