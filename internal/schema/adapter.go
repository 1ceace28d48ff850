package schema

import "context"

// Callbacks are the hooks the owning OEMS supplies to an adapter. Every hook
// is optional; the adapter treats nil hooks as no-ops.
type Callbacks struct {
	// OperationResponse receives the normalized outcome of every exchange
	// operation. Result is "SUCCESS" or "ERROR".
	OperationResponse func(result string, detail EventDetail)
	// GatewayDisconnect signals that the adapter session is no longer
	// usable and external reconnection is required.
	GatewayDisconnect func(exchange, account string)
}

// ExchangeAdapter is the capability interface an exchange connectivity
// adapter exposes to the OEMS. One instance serves one account/exchange
// pairing.
type ExchangeAdapter interface {
	// Place submits a new order.
	Place(ctx context.Context, req PlaceRequest) error
	// Cancel cancels a previously placed order by internal order id.
	Cancel(ctx context.Context, orderID int64, source RequestSource) error
	// CancelByExchangeID cancels an order the adapter never placed itself.
	CancelByExchangeID(ctx context.Context, exchangeOrderID string, symbol Symbol, instrument InstrumentType, source RequestSource) error
	// Modify amends price and quantity as a cancel-then-place saga.
	Modify(ctx context.Context, orderID int64, quantity, price float64, source RequestSource) error

	SubscribeOrderbooks(ctx context.Context, symbols []string) error
	UnsubscribeOrderbooks(ctx context.Context, symbols []string) error
	SubscribeTickers(ctx context.Context, symbols []string) error
	UnsubscribeTickers(ctx context.Context, symbols []string) error
	SubscribeTrades(ctx context.Context, symbols []string) error
	UnsubscribeTrades(ctx context.Context, symbols []string) error
	SubscribeFunding(ctx context.Context, symbols []string) error
	SubscribeTopOfBook(ctx context.Context, symbols []string) error
	SubscribePositions(ctx context.Context) error
	UnsubscribePositions(ctx context.Context) error
	SubscribeAccount(ctx context.Context) error

	// Status reports the aggregate adapter state derived from channel
	// statuses and the authenticated flag.
	Status() ChannelStatus
	// Purge tears the adapter down. Terminal and idempotent; a purged
	// adapter cannot be reused.
	Purge()
	// Logout announces a gateway disconnect unless already purged.
	Logout()

	SetOrderChannel(sessionID, credentialID string)
	UnsetOrderChannel(sessionID string)
	SetOrderExecutionQualityChannel(sessionID, credentialID string)
	UnsetOrderExecutionQualityChannel(sessionID string)
}

// PlaceRequest carries the parameters of an order placement.
type PlaceRequest struct {
	Symbol       Symbol
	Instrument   InstrumentType
	OrderID      int64
	OrderType    OrderType
	Side         Side
	Price        float64
	Quantity     float64
	Source       RequestSource
	CredentialID string
	TradeMode    string
}
