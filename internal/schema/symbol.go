// Package schema defines the canonical types shared between the adapter core
// and the OEMS-facing surface.
package schema

import (
	"strings"

	"github.com/quantarc/gateio-gateway/errs"
)

// MarketKind distinguishes the market segment encoded in a symbol.
type MarketKind string

const (
	// MarketSpot marks spot-market symbols.
	MarketSpot MarketKind = "SPOT"
	// MarketFuture marks futures-market symbols.
	MarketFuture MarketKind = "FUTURE"
)

// Valid reports whether the market kind is recognised.
func (k MarketKind) Valid() bool {
	return k == MarketSpot || k == MarketFuture
}

// Symbol is a parsed instrument symbol. The wire form is "<base>@<kind>",
// e.g. "BTC_USDT@FUTURE"; Base is the exchange-facing contract or currency
// pair and Kind selects the market segment.
type Symbol struct {
	Base string
	Kind MarketKind
}

// ParseSymbol validates and splits a raw symbol at its market-kind delimiter.
func ParseSymbol(raw string) (Symbol, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Symbol{}, errs.New(errs.ExchangeGateio, errs.CodeInvalid, errs.WithMessage("symbol required"))
	}
	base, kind, found := strings.Cut(trimmed, "@")
	if !found || base == "" {
		return Symbol{}, errs.New(errs.ExchangeGateio, errs.CodeInvalid,
			errs.WithMessage("symbol must be <base>@<market>"), errs.WithRawMessage(raw))
	}
	mk := MarketKind(strings.ToUpper(kind))
	if !mk.Valid() {
		return Symbol{}, errs.New(errs.ExchangeGateio, errs.CodeInvalid,
			errs.WithMessage("unknown market kind"), errs.WithRawMessage(raw))
	}
	return Symbol{Base: base, Kind: mk}, nil
}

// ParseSymbols parses a batch of raw symbols, skipping invalid entries.
func ParseSymbols(raws []string) []Symbol {
	out := make([]Symbol, 0, len(raws))
	for _, raw := range raws {
		sym, err := ParseSymbol(raw)
		if err != nil {
			continue
		}
		out = append(out, sym)
	}
	return out
}

// String reassembles the wire form of the symbol.
func (s Symbol) String() string {
	return s.Base + "@" + string(s.Kind)
}

// IsBTCQuoted reports whether the futures contract settles on the
// BTC-denominated quote and therefore routes to the BTC public socket.
func (s Symbol) IsBTCQuoted() bool {
	return s.Base == "BTC_USD"
}

// InstrumentType identifies the contract structure of an order.
type InstrumentType int

const (
	// InstrumentUnknown is the zero value for unrecognised instruments.
	InstrumentUnknown InstrumentType = iota
	// InstrumentSpot represents spot instruments.
	InstrumentSpot
	// InstrumentLinearPerpetual represents USDT-margined perpetual swaps.
	InstrumentLinearPerpetual
	// InstrumentInversePerpetual represents coin-margined perpetual swaps.
	InstrumentInversePerpetual
	// InstrumentLinearFuture represents USDT-margined dated futures.
	InstrumentLinearFuture
	// InstrumentInverseFuture represents coin-margined dated futures.
	InstrumentInverseFuture
	// InstrumentOption represents options.
	InstrumentOption
)

var instrumentNames = map[InstrumentType]string{
	InstrumentUnknown:          "UNKNOWN",
	InstrumentSpot:             "SPOT",
	InstrumentLinearPerpetual:  "LINEAR_PERPETUAL",
	InstrumentInversePerpetual: "INVERSE_PERPETUAL",
	InstrumentLinearFuture:     "LINEAR_FUTURE",
	InstrumentInverseFuture:    "INVERSE_FUTURE",
	InstrumentOption:           "OPTION",
}

func (t InstrumentType) String() string {
	if name, ok := instrumentNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsSpot reports whether the instrument trades on the spot market.
func (t InstrumentType) IsSpot() bool { return t == InstrumentSpot }

// IsPerpetual reports whether the instrument is a perpetual swap.
func (t InstrumentType) IsPerpetual() bool {
	return t == InstrumentLinearPerpetual || t == InstrumentInversePerpetual
}

// Side identifies order direction.
type Side int

const (
	// SideBuy marks buy orders.
	SideBuy Side = iota
	// SideSell marks sell orders.
	SideSell
)

// Wire returns the lowercase exchange representation.
func (s Side) Wire() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// OrderType identifies the execution style of an order.
type OrderType int

const (
	// OrderLimit marks limit orders.
	OrderLimit OrderType = iota
	// OrderMarket marks market orders.
	OrderMarket
)

// Wire returns the lowercase exchange representation.
func (t OrderType) Wire() string {
	if t == OrderMarket {
		return "market"
	}
	return "limit"
}

// RequestSource identifies who originated an order request.
type RequestSource string

const (
	// SourceAlgo marks algorithm-driven requests.
	SourceAlgo RequestSource = "algo"
	// SourceMarket marks externally tagged market requests.
	SourceMarket RequestSource = "market"
	// SourceLimit marks externally tagged limit requests.
	SourceLimit RequestSource = "limit"
	// SourceManual marks operator-driven requests.
	SourceManual RequestSource = "manual"
)

// ExternallyTagged reports whether the source denotes an externally tagged
// market or limit request. The exchange sends no separate receipt
// acknowledgement for these, so the adapter emits a synthetic "received"
// lifecycle event at place time.
func (s RequestSource) ExternallyTagged() bool {
	return s == SourceMarket || s == SourceLimit
}
