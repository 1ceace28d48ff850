// Package errs provides structured error envelopes for the gateway.
package errs

import (
	"strconv"
	"strings"
)

// ExchangeGateio names the venue this gateway integrates.
const ExchangeGateio = "GATEIO"

// Code identifies an error category from the adapter's taxonomy.
type Code string

const (
	// CodeNetwork indicates a transport failure: parse error or disconnect.
	CodeNetwork Code = "network"
	// CodeExchange indicates a non-success status returned by the exchange.
	CodeExchange Code = "exchange_error"
	// CodeAuth indicates an authentication failure, fatal for the session.
	CodeAuth Code = "auth"
	// CodeNotFound indicates a correlation-lookup miss.
	CodeNotFound Code = "not_found"
	// CodeInvalid indicates invalid caller input.
	CodeInvalid Code = "invalid_request"
	// CodePurged indicates an operation against a purged adapter.
	CodePurged Code = "purged"
)

// CanonicalCode captures exchange-agnostic failure categories.
type CanonicalCode string

const (
	// CanonicalUnknown captures uncategorized failures.
	CanonicalUnknown CanonicalCode = "unknown"
	// CanonicalOrderNotFound indicates the referenced order is unknown.
	CanonicalOrderNotFound CanonicalCode = "order_not_found"
	// CanonicalCredentialMissing indicates a missing credential association.
	CanonicalCredentialMissing CanonicalCode = "credential_missing"
	// CanonicalAuthFailed indicates the exchange rejected the login.
	CanonicalAuthFailed CanonicalCode = "auth_failed"
	// CanonicalParseFailed indicates an unparseable inbound frame.
	CanonicalParseFailed CanonicalCode = "parse_failed"
)

// E is the structured error envelope used across the gateway.
type E struct {
	Exchange  string
	Code      Code
	Status    int
	RawCode   string
	RawMsg    string
	Message   string
	Canonical CanonicalCode

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the exchange and error code.
func New(exchange string, code Code, opts ...Option) *E {
	e := &E{
		Exchange:  strings.TrimSpace(exchange),
		Code:      code,
		Canonical: CanonicalUnknown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) { e.Message = trimmed }
}

// WithStatus records the numeric status the exchange returned.
func WithStatus(status int) Option {
	return func(e *E) { e.Status = status }
}

// WithRawCode captures the raw exchange error label.
func WithRawCode(code string) Option {
	trimmed := strings.TrimSpace(code)
	return func(e *E) { e.RawCode = trimmed }
}

// WithRawMessage captures the raw exchange error message.
func WithRawMessage(msg string) Option {
	return func(e *E) { e.RawMsg = msg }
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) { e.cause = err }
}

// WithCanonicalCode sets the canonical failure category.
func WithCanonicalCode(code CanonicalCode) Option {
	return func(e *E) {
		if strings.TrimSpace(string(code)) == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = code
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 8)

	exchange := strings.TrimSpace(e.Exchange)
	if exchange == "" {
		exchange = "unknown"
	}
	parts = append(parts, "exchange="+exchange)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if e.Status > 0 {
		parts = append(parts, "status="+strconv.Itoa(e.Status))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.RawCode != "" {
		parts = append(parts, "raw_code="+strconv.Quote(e.RawCode))
	}
	if e.RawMsg != "" {
		parts = append(parts, "raw_msg="+strconv.Quote(e.RawMsg))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// OrderNotFound returns a standardized correlation-miss error.
func OrderNotFound(orderID int64) *E {
	return New(ExchangeGateio, CodeNotFound,
		WithMessage("order id "+strconv.FormatInt(orderID, 10)+" not found in correlation store"),
		WithCanonicalCode(CanonicalOrderNotFound))
}
