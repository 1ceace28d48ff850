package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ExchangeGateio, CodeExchange,
		WithStatus(400),
		WithMessage("order rejected"),
		WithRawCode("BALANCE_NOT_ENOUGH"),
		WithRawMessage("insufficient balance"))

	msg := err.Error()
	require.Contains(t, msg, "exchange=GATEIO")
	require.Contains(t, msg, "code=exchange_error")
	require.Contains(t, msg, "status=400")
	require.Contains(t, msg, `message="order rejected"`)
	require.Contains(t, msg, `raw_code="BALANCE_NOT_ENOUGH"`)
}

func TestNilReceiver(t *testing.T) {
	var err *E
	require.Equal(t, "<nil>", err.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := New(ExchangeGateio, CodeNetwork, WithCause(cause))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), `cause="connection reset"`)
}

func TestCanonicalCodeDefaultsToUnknown(t *testing.T) {
	err := New(ExchangeGateio, CodeAuth)
	require.Equal(t, CanonicalUnknown, err.Canonical)
	require.NotContains(t, err.Error(), "canonical=")

	err = New(ExchangeGateio, CodeAuth, WithCanonicalCode(""))
	require.Equal(t, CanonicalUnknown, err.Canonical)

	err = New(ExchangeGateio, CodeAuth, WithCanonicalCode(CanonicalAuthFailed))
	require.Contains(t, err.Error(), "canonical=auth_failed")
}

func TestOrderNotFound(t *testing.T) {
	err := OrderNotFound(42)
	require.Equal(t, CodeNotFound, err.Code)
	require.Equal(t, CanonicalOrderNotFound, err.Canonical)
	require.Contains(t, err.Error(), "order id 42")
}

func TestBlankExchangeFormatsAsUnknown(t *testing.T) {
	err := New("", CodeInvalid)
	require.Contains(t, err.Error(), "exchange=unknown")
}
