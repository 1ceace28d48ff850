package gateio

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestClientIDProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	store := NewCorrelationStore(func() time.Time { return time.Unix(1700000000, 0) })

	properties.Property("distinct order ids of equal digit count yield distinct client ids",
		prop.ForAll(func(a, b int64) bool {
			if a == b || digits(a) != digits(b) {
				return true
			}
			return store.GenerateClientID(a) != store.GenerateClientID(b)
		}, gen.Int64Range(1, 1<<40), gen.Int64Range(1, 1<<40)))

	properties.Property("client tag round-trips through parse",
		prop.ForAll(func(orderID int64) bool {
			clientID := store.GenerateClientID(orderID)
			parsed, ok := ParseClientTag(ClientTag(clientID))
			return ok && parsed == clientID
		}, gen.Int64Range(1, 1<<40)))

	properties.TestingRun(t)
}

func digits(n int64) int {
	count := 1
	for n >= 10 {
		n /= 10
		count++
	}
	return count
}
