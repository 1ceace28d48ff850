package gateio

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/quantarc/gateio-gateway/internal/schema"
)

// Maps are pre-sized for sustained order flow; lookups sit on the placement
// and cancellation hot path.
const correlationPresize = 10000

// clientTagPrefix satisfies the exchange's custom order-tag character rules.
const clientTagPrefix = "t-Z-"

// OrderAttributes is the client-id-keyed side of a correlation entry, used
// when the exchange echoes the client identifier back on acknowledgements.
type OrderAttributes struct {
	Side      schema.Side
	OrderType schema.OrderType
	Price     float64
	Quantity  float64
	Symbol    schema.Symbol
	Source    schema.RequestSource
}

// OrderRecord is the internal-order-id-keyed side of a correlation entry,
// used for outbound operations referencing a previously placed order.
type OrderRecord struct {
	ClientID     int64
	Symbol       schema.Symbol
	CredentialID string
	Instrument   schema.InstrumentType
}

// CorrelationStore maintains the bidirectional mapping between internal order
// identity and exchange-visible client identity. Entries are never evicted;
// they persist for the adapter instance's lifetime. Lookups may arrive from a
// caller goroutine distinct from the socket read goroutine, so all access is
// guarded by a RWMutex.
type CorrelationStore struct {
	mu            sync.RWMutex
	byClient      map[int64]OrderAttributes
	byOrder       map[int64]OrderRecord
	clientToOrder map[int64]int64

	now func() time.Time
}

// NewCorrelationStore returns an empty store with pre-sized tables.
func NewCorrelationStore(now func() time.Time) *CorrelationStore {
	if now == nil {
		now = time.Now
	}
	return &CorrelationStore{
		byClient:      make(map[int64]OrderAttributes, correlationPresize),
		byOrder:       make(map[int64]OrderRecord, correlationPresize),
		clientToOrder: make(map[int64]int64, correlationPresize),
		now:           now,
	}
}

// GenerateClientID derives the exchange-visible client identity for an
// internal order id: current unix seconds shifted left by one more decimal
// digit than the order id occupies, plus the order id. Ids issued within the
// same second are distinct as long as their digit counts match.
func (s *CorrelationStore) GenerateClientID(orderID int64) int64 {
	seconds := s.now().Unix()
	multiplier := int64(10)
	for rest := orderID; rest >= 10; rest /= 10 {
		multiplier *= 10
	}
	return seconds*multiplier + orderID
}

// ClientTag formats a client id into the exchange's custom order tag.
func ClientTag(clientID int64) string {
	return clientTagPrefix + strconv.FormatInt(clientID, 10)
}

// ParseClientTag recovers the client id from an order tag.
func ParseClientTag(tag string) (int64, bool) {
	rest, found := strings.CutPrefix(tag, clientTagPrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Insert records a correlation entry at place time. A modify creates a
// logically new entry through cancel-then-place; entries are never mutated
// in place.
func (s *CorrelationStore) Insert(orderID, clientID int64, attrs OrderAttributes, credentialID string, instrument schema.InstrumentType) {
	s.mu.Lock()
	s.byClient[clientID] = attrs
	s.clientToOrder[clientID] = orderID
	s.byOrder[orderID] = OrderRecord{
		ClientID:     clientID,
		Symbol:       attrs.Symbol,
		CredentialID: credentialID,
		Instrument:   instrument,
	}
	s.mu.Unlock()
}

// Attributes resolves the client-id-keyed attribute entry.
func (s *CorrelationStore) Attributes(clientID int64) (OrderAttributes, bool) {
	s.mu.RLock()
	attrs, ok := s.byClient[clientID]
	s.mu.RUnlock()
	return attrs, ok
}

// Record resolves the internal-order-id-keyed entry.
func (s *CorrelationStore) Record(orderID int64) (OrderRecord, bool) {
	s.mu.RLock()
	rec, ok := s.byOrder[orderID]
	s.mu.RUnlock()
	return rec, ok
}

// OrderForClient maps an echoed client id back to the internal order id.
func (s *CorrelationStore) OrderForClient(clientID int64) (int64, bool) {
	s.mu.RLock()
	orderID, ok := s.clientToOrder[clientID]
	s.mu.RUnlock()
	return orderID, ok
}

// CredentialFor resolves the credential recorded for an order, if any.
func (s *CorrelationStore) CredentialFor(orderID int64) (string, bool) {
	s.mu.RLock()
	rec, ok := s.byOrder[orderID]
	s.mu.RUnlock()
	if !ok || rec.CredentialID == "" {
		return "", false
	}
	return rec.CredentialID, true
}

// Len reports the number of correlated orders, for growth monitoring.
func (s *CorrelationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byOrder)
}
