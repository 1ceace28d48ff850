package gateio

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sourcegraph/conc/pool"

	"github.com/quantarc/gateio-gateway/internal/observability"
	"github.com/quantarc/gateio-gateway/internal/schema"
	"github.com/quantarc/gateio-gateway/internal/sessions"
)

// mirrorKey is the sorted-store key holding recent order-state envelopes.
const mirrorKey = "gateio_order_last_min_data"

// receivedState marks the synthetic receipt event; it is never mirrored.
const receivedState = "received"

// MirrorStore is the durable sorted-store contract the fan-out mirrors
// terminal order states into, ordered by a unix-seconds score.
type MirrorStore interface {
	Save(ctx context.Context, key string, value []byte, score float64) error
}

// Fanout relays normalized envelopes to subscribed downstream sessions and
// mirrors recent order state best-effort. The two subscription sets are
// independent: order events and execution-quality reports have separate
// audiences.
type Fanout struct {
	registry   *sessions.Registry
	mirror     MirrorStore
	maxWorkers int
	now        func() time.Time

	mu              sync.RWMutex
	orderSessions   map[string]string
	qualitySessions map[string]string
}

// NewFanout constructs a fan-out over the given session registry. The mirror
// store may be nil, in which case mirroring is skipped entirely.
func NewFanout(registry *sessions.Registry, mirror MirrorStore, maxWorkers int, now func() time.Time) *Fanout {
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	if now == nil {
		now = time.Now
	}
	return &Fanout{
		registry:        registry,
		mirror:          mirror,
		maxWorkers:      maxWorkers,
		now:             now,
		orderSessions:   make(map[string]string),
		qualitySessions: make(map[string]string),
	}
}

// SubscribeOrders adds a session to the order-event audience. Idempotent.
func (f *Fanout) SubscribeOrders(sessionID, credentialID string) {
	if sessionID == "" {
		return
	}
	f.mu.Lock()
	f.orderSessions[sessionID] = credentialID
	f.mu.Unlock()
}

// UnsubscribeOrders removes a session from the order-event audience.
func (f *Fanout) UnsubscribeOrders(sessionID string) {
	f.mu.Lock()
	delete(f.orderSessions, sessionID)
	f.mu.Unlock()
}

// SubscribeExecutionQuality adds a session to the execution-quality audience.
// Idempotent.
func (f *Fanout) SubscribeExecutionQuality(sessionID, credentialID string) {
	if sessionID == "" {
		return
	}
	f.mu.Lock()
	f.qualitySessions[sessionID] = credentialID
	f.mu.Unlock()
}

// UnsubscribeExecutionQuality removes a session from the execution-quality
// audience.
func (f *Fanout) UnsubscribeExecutionQuality(sessionID string) {
	f.mu.Lock()
	delete(f.qualitySessions, sessionID)
	f.mu.Unlock()
}

// OrderSessionCount reports the order-event audience size.
func (f *Fanout) OrderSessionCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.orderSessions)
}

// BroadcastOrder mirrors a normalized order-state envelope (for every state
// except the synthetic receipt) and delivers it to the order audience.
func (f *Fanout) BroadcastOrder(ctx context.Context, env schema.Envelope, state string) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal order envelope: %w", err)
	}
	if f.mirror != nil && state != receivedState {
		if err := f.mirror.Save(ctx, mirrorKey, payload, float64(f.now().Unix())); err != nil {
			observability.Log().Error("mirror order state",
				observability.Field{Key: "state", Value: state},
				observability.Field{Key: "error", Value: err.Error()},
			)
		}
	}
	return f.deliver(ctx, payload, f.snapshot(f.orderSessions), "order")
}

// BroadcastExecutionQuality delivers a latency report envelope to the
// execution-quality audience only.
func (f *Fanout) BroadcastExecutionQuality(ctx context.Context, env schema.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal execution quality envelope: %w", err)
	}
	return f.deliver(ctx, payload, f.snapshot(f.qualitySessions), "order_execution_quality")
}

// snapshot copies the session ids of one audience under the read lock. The
// map fields themselves are never reassigned after construction.
func (f *Fanout) snapshot(set map[string]string) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

func (f *Fanout) deliver(ctx context.Context, payload []byte, sessionIDs []string, channel string) error {
	if len(sessionIDs) == 0 || f.registry == nil {
		return nil
	}
	workerLimit := f.maxWorkers
	if workerLimit > len(sessionIDs) {
		workerLimit = len(sessionIDs)
	}

	var mu sync.Mutex
	var workerErrs []error
	p := pool.New().WithMaxGoroutines(workerLimit)
	for _, sessionID := range sessionIDs {
		id := sessionID
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					workerErrs = append(workerErrs, fmt.Errorf("session %s panic: %v", id, r))
					mu.Unlock()
				}
			}()
			sender, ok := f.registry.Lookup(id)
			if !ok {
				return
			}
			if err := sender.Send(ctx, payload); err != nil {
				mu.Lock()
				workerErrs = append(workerErrs, fmt.Errorf("session %s: %w", id, err))
				mu.Unlock()
			}
		})
	}
	p.Wait()

	observability.Telemetry().IncCounter("gateway_fanout_deliveries_total",
		float64(len(sessionIDs)), map[string]string{"channel": channel})

	if len(workerErrs) == 0 {
		return nil
	}
	return observability.AggregateErrors("broadcast fan-out", workerErrs,
		observability.Field{Key: "channel", Value: channel},
		observability.Field{Key: "session_count", Value: len(sessionIDs)},
	)
}
