package state

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/me2d/cmlsync/internal/domain"
)

// Snapshot is an immutable view of the state published to observers.
// CallSeq increases with every call-state change.
type Snapshot struct {
	State   domain.AggregateState
	Call    domain.CallState
	CallSeq uint64
}

// Hub is the single writer of AggregateState and CallState.
// Mutations are serialized, persisted, then broadcast to subscribers.
type Hub struct {
	store  domain.StateStore
	logger *zap.Logger

	mu      sync.Mutex
	state   domain.AggregateState
	call    domain.CallState
	callSeq uint64
	subs    map[int]chan Snapshot
	nextSub int
}

// NewHub loads the persisted state and returns a hub owning it.
func NewHub(ctx context.Context, store domain.StateStore, logger *zap.Logger) *Hub {
	return &Hub{
		store:  store,
		logger: logger,
		state:  store.Load(ctx),
		call:   Idle(),
		subs:   make(map[int]chan Snapshot),
	}
}

// State returns a copy of the current aggregate state.
func (h *Hub) State() domain.AggregateState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Clone()
}

// Call returns the current call state.
func (h *Hub) Call() domain.CallState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.call
}

// Snapshot returns the current state and call state together.
func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// Update derives a new complete state from the current one and persists it.
// If persisting fails the in-memory state is left unchanged.
func (h *Hub) Update(ctx context.Context, fn func(domain.AggregateState) domain.AggregateState) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := fn(h.state.Clone())
	if err := h.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	h.state = next
	h.publishLocked()
	return nil
}

// BeginCall marks op as in progress, replacing whatever the slot held.
func (h *Hub) BeginCall(op string) {
	h.setCall(Begin(op))
}

// SucceedCall marks op as succeeded.
func (h *Hub) SucceedCall(op, message string) {
	h.setCall(Succeed(op, message))
}

// FailCall marks op as failed.
func (h *Hub) FailCall(op, message string) {
	h.setCall(Fail(op, message))
}

// DismissCall returns a terminal call state to IDLE.
func (h *Hub) DismissCall() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dismissLocked()
}

// DismissCallIf dismisses only if the call state has not changed since seq.
func (h *Hub) DismissCallIf(seq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.callSeq != seq {
		return false
	}
	return h.dismissLocked()
}

func (h *Hub) dismissLocked() bool {
	next, ok := Dismiss(h.call)
	if !ok {
		return false
	}
	h.call = next
	h.callSeq++
	h.publishLocked()
	return true
}

func (h *Hub) setCall(cs domain.CallState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Debug("call state changed",
		zap.String("operation", cs.Operation),
		zap.String("status", string(cs.Status)),
		zap.String("message", cs.Message))

	h.call = cs
	h.callSeq++
	h.publishLocked()
}

// Subscribe returns a channel receiving every published snapshot and a cancel
// function. The channel holds at most buffer snapshots; when a subscriber falls
// behind, the oldest pending snapshot is dropped so the newest always arrives.
func (h *Hub) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Hub) snapshotLocked() Snapshot {
	return Snapshot{
		State:   h.state.Clone(),
		Call:    h.call,
		CallSeq: h.callSeq,
	}
}

// publishLocked delivers the current snapshot without blocking the writer.
func (h *Hub) publishLocked() {
	if len(h.subs) == 0 {
		return
	}
	snap := h.snapshotLocked()
	for _, ch := range h.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
