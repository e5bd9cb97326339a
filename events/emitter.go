// Package events is a synchronous pub/sub broker for state-change
// notifications consumed by the indexer and external subscribers.
package events

import (
	"log/slog"
	"sync"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit   EventType = "block_commit"
	EventTxExecuted    EventType = "tx_executed"
	EventTokenTransfer EventType = "token_transfer"
	EventTokenCreated  EventType = "token_created"
	EventTokenApproval EventType = "token_approval"

	EventRoleGranted          EventType = "role_granted"
	EventRoleRevoked          EventType = "role_revoked"
	EventAdminTransferStarted EventType = "admin_transfer_started"
	EventAdminTransferred     EventType = "admin_transferred"
	EventProviderVaultSet     EventType = "provider_vault_set"

	EventChallengeCreated  EventType = "challenge_created"
	EventChallengeJoined   EventType = "challenge_joined"
	EventChallengeLeft     EventType = "challenge_left"
	EventChallengeLocked   EventType = "challenge_locked"
	EventChallengeResolved EventType = "challenge_resolved"
	EventChallengeCanceled EventType = "challenge_canceled"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	all      []Handler
	log      *slog.Logger
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{
		handlers: make(map[EventType][]Handler),
		log:      slog.Default().With("component", "events"),
	}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// SubscribeAll registers h for every event type.
func (e *Emitter) SubscribeAll(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := make([]Handler, 0, len(e.handlers[ev.Type])+len(e.all))
	handlers = append(handlers, e.handlers[ev.Type]...)
	handlers = append(handlers, e.all...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("handler panicked", "event", ev.Type, "panic", r)
				}
			}()
			h(ev)
		}()
	}
}
