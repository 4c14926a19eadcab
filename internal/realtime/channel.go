// Package realtime defines the contract the room layer expects from a
// named broadcast channel with presence. Implementations must deliver
// published messages to every subscriber (the publisher included) in a
// single consistent order.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ivanmolchanov/roomsync/internal/model"
)

// State is the channel lifecycle state.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateAttaching     State = "attaching"
	StateAttached      State = "attached"
	StateDetaching     State = "detaching"
	StateDetached      State = "detached"
	StateFailed        State = "failed"
	StateSuspended     State = "suspended"
)

// Terminal reports whether the channel can no longer serve this
// room session.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateSuspended
}

var (
	ErrNotAttached    = errors.New("channel not attached")
	ErrAttachFailed   = errors.New("channel attach failed")
	ErrChannelClosed  = errors.New("channel closed")
	ErrAlreadyPresent = errors.New("presence already entered")
)

// Message is a raw channel event, before envelope validation.
type Message struct {
	Name      string          `json:"name"`
	Data      json.RawMessage `json:"data"`
	ClientID  model.ClientID  `json:"clientId"`
	Timestamp time.Time       `json:"timestamp"`
}

// Member is one presence record: at most one per client id per channel.
type Member struct {
	ClientID model.ClientID `json:"clientId"`
	Data     map[string]any `json:"data"`
}

// PresenceAction tags presence events for subscription filtering.
type PresenceAction string

const (
	PresenceEnter  PresenceAction = "enter"
	PresenceUpdate PresenceAction = "update"
	PresenceLeave  PresenceAction = "leave"
)

// Unsubscribe removes a previously registered handler. Safe to call
// more than once.
type Unsubscribe func()

// Binding is the channel capability consumed by the session layer.
type Binding interface {
	Attach(ctx context.Context) error
	Detach(ctx context.Context) error
	State() State

	Publish(ctx context.Context, name string, data any) error
	Subscribe(handler func(Message)) Unsubscribe

	Presence() Presence
}

// Presence is the membership sub-capability of a Binding.
type Presence interface {
	Enter(ctx context.Context, data map[string]any) error
	Update(ctx context.Context, data map[string]any) error
	Leave(ctx context.Context) error
	Get(ctx context.Context) ([]Member, error)
	Subscribe(action PresenceAction, handler func(Member)) Unsubscribe
}
