package realtime_broker

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ivanmolchanov/roomsync/internal/model"
	"github.com/ivanmolchanov/roomsync/internal/realtime"
)

// localBinding is a client-scoped view onto one broker channel. Attach
// and detach only gate the binding itself; the channel lives for as
// long as the broker does.
type localBinding struct {
	channel  *Channel
	clientID model.ClientID

	mu      sync.Mutex
	state   realtime.State
	unsubs  []realtime.Unsubscribe
	present bool
}

func newLocalBinding(ch *Channel, clientID model.ClientID) *localBinding {
	return &localBinding{
		channel:  ch,
		clientID: clientID,
		state:    realtime.StateUninitialized,
	}
}

func (b *localBinding) Attach(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.Terminal() {
		return realtime.ErrAttachFailed
	}
	b.state = realtime.StateAttached
	return nil
}

func (b *localBinding) Detach(ctx context.Context) error {
	b.mu.Lock()
	unsubs := b.unsubs
	b.unsubs = nil
	present := b.present
	b.present = false
	b.state = realtime.StateDetached
	b.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	// A detached client cannot hold a membership record.
	if present {
		b.channel.removePresence(b.clientID)
	}
	return nil
}

func (b *localBinding) State() realtime.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *localBinding) Publish(ctx context.Context, name string, data any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.State() != realtime.StateAttached {
		return realtime.ErrNotAttached
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b.channel.enqueueMessage(realtime.Message{
		Name:     name,
		Data:     raw,
		ClientID: b.clientID,
	})
	return nil
}

func (b *localBinding) Subscribe(handler func(realtime.Message)) realtime.Unsubscribe {
	unsub := b.channel.subscribe(handler)
	b.track(unsub)
	return unsub
}

func (b *localBinding) Presence() realtime.Presence {
	return (*localPresence)(b)
}

func (b *localBinding) track(unsub realtime.Unsubscribe) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubs = append(b.unsubs, unsub)
}

type localPresence localBinding

func (p *localPresence) binding() *localBinding { return (*localBinding)(p) }

func (p *localPresence) Enter(ctx context.Context, data map[string]any) error {
	b := p.binding()
	if b.State() != realtime.StateAttached {
		return realtime.ErrNotAttached
	}

	b.mu.Lock()
	b.present = true
	b.mu.Unlock()

	b.channel.setPresence(b.clientID, data)
	return nil
}

func (p *localPresence) Update(ctx context.Context, data map[string]any) error {
	return p.Enter(ctx, data)
}

func (p *localPresence) Leave(ctx context.Context) error {
	b := p.binding()

	b.mu.Lock()
	present := b.present
	b.present = false
	b.mu.Unlock()

	if present {
		b.channel.removePresence(b.clientID)
	}
	return nil
}

func (p *localPresence) Get(ctx context.Context) ([]realtime.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.binding().channel.presenceSnapshot(), nil
}

func (p *localPresence) Subscribe(action realtime.PresenceAction, handler func(realtime.Member)) realtime.Unsubscribe {
	b := p.binding()
	unsub := b.channel.subscribePresence(action, handler)
	b.track(unsub)
	return unsub
}
