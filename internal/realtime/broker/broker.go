// Package realtime_broker is an in-process realtime provider: named
// channels with presence, delivering every event to every subscriber in
// one consistent order through a single dispatch goroutine per channel.
package realtime_broker

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ivanmolchanov/roomsync/internal/model"
	"github.com/ivanmolchanov/roomsync/internal/realtime"
)

type Broker struct {
	mu       sync.Mutex
	channels map[string]*Channel
	closed   bool
	logger   *slog.Logger
}

func New() *Broker {
	return &Broker{
		channels: make(map[string]*Channel),
		logger:   slog.Default(),
	}
}

// Channel returns the named channel, creating it on first use. Rooms
// are created implicitly this way; there is no explicit create call.
func (b *Broker) Channel(name string) *Channel {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.channels[name]; ok {
		return ch
	}
	ch := newChannel(name, b.logger)
	b.channels[name] = ch
	go ch.dispatchLoop()
	return ch
}

// Bind returns a client-scoped binding onto the named channel.
func (b *Broker) Bind(channel string, clientID model.ClientID) realtime.Binding {
	return newLocalBinding(b.Channel(channel), clientID)
}

// Publish pushes a server-originated event onto a channel without a
// binding (room bootstrap broadcasts).
func (b *Broker) Publish(channel, name string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b.Channel(channel).enqueueMessage(realtime.Message{
		Name: name,
		Data: raw,
	})
	return nil
}

func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.channels {
		ch.close()
	}
}

type event struct {
	msg      *realtime.Message
	presence *presenceEvent
}

type presenceEvent struct {
	action realtime.PresenceAction
	member realtime.Member
}

type Channel struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []event
	closed  bool
	nextSub int

	subscribers  map[int]func(realtime.Message)
	presenceSubs map[int]presenceSub
	members      map[model.ClientID]map[string]any
}

type presenceSub struct {
	action  realtime.PresenceAction
	handler func(realtime.Member)
}

func newChannel(name string, logger *slog.Logger) *Channel {
	ch := &Channel{
		name:         name,
		logger:       logger,
		subscribers:  make(map[int]func(realtime.Message)),
		presenceSubs: make(map[int]presenceSub),
		members:      make(map[model.ClientID]map[string]any),
	}
	ch.cond = sync.NewCond(&ch.mu)
	return ch
}

// dispatchLoop drains the queue one event at a time. Handlers run on
// this goroutine, which is what gives subscribers a total order.
func (ch *Channel) dispatchLoop() {
	for {
		ch.mu.Lock()
		for len(ch.queue) == 0 && !ch.closed {
			ch.cond.Wait()
		}
		if ch.closed && len(ch.queue) == 0 {
			ch.mu.Unlock()
			return
		}
		ev := ch.queue[0]
		ch.queue = ch.queue[1:]

		var msgHandlers []func(realtime.Message)
		var presHandlers []func(realtime.Member)
		if ev.msg != nil {
			msgHandlers = make([]func(realtime.Message), 0, len(ch.subscribers))
			for _, h := range ch.subscribers {
				msgHandlers = append(msgHandlers, h)
			}
		}
		if ev.presence != nil {
			for _, ps := range ch.presenceSubs {
				if ps.action == ev.presence.action {
					presHandlers = append(presHandlers, ps.handler)
				}
			}
		}
		ch.mu.Unlock()

		for _, h := range msgHandlers {
			h(*ev.msg)
		}
		for _, h := range presHandlers {
			h(ev.presence.member)
		}
	}
}

func (ch *Channel) enqueue(ev event) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return
	}
	ch.queue = append(ch.queue, ev)
	ch.cond.Signal()
}

func (ch *Channel) enqueueMessage(msg realtime.Message) {
	msg.Timestamp = time.Now()
	ch.enqueue(event{msg: &msg})
}

func (ch *Channel) subscribe(handler func(realtime.Message)) realtime.Unsubscribe {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	id := ch.nextSub
	ch.nextSub++
	ch.subscribers[id] = handler

	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		delete(ch.subscribers, id)
	}
}

func (ch *Channel) subscribePresence(action realtime.PresenceAction, handler func(realtime.Member)) realtime.Unsubscribe {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	id := ch.nextSub
	ch.nextSub++
	ch.presenceSubs[id] = presenceSub{action: action, handler: handler}

	return func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		delete(ch.presenceSubs, id)
	}
}

// setPresence upserts the single presence record a client may hold.
// A second enter for the same client becomes an update.
func (ch *Channel) setPresence(clientID model.ClientID, data map[string]any) {
	ch.mu.Lock()
	_, existed := ch.members[clientID]
	ch.members[clientID] = data
	ch.mu.Unlock()

	action := realtime.PresenceEnter
	if existed {
		action = realtime.PresenceUpdate
	}
	ch.enqueue(event{presence: &presenceEvent{
		action: action,
		member: realtime.Member{ClientID: clientID, Data: data},
	}})
}

// removePresence is idempotent: leaving when absent is a no-op.
func (ch *Channel) removePresence(clientID model.ClientID) {
	ch.mu.Lock()
	data, existed := ch.members[clientID]
	if existed {
		delete(ch.members, clientID)
	}
	ch.mu.Unlock()

	if !existed {
		return
	}
	ch.enqueue(event{presence: &presenceEvent{
		action: realtime.PresenceLeave,
		member: realtime.Member{ClientID: clientID, Data: data},
	}})
}

func (ch *Channel) presenceSnapshot() []realtime.Member {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	out := make([]realtime.Member, 0, len(ch.members))
	for id, data := range ch.members {
		out = append(out, realtime.Member{ClientID: id, Data: data})
	}
	return out
}

func (ch *Channel) close() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.closed = true
	ch.cond.Broadcast()
}
