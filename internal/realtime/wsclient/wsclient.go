// Package realtime_wsclient is the remote implementation of the
// channel binding contract: it speaks the relay frame protocol over a
// single websocket connection and multiplexes any number of channels
// on it. Events for one channel are delivered in the order the relay
// sent them.
package realtime_wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ivanmolchanov/roomsync/internal/model"
	"github.com/ivanmolchanov/roomsync/internal/realtime"
	realtime_wire "github.com/ivanmolchanov/roomsync/internal/realtime/wire"
)

var ErrConnClosed = errors.New("realtime connection closed")

type Conn struct {
	ws       *websocket.Conn
	clientID model.ClientID
	logger   *slog.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   int64
	pending  map[int64]chan realtime_wire.Frame
	channels map[string]*channelBinding
	closed   bool
}

// Dial connects to a relay endpoint, e.g. ws://host:port/api/v1/realtime/ws.
func Dial(ctx context.Context, rawURL string, clientID model.ClientID) (*Conn, error) {
	if clientID == "" {
		clientID = model.NewClientID()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("client_id", string(clientID))
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c := &Conn{
		ws:       ws,
		clientID: clientID,
		logger:   slog.Default(),
		pending:  make(map[int64]chan realtime_wire.Frame),
		channels: make(map[string]*channelBinding),
	}
	go c.readLoop()
	return c, nil
}

func (c *Conn) ClientID() model.ClientID {
	return c.clientID
}

// Channel returns the binding for a named channel, creating it on
// first use.
func (c *Conn) Channel(name string) realtime.Binding {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.channels[name]; ok {
		return b
	}
	b := &channelBinding{
		conn:  c,
		name:  name,
		state: realtime.StateUninitialized,
	}
	c.channels[name] = b
	return b
}

func (c *Conn) Close() error {
	c.fail()
	return c.ws.Close()
}

func (c *Conn) readLoop() {
	defer c.fail()

	for {
		var frame realtime_wire.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}

		switch frame.Event {
		case realtime_wire.EventAck:
			c.mu.Lock()
			done, ok := c.pending[frame.ID]
			if ok {
				delete(c.pending, frame.ID)
			}
			c.mu.Unlock()
			if ok {
				done <- frame
			}

		case realtime_wire.EventMessage, realtime_wire.EventPresence:
			c.mu.Lock()
			b := c.channels[frame.Channel]
			c.mu.Unlock()
			if b != nil {
				b.deliver(frame)
			}
		}
	}
}

// fail marks the connection unusable: pending calls error out and
// every binding moves to the terminal suspended state.
func (c *Conn) fail() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = nil
	channels := c.channels
	c.mu.Unlock()

	for _, done := range pending {
		close(done)
	}
	for _, b := range channels {
		b.suspend()
	}
}

func (c *Conn) request(ctx context.Context, req realtime_wire.Request) (realtime_wire.Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return realtime_wire.Frame{}, ErrConnClosed
	}
	c.nextID++
	req.ID = c.nextID
	done := make(chan realtime_wire.Frame, 1)
	c.pending[req.ID] = done
	c.mu.Unlock()

	c.writeMu.Lock()
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return realtime_wire.Frame{}, err
	}

	select {
	case frame, ok := <-done:
		if !ok {
			return realtime_wire.Frame{}, ErrConnClosed
		}
		if frame.Error != "" {
			return frame, errors.New(frame.Error)
		}
		return frame, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return realtime_wire.Frame{}, ctx.Err()
	}
}

type channelBinding struct {
	conn *Conn
	name string

	mu           sync.Mutex
	state        realtime.State
	nextSub      int
	subscribers  map[int]func(realtime.Message)
	presenceSubs map[int]presenceSub
}

type presenceSub struct {
	action  realtime.PresenceAction
	handler func(realtime.Member)
}

func (b *channelBinding) Attach(ctx context.Context) error {
	b.mu.Lock()
	if b.state == realtime.StateAttached {
		b.mu.Unlock()
		return nil
	}
	if b.state.Terminal() {
		b.mu.Unlock()
		return realtime.ErrAttachFailed
	}
	b.state = realtime.StateAttaching
	b.mu.Unlock()

	_, err := b.conn.request(ctx, realtime_wire.Request{
		Action:  realtime_wire.ActionAttach,
		Channel: b.name,
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.state = realtime.StateFailed
		return errors.Join(realtime.ErrAttachFailed, err)
	}
	if b.state == realtime.StateAttaching {
		b.state = realtime.StateAttached
	}
	return nil
}

func (b *channelBinding) Detach(ctx context.Context) error {
	b.mu.Lock()
	if b.state == realtime.StateDetached || b.state == realtime.StateUninitialized {
		b.mu.Unlock()
		return nil
	}
	b.state = realtime.StateDetaching
	b.mu.Unlock()

	_, err := b.conn.request(ctx, realtime_wire.Request{
		Action:  realtime_wire.ActionDetach,
		Channel: b.name,
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == realtime.StateDetaching {
		b.state = realtime.StateDetached
	}
	return err
}

func (b *channelBinding) State() realtime.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *channelBinding) Publish(ctx context.Context, name string, data any) error {
	if b.State() != realtime.StateAttached {
		return realtime.ErrNotAttached
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = b.conn.request(ctx, realtime_wire.Request{
		Action:  realtime_wire.ActionPublish,
		Channel: b.name,
		Name:    name,
		Data:    raw,
	})
	return err
}

func (b *channelBinding) Subscribe(handler func(realtime.Message)) realtime.Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers == nil {
		b.subscribers = make(map[int]func(realtime.Message))
	}
	id := b.nextSub
	b.nextSub++
	b.subscribers[id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

func (b *channelBinding) Presence() realtime.Presence {
	return (*remotePresence)(b)
}

func (b *channelBinding) deliver(frame realtime_wire.Frame) {
	switch frame.Event {
	case realtime_wire.EventMessage:
		if frame.Message == nil {
			return
		}
		b.mu.Lock()
		handlers := make([]func(realtime.Message), 0, len(b.subscribers))
		for _, h := range b.subscribers {
			handlers = append(handlers, h)
		}
		b.mu.Unlock()
		for _, h := range handlers {
			h(*frame.Message)
		}

	case realtime_wire.EventPresence:
		if frame.Member == nil {
			return
		}
		b.mu.Lock()
		var handlers []func(realtime.Member)
		for _, ps := range b.presenceSubs {
			if ps.action == frame.PresenceAction {
				handlers = append(handlers, ps.handler)
			}
		}
		b.mu.Unlock()
		for _, h := range handlers {
			h(*frame.Member)
		}
	}
}

func (b *channelBinding) suspend() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = realtime.StateSuspended
}

type remotePresence channelBinding

func (p *remotePresence) binding() *channelBinding { return (*channelBinding)(p) }

func (p *remotePresence) Enter(ctx context.Context, data map[string]any) error {
	return p.presenceOp(ctx, realtime_wire.ActionPresenceEnter, data)
}

func (p *remotePresence) Update(ctx context.Context, data map[string]any) error {
	return p.presenceOp(ctx, realtime_wire.ActionPresenceUpdate, data)
}

func (p *remotePresence) Leave(ctx context.Context) error {
	b := p.binding()
	if b.State() != realtime.StateAttached {
		return nil
	}
	_, err := b.conn.request(ctx, realtime_wire.Request{
		Action:  realtime_wire.ActionPresenceLeave,
		Channel: b.name,
	})
	return err
}

func (p *remotePresence) Get(ctx context.Context) ([]realtime.Member, error) {
	b := p.binding()
	frame, err := b.conn.request(ctx, realtime_wire.Request{
		Action:  realtime_wire.ActionPresenceGet,
		Channel: b.name,
	})
	if err != nil {
		return nil, err
	}
	if frame.Members == nil {
		return []realtime.Member{}, nil
	}
	return frame.Members, nil
}

func (p *remotePresence) Subscribe(action realtime.PresenceAction, handler func(realtime.Member)) realtime.Unsubscribe {
	b := p.binding()
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.presenceSubs == nil {
		b.presenceSubs = make(map[int]presenceSub)
	}
	id := b.nextSub
	b.nextSub++
	b.presenceSubs[id] = presenceSub{action: action, handler: handler}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.presenceSubs, id)
	}
}

func (p *remotePresence) presenceOp(ctx context.Context, action string, data map[string]any) error {
	b := p.binding()
	if b.State() != realtime.StateAttached {
		return realtime.ErrNotAttached
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = b.conn.request(ctx, realtime_wire.Request{
		Action:  action,
		Channel: b.name,
		Data:    raw,
	})
	return err
}
