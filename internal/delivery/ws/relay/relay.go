// Package ws_relay bridges remote websocket clients onto the
// in-process realtime broker. Each connection multiplexes any number
// of channel bindings; a dropped connection detaches them all, which
// removes the client's presence records.
package ws_relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ivanmolchanov/roomsync/internal/model"
	"github.com/ivanmolchanov/roomsync/internal/realtime"
	realtime_broker "github.com/ivanmolchanov/roomsync/internal/realtime/broker"
	realtime_wire "github.com/ivanmolchanov/roomsync/internal/realtime/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Controller struct {
	broker *realtime_broker.Broker
	logger *slog.Logger
}

func NewController(broker *realtime_broker.Broker) *Controller {
	return &Controller{
		broker: broker,
		logger: slog.Default(),
	}
}

func (c *Controller) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/realtime/ws", c.serve)
}

func (c *Controller) serve(ctx *gin.Context) {
	clientID := model.ClientID(ctx.Query("client_id"))
	if clientID == "" {
		clientID = model.NewClientID()
	}

	ws, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	conn := &conn{
		ws:       ws,
		send:     make(chan realtime_wire.Frame, 32),
		clientID: clientID,
		broker:   c.broker,
		bindings: make(map[string]realtime.Binding),
		logger:   c.logger,
	}

	c.logger.Info("realtime client connected", slog.String("client_id", clientID.String()))

	go conn.writePump()
	conn.readPump()
}

type conn struct {
	ws       *websocket.Conn
	send     chan realtime_wire.Frame
	clientID model.ClientID
	broker   *realtime_broker.Broker
	logger   *slog.Logger

	mu       sync.Mutex
	bindings map[string]realtime.Binding
	forwards map[string]bool
	closed   bool
}

func (c *conn) readPump() {
	defer c.teardown()

	for {
		var req realtime_wire.Request
		if err := c.ws.ReadJSON(&req); err != nil {
			return
		}
		c.handle(req)
	}
}

func (c *conn) writePump() {
	defer c.ws.Close()

	for frame := range c.send {
		if err := c.ws.WriteJSON(frame); err != nil {
			return
		}
	}
}

// teardown detaches every binding this connection held. Detach clears
// presence, so a silent disconnect still shrinks the roster.
func (c *conn) teardown() {
	c.mu.Lock()
	c.closed = true
	bindings := c.bindings
	c.bindings = nil
	c.mu.Unlock()

	for _, b := range bindings {
		_ = b.Detach(context.Background())
	}

	c.mu.Lock()
	close(c.send)
	c.mu.Unlock()

	c.logger.Info("realtime client disconnected", slog.String("client_id", c.clientID.String()))
}

func (c *conn) binding(channel string) realtime.Binding {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.bindings[channel]; ok {
		return b
	}
	b := c.broker.Bind(channel, c.clientID)
	if c.bindings == nil {
		c.bindings = make(map[string]realtime.Binding)
	}
	c.bindings[channel] = b
	return b
}

func (c *conn) handle(req realtime_wire.Request) {
	if req.Channel == "" {
		c.ack(req, "missing channel")
		return
	}

	ctx := context.Background()
	b := c.binding(req.Channel)

	switch req.Action {
	case realtime_wire.ActionAttach:
		if err := b.Attach(ctx); err != nil {
			c.ack(req, err.Error())
			return
		}
		c.forward(req.Channel, b)
		c.ack(req, "")

	case realtime_wire.ActionDetach:
		if err := b.Detach(ctx); err != nil {
			c.ack(req, err.Error())
			return
		}
		c.ack(req, "")

	case realtime_wire.ActionPublish:
		if err := b.Publish(ctx, req.Name, req.Data); err != nil {
			c.ack(req, err.Error())
			return
		}
		c.ack(req, "")

	case realtime_wire.ActionPresenceEnter, realtime_wire.ActionPresenceUpdate:
		data, err := decodePresenceData(req.Data)
		if err != nil {
			c.ack(req, err.Error())
			return
		}
		if req.Action == realtime_wire.ActionPresenceEnter {
			err = b.Presence().Enter(ctx, data)
		} else {
			err = b.Presence().Update(ctx, data)
		}
		if err != nil {
			c.ack(req, err.Error())
			return
		}
		c.ack(req, "")

	case realtime_wire.ActionPresenceLeave:
		if err := b.Presence().Leave(ctx); err != nil {
			c.ack(req, err.Error())
			return
		}
		c.ack(req, "")

	case realtime_wire.ActionPresenceGet:
		members, err := b.Presence().Get(ctx)
		if err != nil {
			c.ack(req, err.Error())
			return
		}
		c.push(realtime_wire.Frame{
			Event:   realtime_wire.EventAck,
			ID:      req.ID,
			Channel: req.Channel,
			Members: members,
		})

	default:
		c.ack(req, "unknown action")
	}
}

// forward wires broker events for an attached channel back over the
// socket. Idempotent per connection and channel, so a re-issued attach
// does not double-subscribe.
func (c *conn) forward(channel string, b realtime.Binding) {
	c.mu.Lock()
	if c.forwards == nil {
		c.forwards = make(map[string]bool)
	}
	if c.forwards[channel] {
		c.mu.Unlock()
		return
	}
	c.forwards[channel] = true
	c.mu.Unlock()

	b.Subscribe(func(msg realtime.Message) {
		m := msg
		c.push(realtime_wire.Frame{
			Event:   realtime_wire.EventMessage,
			Channel: channel,
			Message: &m,
		})
	})
	for _, action := range []realtime.PresenceAction{
		realtime.PresenceEnter, realtime.PresenceUpdate, realtime.PresenceLeave,
	} {
		a := action
		b.Presence().Subscribe(a, func(member realtime.Member) {
			mem := member
			c.push(realtime_wire.Frame{
				Event:          realtime_wire.EventPresence,
				Channel:        channel,
				PresenceAction: a,
				Member:         &mem,
			})
		})
	}
}

func (c *conn) ack(req realtime_wire.Request, errMsg string) {
	c.push(realtime_wire.Frame{
		Event:   realtime_wire.EventAck,
		ID:      req.ID,
		Channel: req.Channel,
		Error:   errMsg,
	})
}

func (c *conn) push(frame realtime_wire.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	select {
	case c.send <- frame:
	default:
		// Slow consumer: drop the connection rather than block the
		// broker dispatch goroutine.
		c.ws.Close()
	}
}

func decodePresenceData(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
