// Package realtime_wire defines the JSON frame protocol between the
// relay gateway and remote channel bindings.
package realtime_wire

import (
	"encoding/json"

	"github.com/ivanmolchanov/roomsync/internal/realtime"
)

// Client-to-server actions.
const (
	ActionAttach         = "attach"
	ActionDetach         = "detach"
	ActionPublish        = "publish"
	ActionPresenceEnter  = "presence_enter"
	ActionPresenceUpdate = "presence_update"
	ActionPresenceLeave  = "presence_leave"
	ActionPresenceGet    = "presence_get"
)

// Server-to-client frame kinds.
const (
	EventAck      = "ack"
	EventMessage  = "message"
	EventPresence = "presence"
)

// Request is one client-initiated operation. ID correlates the ack.
type Request struct {
	ID      int64           `json:"id"`
	Action  string          `json:"action"`
	Channel string          `json:"channel"`
	Name    string          `json:"name,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Frame is one server-to-client frame: an ack for a Request, or a
// pushed message/presence event.
type Frame struct {
	Event   string `json:"event"`
	ID      int64  `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Error   string `json:"error,omitempty"`

	Message *realtime.Message `json:"message,omitempty"`

	PresenceAction realtime.PresenceAction `json:"presenceAction,omitempty"`
	Member         *realtime.Member        `json:"member,omitempty"`
	Members        []realtime.Member       `json:"members,omitempty"`
}
