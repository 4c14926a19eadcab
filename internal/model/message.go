package model

import (
	"encoding/json"
	"time"
)

// Channel event names recognized by the message router.
const (
	EnvelopeGameMessage = "game-message"
	EnvelopeRoomState   = "room-state"
)

// GameMessage is the validated game-level event handed to the
// registered handler. Data stays opaque to the room layer.
type GameMessage struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	FromPlayer ClientID        `json:"fromPlayer"`
	Timestamp  time.Time       `json:"timestamp"`
}
