package usecase_session

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ivanmolchanov/roomsync/internal/model"
	"github.com/ivanmolchanov/roomsync/internal/realtime"
)

// router validates and classifies inbound channel events before the
// game layer sees them. Anything that fails envelope validation is
// dropped with a diagnostic, never surfaced: a malformed event must
// not crash or desynchronize the game state machine.
type router struct {
	logger *slog.Logger

	mu          sync.Mutex
	handler     func(model.GameMessage)
	onRoomState func(model.RoomState)
}

func newRouter(logger *slog.Logger, onRoomState func(model.RoomState)) *router {
	return &router{
		logger:      logger,
		onRoomState: onRoomState,
	}
}

// register installs the single game-level handler. Re-registration
// replaces, not appends.
func (r *router) register(h func(model.GameMessage)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handler = h
}

type gameEnvelope struct {
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data"`
	FromPlayer model.ClientID  `json:"fromPlayer"`
}

func (r *router) dispatch(msg realtime.Message) {
	switch msg.Name {
	case model.EnvelopeGameMessage:
		r.dispatchGame(msg)
	case model.EnvelopeRoomState:
		r.dispatchRoomState(msg)
	}
}

func (r *router) dispatchGame(msg realtime.Message) {
	if !isJSONObject(msg.Data) {
		r.logger.Warn("invalid game message data", slog.String("channel_client", msg.ClientID.String()))
		return
	}

	var env gameEnvelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		r.logger.Warn("malformed game message", slog.String("error", err.Error()))
		return
	}
	if env.Type == "" || env.FromPlayer == "" {
		r.logger.Warn("missing required game message fields",
			slog.String("type", env.Type),
			slog.String("from", env.FromPlayer.String()))
		return
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	gm := model.GameMessage{
		Type:       env.Type,
		Data:       env.Data,
		FromPlayer: env.FromPlayer,
		Timestamp:  ts,
	}

	r.mu.Lock()
	handler := r.handler
	r.mu.Unlock()

	if handler == nil {
		return
	}
	handler(gm)
}

func (r *router) dispatchRoomState(msg realtime.Message) {
	if !isJSONObject(msg.Data) {
		r.logger.Warn("invalid room state data")
		return
	}

	var state model.RoomState
	if err := json.Unmarshal(msg.Data, &state); err != nil {
		r.logger.Warn("malformed room state", slog.String("error", err.Error()))
		return
	}

	r.mu.Lock()
	onRoomState := r.onRoomState
	r.mu.Unlock()

	if onRoomState != nil {
		onRoomState(state)
	}
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
