package usecase_session

import (
	"github.com/ivanmolchanov/roomsync/internal/model"
	"github.com/ivanmolchanov/roomsync/internal/realtime"
)

// rosterTracker mirrors the channel's presence set into a room
// snapshot. Every trigger re-fetches the full set and replaces the
// roster wholesale: stale entries never survive a refresh, even when
// presence events arrive out of order relative to a running get.
type rosterTracker struct {
	code       model.RoomCode
	gameType   string
	maxPlayers int
	minPlayers int

	state model.RoomState
}

func newRosterTracker(code model.RoomCode, gameType string, minPlayers, maxPlayers int) *rosterTracker {
	return &rosterTracker{
		code:       code,
		gameType:   gameType,
		maxPlayers: maxPlayers,
		minPlayers: minPlayers,
		state: model.RoomState{
			Code:       code,
			MaxPlayers: maxPlayers,
			GameType:   gameType,
			Phase:      model.PhaseWaiting,
			Players:    []model.Player{},
		},
	}
}

// refresh rebuilds the roster from a presence snapshot and re-derives
// the phase. Finished is game-level signaling and is never produced
// here.
func (r *rosterTracker) refresh(members []realtime.Member) model.RoomState {
	players := make([]model.Player, 0, len(members))
	for _, m := range members {
		players = append(players, memberToPlayer(m))
	}

	phase := model.PhaseWaiting
	if len(players) >= r.minPlayers {
		phase = model.PhasePlaying
	}

	r.state = model.RoomState{
		Code:       r.code,
		Players:    players,
		MaxPlayers: r.maxPlayers,
		GameType:   r.gameType,
		Phase:      phase,
		GameData:   map[string]any{},
	}
	return r.state
}

// replace applies a full room-state broadcast received off the wire.
func (r *rosterTracker) replace(state model.RoomState) model.RoomState {
	r.state = state
	return r.state
}

func (r *rosterTracker) snapshot() model.RoomState {
	return r.state
}

func (r *rosterTracker) full(members []realtime.Member) bool {
	return len(members) >= r.maxPlayers
}

func memberToPlayer(m realtime.Member) model.Player {
	name := model.FallbackName(m.ClientID)
	if n, ok := m.Data["name"].(string); ok && n != "" {
		name = n
	}
	data := m.Data
	if data == nil {
		data = map[string]any{}
	}
	return model.Player{
		ClientID: m.ClientID,
		Name:     name,
		Data:     data,
	}
}
