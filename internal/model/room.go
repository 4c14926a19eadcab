package model

// Phase is the presence-derived room phase.
type Phase string

const (
	PhaseWaiting  Phase = "waiting"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

// Player exists only as a presence record on the room channel; it has
// no storage of its own.
type Player struct {
	ClientID ClientID       `json:"clientId"`
	Name     string         `json:"name"`
	Data     map[string]any `json:"data,omitempty"`
}

// FallbackName derives a deterministic display name from a client id
// when no name was set in presence data.
func FallbackName(id ClientID) string {
	return "Player " + id.Suffix()
}

// RoomState is the full snapshot broadcast as a "room-state" envelope.
type RoomState struct {
	Code       RoomCode       `json:"id"`
	Players    []Player       `json:"players"`
	MaxPlayers int            `json:"maxPlayers"`
	GameType   string         `json:"gameType"`
	Phase      Phase          `json:"gameState"`
	GameData   map[string]any `json:"gameData,omitempty"`
}

// Player returns the roster entry for id, if present.
func (s RoomState) Player(id ClientID) (Player, bool) {
	for _, p := range s.Players {
		if p.ClientID == id {
			return p, true
		}
	}
	return Player{}, false
}
