package model

// GameConfig describes one playable game type.
type GameConfig struct {
	Name        string `json:"name"`
	GameType    string `json:"game_type"`
	MinPlayers  int    `json:"min_players"`
	MaxPlayers  int    `json:"max_players"`
	Description string `json:"description"`
}

const GameTypeRPS = "rps"

var gameConfigs = map[string]GameConfig{
	GameTypeRPS: {
		Name:        "Rock Paper Scissors",
		GameType:    GameTypeRPS,
		MinPlayers:  2,
		MaxPlayers:  2,
		Description: "Classic rock-paper-scissors game with 15 different options!",
	},
}

func GameConfigFor(gameType string) (GameConfig, bool) {
	cfg, ok := gameConfigs[gameType]
	return cfg, ok
}

func AllGameConfigs() []GameConfig {
	out := make([]GameConfig, 0, len(gameConfigs))
	for _, cfg := range gameConfigs {
		out = append(out, cfg)
	}
	return out
}
