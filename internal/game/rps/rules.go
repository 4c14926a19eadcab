// Package game_rps implements the 15-option rock-paper-scissors
// reconciliation protocol: peers exchange choices over the room
// channel and a deterministically elected leader computes and
// broadcasts the single authoritative round result.
package game_rps

// Choice is one of the 15 playable options.
type Choice string

const (
	Rock      Choice = "Rock"
	Fire      Choice = "Fire"
	Scissors  Choice = "Scissors"
	Snake     Choice = "Snake"
	Human     Choice = "Human"
	Tree      Choice = "Tree"
	Wolf      Choice = "Wolf"
	Sponge    Choice = "Sponge"
	Paper     Choice = "Paper"
	Air       Choice = "Air"
	Water     Choice = "Water"
	Dragon    Choice = "Dragon"
	Devil     Choice = "Devil"
	Lightning Choice = "Lightning"
	Gun       Choice = "Gun"
)

// beats is a fixed directed graph: each option beats exactly the seven
// listed here and loses to the remaining seven.
var beats = map[Choice][]Choice{
	Rock:      {Scissors, Fire, Snake, Human, Tree, Wolf, Sponge},
	Fire:      {Scissors, Snake, Human, Tree, Wolf, Sponge, Paper},
	Scissors:  {Snake, Human, Tree, Wolf, Sponge, Paper, Air},
	Snake:     {Human, Tree, Wolf, Sponge, Paper, Air, Water},
	Human:     {Tree, Wolf, Sponge, Paper, Air, Water, Dragon},
	Tree:      {Wolf, Sponge, Paper, Air, Water, Dragon, Devil},
	Wolf:      {Sponge, Paper, Air, Water, Dragon, Devil, Lightning},
	Sponge:    {Paper, Air, Water, Dragon, Devil, Lightning, Gun},
	Paper:     {Air, Water, Dragon, Devil, Lightning, Gun, Rock},
	Air:       {Water, Dragon, Devil, Lightning, Gun, Rock, Fire},
	Water:     {Dragon, Devil, Lightning, Gun, Rock, Fire, Scissors},
	Dragon:    {Devil, Lightning, Gun, Rock, Fire, Scissors, Snake},
	Devil:     {Lightning, Gun, Rock, Fire, Scissors, Snake, Human},
	Lightning: {Gun, Rock, Fire, Scissors, Snake, Human, Tree},
	Gun:       {Rock, Fire, Scissors, Snake, Human, Tree, Wolf},
}

// Choices returns all playable options in rule order.
func Choices() []Choice {
	return []Choice{
		Rock, Fire, Scissors, Snake, Human, Tree, Wolf, Sponge,
		Paper, Air, Water, Dragon, Devil, Lightning, Gun,
	}
}

func ValidChoice(c Choice) bool {
	_, ok := beats[c]
	return ok
}

// Outcome is one player's result for a round.
type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLose Outcome = "lose"
	OutcomeDraw Outcome = "draw"
	OutcomeNone Outcome = ""
)

// OutcomeOf scores choice a against choice b from a's point of view.
func OutcomeOf(a, b Choice) Outcome {
	if a == b {
		return OutcomeDraw
	}
	for _, beaten := range beats[a] {
		if beaten == b {
			return OutcomeWin
		}
	}
	return OutcomeLose
}
