package game_rps

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/ivanmolchanov/roomsync/internal/model"
)

var (
	ErrAlreadyChosen = errors.New("choice already made this round")
	ErrRoundOver     = errors.New("round already finished")
	ErrBadChoice     = errors.New("unknown choice")
)

// Game message types exchanged between peers.
const (
	MsgPlayerChoice  = "player-choice"
	MsgGameResult    = "game-result"
	MsgPlayAgainVote = "play-again-vote"
	MsgGameReset     = "game-reset"
)

// Room is the slice of the room session the engine consumes.
type Room interface {
	SendMessage(ctx context.Context, msgType string, data any) error
	RegisterMessageHandler(handler func(model.GameMessage))
	Snapshot() model.RoomState
	CurrentPlayer() model.Player
}

// ExpectedPlayers is the choice-set size that triggers result
// computation for this game.
const ExpectedPlayers = 2

type choicePayload struct {
	Choice   Choice         `json:"choice"`
	PlayerID model.ClientID `json:"playerId"`
}

// ResultPayload is the single authoritative round outcome the leader
// broadcasts. Every peer applies this instead of trusting a local
// computation, so all of them observe identical outcome and scores.
type ResultPayload struct {
	Player1Choice Choice                   `json:"player1Choice"`
	Player2Choice Choice                   `json:"player2Choice"`
	Player1Result Outcome                  `json:"player1Result"`
	Player2Result Outcome                  `json:"player2Result"`
	Player1ID     model.ClientID           `json:"player1Id"`
	Player2ID     model.ClientID           `json:"player2Id"`
	NewScores     map[model.ClientID]Score `json:"newScores"`
}

type Score struct {
	Wins int `json:"wins"`
}

// Snapshot is a copy of the engine's visible state for UI layers.
type Snapshot struct {
	Round             int
	MyChoice          Choice
	OpponentChoice    Choice
	OpponentHasChosen bool
	Result            Outcome
	Finished          bool
	PlayAgainVotes    []model.ClientID
	Scores            map[model.ClientID]Score
}

// Engine runs one client's side of the round reconciliation protocol.
// All peers run the identical code; convergence comes from the shared
// message order, the leader election rule and the one-shot result
// latch, not from any privileged coordinator.
type Engine struct {
	room   Room
	logger *slog.Logger

	mu               sync.Mutex
	round            int
	myChoice         Choice
	opponentChoice   Choice
	opponentChosen   bool
	result           Outcome
	finished         bool
	allChoices       map[model.ClientID]Choice
	votes            map[model.ClientID]struct{}
	scores           map[model.ClientID]Score
	resultCalculated bool

	onChange func(Snapshot)
}

func NewEngine(room Room, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		room:       room,
		logger:     logger,
		round:      1,
		allChoices: make(map[model.ClientID]Choice),
		votes:      make(map[model.ClientID]struct{}),
		scores:     make(map[model.ClientID]Score),
	}
	room.RegisterMessageHandler(e.handleMessage)
	return e
}

// OnChange registers a callback fired after every state transition.
func (e *Engine) OnChange(cb func(Snapshot)) {
	e.mu.Lock()
	e.onChange = cb
	e.mu.Unlock()
}

// Choose records and broadcasts this player's choice for the current
// round. The choice set converges through the broadcast echo: even our
// own choice only enters allChoices when the message comes back.
func (e *Engine) Choose(ctx context.Context, c Choice) error {
	if !ValidChoice(c) {
		return ErrBadChoice
	}

	e.mu.Lock()
	if e.finished {
		e.mu.Unlock()
		return ErrRoundOver
	}
	if e.myChoice != "" {
		e.mu.Unlock()
		return ErrAlreadyChosen
	}
	e.myChoice = c
	e.mu.Unlock()

	return e.room.SendMessage(ctx, MsgPlayerChoice, choicePayload{
		Choice:   c,
		PlayerID: e.room.CurrentPlayer().ClientID,
	})
}

// VotePlayAgain broadcasts this player's wish to continue.
func (e *Engine) VotePlayAgain(ctx context.Context) error {
	return e.room.SendMessage(ctx, MsgPlayAgainVote, map[string]any{})
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	votes := make([]model.ClientID, 0, len(e.votes))
	for id := range e.votes {
		votes = append(votes, id)
	}
	scores := make(map[model.ClientID]Score, len(e.scores))
	for id, sc := range e.scores {
		scores[id] = sc
	}
	return Snapshot{
		Round:             e.round,
		MyChoice:          e.myChoice,
		OpponentChoice:    e.opponentChoice,
		OpponentHasChosen: e.opponentChosen,
		Result:            e.result,
		Finished:          e.finished,
		PlayAgainVotes:    votes,
		Scores:            scores,
	}
}

// RoomStateChanged re-evaluates the vote threshold against the new
// roster. The threshold is the current roster size, not a fixed
// constant: when a voter's opponent disconnects, the remaining vote
// set can still complete.
func (e *Engine) RoomStateChanged(state model.RoomState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range state.Players {
		if _, ok := e.scores[p.ClientID]; !ok {
			e.scores[p.ClientID] = Score{}
		}
	}
	// A roster change can also complete a pending round: the result
	// latch keeps the two trigger paths from double-firing.
	e.maybeComputeResultLocked(e.room.CurrentPlayer().ClientID, state.Players)
	e.maybeResetLocked(len(state.Players))
	e.notifyLocked()
}

func (e *Engine) handleMessage(msg model.GameMessage) {
	switch msg.Type {
	case MsgPlayerChoice:
		e.handleChoice(msg)
	case MsgGameResult:
		e.handleResult(msg)
	case MsgPlayAgainVote:
		e.handleVote(msg)
	case MsgGameReset:
		e.handleReset()
	}
}

func (e *Engine) handleChoice(msg model.GameMessage) {
	var payload choicePayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		e.logger.Warn("malformed choice payload", slog.String("error", err.Error()))
		return
	}
	if payload.Choice == "" || payload.PlayerID == "" {
		return
	}

	me := e.room.CurrentPlayer().ClientID
	roster := e.room.Snapshot().Players

	e.mu.Lock()
	e.allChoices[payload.PlayerID] = payload.Choice
	if payload.PlayerID != me {
		e.opponentChosen = true
	}
	e.maybeComputeResultLocked(me, roster)
	e.notifyLocked()
	e.mu.Unlock()
}

// maybeComputeResultLocked fires only on the elected leader, only once
// per round. Leadership is re-derived from the current roster every
// time, so it migrates with the roster.
func (e *Engine) maybeComputeResultLocked(me model.ClientID, roster []model.Player) {
	if len(roster) != ExpectedPlayers || len(e.allChoices) != ExpectedPlayers {
		return
	}
	if e.resultCalculated {
		return
	}

	ids := make([]model.ClientID, 0, len(roster))
	for _, p := range roster {
		ids = append(ids, p.ClientID)
	}
	if Leader(ids) != me {
		return
	}

	p1, p2 := roster[0].ClientID, roster[1].ClientID
	c1, ok1 := e.allChoices[p1]
	c2, ok2 := e.allChoices[p2]
	if !ok1 || !ok2 {
		return
	}

	e.resultCalculated = true

	r1 := OutcomeOf(c1, c2)
	r2 := OutcomeOf(c2, c1)

	newScores := make(map[model.ClientID]Score, len(e.scores)+2)
	for id, sc := range e.scores {
		newScores[id] = sc
	}
	for _, id := range []model.ClientID{p1, p2} {
		if _, ok := newScores[id]; !ok {
			newScores[id] = Score{}
		}
	}
	if r1 == OutcomeWin {
		newScores[p1] = Score{Wins: newScores[p1].Wins + 1}
	} else if r2 == OutcomeWin {
		newScores[p2] = Score{Wins: newScores[p2].Wins + 1}
	}

	payload := ResultPayload{
		Player1Choice: c1,
		Player2Choice: c2,
		Player1Result: r1,
		Player2Result: r2,
		Player1ID:     p1,
		Player2ID:     p2,
		NewScores:     newScores,
	}

	// Publish outside the lock; the result only becomes local state
	// when the broadcast comes back, same as on every other peer.
	go func() {
		if err := e.room.SendMessage(context.Background(), MsgGameResult, payload); err != nil {
			e.logger.Error("result broadcast failed", slog.String("error", err.Error()))
		}
	}()
}

// handleResult applies the leader's broadcast. Scores are replaced,
// not incremented, so a duplicate delivery cannot double-count.
func (e *Engine) handleResult(msg model.GameMessage) {
	var payload ResultPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		e.logger.Warn("malformed result payload", slog.String("error", err.Error()))
		return
	}
	if payload.NewScores == nil {
		return
	}

	me := e.room.CurrentPlayer().ClientID

	e.mu.Lock()
	defer e.mu.Unlock()

	e.scores = payload.NewScores
	e.finished = true
	if me == payload.Player1ID {
		e.result = payload.Player1Result
		e.opponentChoice = payload.Player2Choice
	} else {
		e.result = payload.Player2Result
		e.opponentChoice = payload.Player1Choice
	}
	e.notifyLocked()
}

func (e *Engine) handleVote(msg model.GameMessage) {
	rosterSize := len(e.room.Snapshot().Players)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.votes[msg.FromPlayer] = struct{}{}
	if e.maybeResetLocked(rosterSize) {
		// Broadcast the reset too so laggards converge; the
		// transition is idempotent, duplicates are harmless.
		go func() {
			if err := e.room.SendMessage(context.Background(), MsgGameReset, map[string]any{}); err != nil {
				e.logger.Warn("reset broadcast failed", slog.String("error", err.Error()))
			}
		}()
	}
	e.notifyLocked()
}

func (e *Engine) handleReset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	e.notifyLocked()
}

// maybeResetLocked advances the round once every currently-present
// player has voted. With zero votes nothing happens: an empty room
// never spins.
func (e *Engine) maybeResetLocked(rosterSize int) bool {
	if len(e.votes) == 0 || rosterSize == 0 || len(e.votes) < rosterSize {
		return false
	}
	e.resetLocked()
	return true
}

// resetLocked clears round state atomically: choices, result and votes
// go together, never partially. Resetting an already-clean round is a
// no-op so converging resets don't skip round numbers.
func (e *Engine) resetLocked() {
	clean := e.myChoice == "" && !e.finished && len(e.allChoices) == 0 &&
		len(e.votes) == 0 && !e.resultCalculated
	if clean {
		return
	}

	e.myChoice = ""
	e.opponentChoice = ""
	e.opponentChosen = false
	e.result = OutcomeNone
	e.finished = false
	e.allChoices = make(map[model.ClientID]Choice)
	e.votes = make(map[model.ClientID]struct{})
	e.resultCalculated = false
	e.round++
}

func (e *Engine) notifyLocked() {
	if e.onChange == nil {
		return
	}
	snap := e.snapshotLocked()
	cb := e.onChange
	go cb(snap)
}

// Leader elects the single result-computing peer: the client id that
// sorts lexicographically first among those present.
func Leader(ids []model.ClientID) model.ClientID {
	var leader model.ClientID
	for _, id := range ids {
		if leader == "" || id < leader {
			leader = id
		}
	}
	return leader
}
