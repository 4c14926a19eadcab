package game_rps

import (
	"context"
	"testing"
	"time"

	"github.com/ivanmolchanov/roomsync/internal/model"
	realtime_broker "github.com/ivanmolchanov/roomsync/internal/realtime/broker"
	usecase_session "github.com/ivanmolchanov/roomsync/internal/usecase/session"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

type EngineSuite struct {
	suite.Suite
}

type peer struct {
	sess   *usecase_session.Session
	engine *Engine
}

func newPeer(broker *realtime_broker.Broker, room model.RoomCode, id model.ClientID) *peer {
	binding := broker.Bind("room:"+string(room), id)
	sess := usecase_session.New(binding, usecase_session.Config{
		RoomCode:   room,
		GameType:   model.GameTypeRPS,
		MinPlayers: 2,
		MaxPlayers: 2,
		ClientID:   id,
	})
	engine := NewEngine(sess, nil)
	sess.OnRoomStateChange(engine.RoomStateChanged)
	return &peer{sess: sess, engine: engine}
}

func joinedPair(t provider.T, broker *realtime_broker.Broker, room model.RoomCode) (*peer, *peer) {
	ctx := context.Background()

	a := newPeer(broker, room, "user-1")
	b := newPeer(broker, room, "user-2")
	require.NoError(t, a.sess.Join(ctx))
	require.NoError(t, b.sess.Join(ctx))

	require.Eventually(t, func() bool {
		return len(a.sess.Snapshot().Players) == 2 && len(b.sess.Snapshot().Players) == 2
	}, waitFor, tick, "both peers should see a full roster")

	return a, b
}

func (s *EngineSuite) TestRoundReconciliation(t provider.T) {
	t.Run("Should converge on the leader's result", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		a, b := joinedPair(t, broker, "ABCD")
		ctx := context.Background()

		require.NoError(t, a.engine.Choose(ctx, Rock))
		require.NoError(t, b.engine.Choose(ctx, Fire))

		require.Eventually(t, func() bool {
			return a.engine.Snapshot().Finished && b.engine.Snapshot().Finished
		}, waitFor, tick)

		snapA := a.engine.Snapshot()
		snapB := b.engine.Snapshot()

		// Rock beats Fire in the relation table.
		assert.Equal(t, OutcomeWin, snapA.Result)
		assert.Equal(t, OutcomeLose, snapB.Result)
		assert.Equal(t, Fire, snapA.OpponentChoice)
		assert.Equal(t, Rock, snapB.OpponentChoice)

		// Byte-identical score state on both peers.
		assert.Equal(t, snapA.Scores, snapB.Scores)
		assert.Equal(t, Score{Wins: 1}, snapA.Scores["user-1"])
		assert.Equal(t, Score{Wins: 0}, snapA.Scores["user-2"])
	})

	t.Run("Should draw on identical choices with unchanged scores", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		a, b := joinedPair(t, broker, "ABCD")
		ctx := context.Background()

		require.NoError(t, a.engine.Choose(ctx, Rock))
		require.NoError(t, b.engine.Choose(ctx, Rock))

		require.Eventually(t, func() bool {
			return a.engine.Snapshot().Finished && b.engine.Snapshot().Finished
		}, waitFor, tick)

		assert.Equal(t, OutcomeDraw, a.engine.Snapshot().Result)
		assert.Equal(t, OutcomeDraw, b.engine.Snapshot().Result)
		assert.Equal(t, Score{Wins: 0}, a.engine.Snapshot().Scores["user-1"])
		assert.Equal(t, Score{Wins: 0}, a.engine.Snapshot().Scores["user-2"])
	})

	t.Run("Should reject a second choice in the same round", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		a, _ := joinedPair(t, broker, "ABCD")
		ctx := context.Background()

		require.NoError(t, a.engine.Choose(ctx, Rock))
		assert.ErrorIs(t, a.engine.Choose(ctx, Paper), ErrAlreadyChosen)
	})
}

func (s *EngineSuite) TestResultIdempotence(t provider.T) {
	broker := realtime_broker.New()
	defer broker.Close()
	a, b := joinedPair(t, broker, "ABCD")
	ctx := context.Background()

	payload := ResultPayload{
		Player1Choice: Rock,
		Player2Choice: Scissors,
		Player1Result: OutcomeWin,
		Player2Result: OutcomeLose,
		Player1ID:     "user-1",
		Player2ID:     "user-2",
		NewScores: map[model.ClientID]Score{
			"user-1": {Wins: 1},
			"user-2": {Wins: 0},
		},
	}

	// Deliver the same result broadcast twice: scores are replaced
	// from the payload, never incremented locally.
	require.NoError(t, a.sess.SendMessage(ctx, MsgGameResult, payload))
	require.NoError(t, a.sess.SendMessage(ctx, MsgGameResult, payload))

	require.Eventually(t, func() bool {
		return a.engine.Snapshot().Finished && b.engine.Snapshot().Finished
	}, waitFor, tick)

	for _, p := range []*peer{a, b} {
		snap := p.engine.Snapshot()
		assert.Equal(t, Score{Wins: 1}, snap.Scores["user-1"])
		assert.Equal(t, Score{Wins: 0}, snap.Scores["user-2"])
		assert.Equal(t, 1, snap.Round)
	}
}

func (s *EngineSuite) TestPlayAgain(t provider.T) {
	t.Run("Should reset both peers once all present players voted", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		a, b := joinedPair(t, broker, "ABCD")
		ctx := context.Background()

		require.NoError(t, a.engine.Choose(ctx, Gun))
		require.NoError(t, b.engine.Choose(ctx, Water))
		require.Eventually(t, func() bool {
			return a.engine.Snapshot().Finished && b.engine.Snapshot().Finished
		}, waitFor, tick)

		require.NoError(t, a.engine.VotePlayAgain(ctx))
		require.NoError(t, b.engine.VotePlayAgain(ctx))

		require.Eventually(t, func() bool {
			snapA, snapB := a.engine.Snapshot(), b.engine.Snapshot()
			return snapA.Round == 2 && snapB.Round == 2
		}, waitFor, tick)

		for _, p := range []*peer{a, b} {
			snap := p.engine.Snapshot()
			assert.False(t, snap.Finished)
			assert.Empty(t, snap.MyChoice)
			assert.Empty(t, snap.PlayAgainVotes)
			assert.Equal(t, OutcomeNone, snap.Result)
		}
	})

	t.Run("Should reset for the remaining voter when the opponent disconnects", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		a, b := joinedPair(t, broker, "ABCD")
		ctx := context.Background()

		require.NoError(t, a.engine.Choose(ctx, Snake))
		require.NoError(t, b.engine.Choose(ctx, Tree))
		require.Eventually(t, func() bool {
			return a.engine.Snapshot().Finished
		}, waitFor, tick)

		require.NoError(t, a.engine.VotePlayAgain(ctx))
		b.sess.Leave()

		// The threshold tracks the live roster size, not the size at
		// voting time: one vote out of one present player completes.
		require.Eventually(t, func() bool {
			snap := a.engine.Snapshot()
			return snap.Round == 2 && !snap.Finished
		}, waitFor, tick)
	})
}

func (s *EngineSuite) TestScenarioFromSortedLeader(t provider.T) {
	// Whichever peer runs the check, only user-1 (sorts first)
	// publishes the result; delivery converges both.
	broker := realtime_broker.New()
	defer broker.Close()
	a, b := joinedPair(t, broker, "room-x")
	ctx := context.Background()

	require.NoError(t, b.engine.Choose(ctx, Lightning))
	require.NoError(t, a.engine.Choose(ctx, Devil))

	require.Eventually(t, func() bool {
		return a.engine.Snapshot().Finished && b.engine.Snapshot().Finished
	}, waitFor, tick)

	// Devil beats Lightning.
	assert.Equal(t, OutcomeWin, a.engine.Snapshot().Result)
	assert.Equal(t, OutcomeLose, b.engine.Snapshot().Result)
	assert.Equal(t, a.engine.Snapshot().Scores, b.engine.Snapshot().Scores)
}

func TestEngineSuite(t *testing.T) {
	suite.RunSuite(t, new(EngineSuite))
}
