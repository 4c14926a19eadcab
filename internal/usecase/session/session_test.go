package usecase_session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ivanmolchanov/roomsync/internal/model"
	realtime_broker "github.com/ivanmolchanov/roomsync/internal/realtime/broker"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 10 * time.Millisecond

type SessionSuite struct {
	suite.Suite
}

func newSession(broker *realtime_broker.Broker, room model.RoomCode, id model.ClientID, name string) *Session {
	return New(broker.Bind("room:"+string(room), id), Config{
		RoomCode:   room,
		GameType:   model.GameTypeRPS,
		MinPlayers: 2,
		MaxPlayers: 2,
		ClientID:   id,
		PlayerName: name,
	})
}

func (s *SessionSuite) TestJoin(t provider.T) {
	t.Run("Should build the roster with names and phases", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		ctx := context.Background()

		a := newSession(broker, "ABCD", "user-1", "Alice")
		require.NoError(t, a.Join(ctx))

		snap := a.Snapshot()
		assert.Equal(t, model.PhaseWaiting, snap.Phase)
		require.Len(t, snap.Players, 1)
		assert.Equal(t, "Alice", snap.Players[0].Name)

		b := newSession(broker, "ABCD", "user-7", "")
		require.NoError(t, b.Join(ctx))

		require.Eventually(t, func() bool {
			return len(a.Snapshot().Players) == 2
		}, waitFor, tick)
		assert.Equal(t, model.PhasePlaying, a.Snapshot().Phase)

		// A missing display name falls back to the id suffix.
		other, ok := a.Snapshot().Player("user-7")
		require.True(t, ok)
		assert.Equal(t, "Player 7", other.Name)
	})

	t.Run("Should be idempotent", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		ctx := context.Background()

		a := newSession(broker, "ABCD", "user-1", "Alice")
		require.NoError(t, a.Join(ctx))
		require.NoError(t, a.Join(ctx))

		members, err := broker.Bind("room:ABCD", "probe").Presence().Get(ctx)
		require.NoError(t, err)
		assert.Len(t, members, 1)
	})

	t.Run("Should reject a joiner past capacity without entering presence", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		ctx := context.Background()

		a := newSession(broker, "ABCD", "user-1", "Alice")
		b := newSession(broker, "ABCD", "user-2", "Bob")
		c := newSession(broker, "ABCD", "user-3", "Cara")
		require.NoError(t, a.Join(ctx))
		require.NoError(t, b.Join(ctx))

		assert.ErrorIs(t, c.Join(ctx), ErrRoomFull)
		assert.True(t, c.RoomFull())
		assert.ErrorIs(t, c.SendMessage(ctx, "ping", nil), ErrNotJoined)

		_, ok := a.Snapshot().Player("user-3")
		assert.False(t, ok)
	})
}

func (s *SessionSuite) TestMessaging(t provider.T) {
	t.Run("Should deliver well-formed game messages to the handler", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		ctx := context.Background()

		a := newSession(broker, "ABCD", "user-1", "Alice")
		b := newSession(broker, "ABCD", "user-2", "Bob")
		require.NoError(t, a.Join(ctx))
		require.NoError(t, b.Join(ctx))

		var mu sync.Mutex
		var got []model.GameMessage
		b.RegisterMessageHandler(func(msg model.GameMessage) {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
		})

		require.NoError(t, a.SendMessage(ctx, "player-choice", map[string]any{"choice": "Rock"}))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 1
		}, waitFor, tick)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "player-choice", got[0].Type)
		assert.Equal(t, model.ClientID("user-1"), got[0].FromPlayer)
		assert.False(t, got[0].Timestamp.IsZero())
	})

	t.Run("Should drop malformed envelopes without crashing", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		ctx := context.Background()

		a := newSession(broker, "ABCD", "user-1", "Alice")
		require.NoError(t, a.Join(ctx))

		var mu sync.Mutex
		var got []model.GameMessage
		a.RegisterMessageHandler(func(msg model.GameMessage) {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
		})

		raw := broker.Bind("room:ABCD", "user-9")
		require.NoError(t, raw.Attach(ctx))
		require.NoError(t, raw.Publish(ctx, model.EnvelopeGameMessage, json.RawMessage(`"not an object"`)))
		require.NoError(t, raw.Publish(ctx, model.EnvelopeGameMessage, json.RawMessage(`[1,2,3]`)))
		require.NoError(t, raw.Publish(ctx, model.EnvelopeGameMessage, map[string]any{
			"data": map[string]any{}, "fromPlayer": "user-9",
		}))
		require.NoError(t, raw.Publish(ctx, model.EnvelopeGameMessage, map[string]any{
			"type": "ping", "fromPlayer": "",
		}))
		// A valid message after the garbage proves the pipeline is
		// still alive and ordered.
		require.NoError(t, raw.Publish(ctx, model.EnvelopeGameMessage, map[string]any{
			"type": "ping", "fromPlayer": "user-9",
		}))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 1
		}, waitFor, tick)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "ping", got[0].Type)
	})

	t.Run("Should replace the handler on re-registration", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		ctx := context.Background()

		a := newSession(broker, "ABCD", "user-1", "Alice")
		require.NoError(t, a.Join(ctx))

		var mu sync.Mutex
		var first, second int
		a.RegisterMessageHandler(func(model.GameMessage) {
			mu.Lock()
			first++
			mu.Unlock()
		})
		a.RegisterMessageHandler(func(model.GameMessage) {
			mu.Lock()
			second++
			mu.Unlock()
		})

		require.NoError(t, a.SendMessage(ctx, "ping", nil))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return second == 1
		}, waitFor, tick)

		mu.Lock()
		defer mu.Unlock()
		assert.Zero(t, first)
	})

	t.Run("Should reject an empty message type", func(t provider.T) {
		broker := realtime_broker.New()
		defer broker.Close()
		ctx := context.Background()

		a := newSession(broker, "ABCD", "user-1", "Alice")
		require.NoError(t, a.Join(ctx))
		assert.ErrorIs(t, a.SendMessage(ctx, "", nil), ErrInvalidInput)
	})
}

func (s *SessionSuite) TestPresenceData(t provider.T) {
	broker := realtime_broker.New()
	defer broker.Close()
	ctx := context.Background()

	a := newSession(broker, "ABCD", "user-1", "Alice")
	b := newSession(broker, "ABCD", "user-2", "Bob")
	require.NoError(t, a.Join(ctx))
	require.NoError(t, b.Join(ctx))

	require.NoError(t, b.UpdatePlayerData(ctx, map[string]any{"ready": true}))

	// Updates merge into the presence record; the name survives.
	require.Eventually(t, func() bool {
		p, ok := a.Snapshot().Player("user-2")
		if !ok || p.Data == nil {
			return false
		}
		ready, _ := p.Data["ready"].(bool)
		return ready && p.Name == "Bob"
	}, waitFor, tick)
}

func (s *SessionSuite) TestRoomStateBroadcast(t provider.T) {
	broker := realtime_broker.New()
	defer broker.Close()
	ctx := context.Background()

	a := newSession(broker, "ABCD", "user-1", "Alice")
	b := newSession(broker, "ABCD", "user-2", "Bob")
	require.NoError(t, a.Join(ctx))
	require.NoError(t, b.Join(ctx))

	require.Eventually(t, func() bool {
		return len(a.Snapshot().Players) == 2
	}, waitFor, tick)

	require.NoError(t, a.PublishRoomState(ctx, map[string]any{"round": float64(3)}))

	require.Eventually(t, func() bool {
		snap := b.Snapshot()
		if snap.GameData == nil {
			return false
		}
		round, _ := snap.GameData["round"].(float64)
		return round == 3
	}, waitFor, tick)
}

func (s *SessionSuite) TestLeave(t provider.T) {
	broker := realtime_broker.New()
	defer broker.Close()
	ctx := context.Background()

	a := newSession(broker, "ABCD", "user-1", "Alice")
	b := newSession(broker, "ABCD", "user-2", "Bob")
	require.NoError(t, a.Join(ctx))
	require.NoError(t, b.Join(ctx))

	require.Eventually(t, func() bool {
		return len(a.Snapshot().Players) == 2
	}, waitFor, tick)

	b.Leave()
	b.Leave()

	require.Eventually(t, func() bool {
		snap := a.Snapshot()
		return len(snap.Players) == 1 && snap.Phase == model.PhaseWaiting
	}, waitFor, tick)

	assert.ErrorIs(t, b.SendMessage(ctx, "ping", nil), ErrNotJoined)
	assert.False(t, b.Connected())
}

func TestSessionSuite(t *testing.T) {
	suite.RunSuite(t, new(SessionSuite))
}
