package ws_relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ivanmolchanov/roomsync/internal/model"
	realtime_broker "github.com/ivanmolchanov/roomsync/internal/realtime/broker"
	realtime_wsclient "github.com/ivanmolchanov/roomsync/internal/realtime/wsclient"
	usecase_session "github.com/ivanmolchanov/roomsync/internal/usecase/session"
	"github.com/ozontech/allure-go/pkg/framework/provider"
	"github.com/ozontech/allure-go/pkg/framework/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second
const tick = 10 * time.Millisecond

type RelaySuite struct {
	suite.Suite
}

func startRelay(broker *realtime_broker.Broker) (*httptest.Server, string) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewController(broker).RegisterRoutes(engine.Group("/api/v1"))
	srv := httptest.NewServer(engine)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/realtime/ws"
}

func remoteSession(conn *realtime_wsclient.Conn, room model.RoomCode, name string) *usecase_session.Session {
	return usecase_session.New(conn.Channel("room:"+string(room)), usecase_session.Config{
		RoomCode:   room,
		GameType:   model.GameTypeRPS,
		MinPlayers: 2,
		MaxPlayers: 2,
		ClientID:   conn.ClientID(),
		PlayerName: name,
	})
}

func (s *RelaySuite) TestRoundTrip(t provider.T) {
	broker := realtime_broker.New()
	defer broker.Close()
	srv, wsURL := startRelay(broker)
	defer srv.Close()
	ctx := context.Background()

	connA, err := realtime_wsclient.Dial(ctx, wsURL, "user-1")
	require.NoError(t, err)
	defer connA.Close()
	connB, err := realtime_wsclient.Dial(ctx, wsURL, "user-2")
	require.NoError(t, err)
	defer connB.Close()

	a := remoteSession(connA, "ABCD", "Alice")
	b := remoteSession(connB, "ABCD", "Bob")
	require.NoError(t, a.Join(ctx))
	require.NoError(t, b.Join(ctx))

	// Presence crosses the relay: both remote clients converge on the
	// same roster.
	require.Eventually(t, func() bool {
		return len(a.Snapshot().Players) == 2 && len(b.Snapshot().Players) == 2
	}, waitFor, tick)

	var mu sync.Mutex
	var got []model.GameMessage
	b.RegisterMessageHandler(func(msg model.GameMessage) {
		mu.Lock()
		got = append(got, msg)
		mu.Unlock()
	})

	require.NoError(t, a.SendMessage(ctx, "player-choice", map[string]any{"choice": "Rock", "playerId": "user-1"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, waitFor, tick)

	mu.Lock()
	msg := got[0]
	mu.Unlock()
	assert.Equal(t, "player-choice", msg.Type)
	assert.Equal(t, model.ClientID("user-1"), msg.FromPlayer)
}

func (s *RelaySuite) TestDisconnectCleansPresence(t provider.T) {
	broker := realtime_broker.New()
	defer broker.Close()
	srv, wsURL := startRelay(broker)
	defer srv.Close()
	ctx := context.Background()

	connA, err := realtime_wsclient.Dial(ctx, wsURL, "user-1")
	require.NoError(t, err)
	defer connA.Close()
	connB, err := realtime_wsclient.Dial(ctx, wsURL, "user-2")
	require.NoError(t, err)

	a := remoteSession(connA, "ABCD", "Alice")
	b := remoteSession(connB, "ABCD", "Bob")
	require.NoError(t, a.Join(ctx))
	require.NoError(t, b.Join(ctx))

	require.Eventually(t, func() bool {
		return len(a.Snapshot().Players) == 2
	}, waitFor, tick)

	// An abrupt socket close, not a polite leave. The relay detaches
	// the dead connection's bindings, which clears its presence.
	require.NoError(t, connB.Close())

	require.Eventually(t, func() bool {
		snap := a.Snapshot()
		return len(snap.Players) == 1 && snap.Phase == model.PhaseWaiting
	}, waitFor, tick)
}

func (s *RelaySuite) TestCapacityAcrossRelay(t provider.T) {
	broker := realtime_broker.New()
	defer broker.Close()
	srv, wsURL := startRelay(broker)
	defer srv.Close()
	ctx := context.Background()

	conns := make([]*realtime_wsclient.Conn, 0, 3)
	for _, id := range []model.ClientID{"user-1", "user-2", "user-3"} {
		conn, err := realtime_wsclient.Dial(ctx, wsURL, id)
		require.NoError(t, err)
		defer conn.Close()
		conns = append(conns, conn)
	}

	require.NoError(t, remoteSession(conns[0], "ABCD", "Alice").Join(ctx))
	require.NoError(t, remoteSession(conns[1], "ABCD", "Bob").Join(ctx))

	c := remoteSession(conns[2], "ABCD", "Cara")
	assert.ErrorIs(t, c.Join(ctx), usecase_session.ErrRoomFull)
	assert.True(t, c.RoomFull())
}

func TestRelaySuite(t *testing.T) {
	suite.RunSuite(t, new(RelaySuite))
}
