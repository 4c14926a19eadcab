// Package usecase_session turns a presence-capable broadcast channel
// into a consistent multiplayer room: attach/detach lifecycle, a
// presence-derived roster, and validated message dispatch. One Session
// is one client's membership in one room; callers own it and must
// call Leave when done.
package usecase_session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ivanmolchanov/roomsync/internal/model"
	"github.com/ivanmolchanov/roomsync/internal/realtime"
)

var (
	ErrRoomFull     = errors.New("room full")
	ErrJoinFailed   = errors.New("join failed")
	ErrNotJoined    = errors.New("not joined to a room")
	ErrInvalidInput = errors.New("invalid input")
)

// Config describes the room membership a Session maintains.
type Config struct {
	RoomCode   model.RoomCode
	GameType   string
	MinPlayers int
	MaxPlayers int

	// ClientID is minted when empty; PlayerName falls back to the
	// deterministic id-derived name.
	ClientID   model.ClientID
	PlayerName string

	OnPlayerJoin      func(model.Player)
	OnPlayerLeave     func(model.Player)
	OnRoomStateChange func(model.RoomState)

	Logger *slog.Logger
}

type Session struct {
	binding   realtime.Binding
	lifecycle *lifecycle
	router    *router
	logger    *slog.Logger

	cfg     Config
	current model.Player

	mu          sync.Mutex
	tracker     *rosterTracker
	joined      bool
	full        bool
	unsubs      []realtime.Unsubscribe
	onJoin      func(model.Player)
	onLeave     func(model.Player)
	onRoomState func(model.RoomState)

	// alive gates every asynchronous continuation; once cleared on
	// Leave, late callbacks are no-ops.
	alive atomic.Bool
}

func New(binding realtime.Binding, cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = model.NewClientID()
	}
	if cfg.PlayerName == "" {
		cfg.PlayerName = model.FallbackName(cfg.ClientID)
	}
	if cfg.MinPlayers <= 0 {
		cfg.MinPlayers = 2
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = cfg.MinPlayers
	}

	s := &Session{
		binding:   binding,
		lifecycle: newLifecycle(binding, cfg.Logger),
		logger:    cfg.Logger,
		cfg:       cfg,
		current: model.Player{
			ClientID: cfg.ClientID,
			Name:     cfg.PlayerName,
		},
		tracker: newRosterTracker(cfg.RoomCode, cfg.GameType, cfg.MinPlayers, cfg.MaxPlayers),
	}
	s.onJoin = cfg.OnPlayerJoin
	s.onLeave = cfg.OnPlayerLeave
	s.onRoomState = cfg.OnRoomStateChange
	s.router = newRouter(cfg.Logger, s.applyRoomState)
	s.alive.Store(true)
	return s
}

// OnRoomStateChange replaces the roster-change callback. Engines use
// this to track the live roster for their vote thresholds.
func (s *Session) OnRoomStateChange(cb func(model.RoomState)) {
	s.mu.Lock()
	s.onRoomState = cb
	s.mu.Unlock()
}

// Join attaches the channel, enters presence and starts tracking the
// room. At most one presence enter happens per Session; a second Join
// on a joined session is a no-op.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.joined {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	if err := s.lifecycle.attach(ctx); err != nil {
		return errors.Join(ErrJoinFailed, err)
	}

	presence := s.binding.Presence()

	// Check-then-enter is not atomic: two racing joiners can briefly
	// both pass. Accepted limitation of the peer-symmetric design.
	members, err := presence.Get(ctx)
	if err != nil {
		return errors.Join(ErrJoinFailed, err)
	}
	if s.tracker.full(members) {
		s.mu.Lock()
		s.full = true
		s.mu.Unlock()
		return ErrRoomFull
	}

	if err := presence.Enter(ctx, s.presenceData(nil)); err != nil {
		return errors.Join(ErrJoinFailed, err)
	}

	s.refreshRoster(ctx)

	msgUnsub := s.binding.Subscribe(func(msg realtime.Message) {
		if !s.alive.Load() {
			return
		}
		s.router.dispatch(msg)
	})
	enterUnsub := presence.Subscribe(realtime.PresenceEnter, func(m realtime.Member) {
		if !s.alive.Load() {
			return
		}
		s.refreshRoster(context.Background())
		if cb := s.joinCallback(); cb != nil {
			cb(memberToPlayer(m))
		}
	})
	leaveUnsub := presence.Subscribe(realtime.PresenceLeave, func(m realtime.Member) {
		if !s.alive.Load() {
			return
		}
		s.refreshRoster(context.Background())
		if cb := s.leaveCallback(); cb != nil {
			cb(memberToPlayer(m))
		}
	})
	updateUnsub := presence.Subscribe(realtime.PresenceUpdate, func(realtime.Member) {
		if !s.alive.Load() {
			return
		}
		s.refreshRoster(context.Background())
	})

	s.mu.Lock()
	s.joined = true
	s.unsubs = append(s.unsubs, msgUnsub, enterUnsub, leaveUnsub, updateUnsub)
	s.mu.Unlock()

	s.logger.Info("joined room",
		slog.String("room", string(s.cfg.RoomCode)),
		slog.String("client_id", s.current.ClientID.String()))
	return nil
}

// Leave tears the membership down, best-effort. It never reports an
// error: the session is ending and there is nothing useful a caller
// could do with one.
func (s *Session) Leave() {
	if !s.alive.CompareAndSwap(true, false) {
		return
	}

	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.joined = false
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	s.lifecycle.teardown()

	s.logger.Info("left room", slog.String("room", string(s.cfg.RoomCode)))
}

// SendMessage publishes a game message tagged with this client's id.
func (s *Session) SendMessage(ctx context.Context, msgType string, data any) error {
	if msgType == "" {
		return fmt.Errorf("%w : empty message type", ErrInvalidInput)
	}
	if !s.isJoined() {
		return ErrNotJoined
	}

	payload := map[string]any{
		"type":       msgType,
		"data":       data,
		"fromPlayer": s.current.ClientID,
	}
	return s.binding.Publish(ctx, model.EnvelopeGameMessage, payload)
}

// UpdatePlayerData merges game-specific fields into this player's
// presence record, keeping name and game type.
func (s *Session) UpdatePlayerData(ctx context.Context, data map[string]any) error {
	if !s.isJoined() {
		return ErrNotJoined
	}
	return s.binding.Presence().Update(ctx, s.presenceData(data))
}

// PublishRoomState broadcasts the current snapshot with replaced game
// data as a room-state envelope.
func (s *Session) PublishRoomState(ctx context.Context, gameData map[string]any) error {
	if !s.isJoined() {
		return ErrNotJoined
	}

	s.mu.Lock()
	state := s.tracker.snapshot()
	s.mu.Unlock()
	state.GameData = gameData

	return s.binding.Publish(ctx, model.EnvelopeRoomState, state)
}

// RegisterMessageHandler installs the game-level message handler.
// One handler is active at a time; registering again replaces it.
func (s *Session) RegisterMessageHandler(h func(model.GameMessage)) {
	s.router.register(h)
}

func (s *Session) Snapshot() model.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.snapshot()
}

func (s *Session) CurrentPlayer() model.Player {
	return s.current
}

func (s *Session) Connected() bool {
	return s.binding.State() == realtime.StateAttached
}

// RoomFull reports whether this client's join was rejected because the
// room was already at capacity.
func (s *Session) RoomFull() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full
}

func (s *Session) isJoined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

func (s *Session) presenceData(extra map[string]any) map[string]any {
	data := map[string]any{
		"name":     s.current.Name,
		"gameType": s.cfg.GameType,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// refreshRoster re-queries the full presence set and swaps the roster
// atomically. Errors are not propagated: the next presence event
// retries for free.
func (s *Session) refreshRoster(ctx context.Context) {
	members, err := s.binding.Presence().Get(ctx)
	if err != nil {
		s.logger.Warn("presence get failed", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	state := s.tracker.refresh(members)
	s.full = s.tracker.full(members)
	cb := s.onRoomState
	s.mu.Unlock()

	if cb != nil {
		cb(state)
	}
}

func (s *Session) applyRoomState(state model.RoomState) {
	s.mu.Lock()
	state = s.tracker.replace(state)
	cb := s.onRoomState
	s.mu.Unlock()

	if cb != nil {
		cb(state)
	}
}

func (s *Session) joinCallback() func(model.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onJoin
}

func (s *Session) leaveCallback() func(model.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onLeave
}
