// Package usecase_room mints and resolves room codes. A room's
// metadata lives in the registry with an idle TTL; the room itself
// exists only as long as someone holds presence on its channel, so
// expiry here is bookkeeping, not teardown.
package usecase_room

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ivanmolchanov/roomsync/internal/model"
)

var (
	ErrUnknownGameType  = errors.New("unknown game type")
	ErrResourceNotFound = errors.New("no such resource")
	ErrInternal         = errors.New("internal error")
)

// Record is the registered metadata for one room code.
type Record struct {
	Code       model.RoomCode `json:"room_code"`
	GameType   string         `json:"game_type"`
	MinPlayers int            `json:"min_players"`
	MaxPlayers int            `json:"max_players"`
	CreatedAt  time.Time      `json:"created_at"`
}

//go:generate mockery --name=Registry --output=./mocks/registry --filename=registry.go
type Registry interface {
	Store(ctx context.Context, rec Record, ttl time.Duration) error
	Load(ctx context.Context, code model.RoomCode) (Record, error)
}

type Usecase struct {
	registry Registry
	ttl      time.Duration
}

func New(registry Registry, ttl time.Duration) *Usecase {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Usecase{
		registry: registry,
		ttl:      ttl,
	}
}

// Create mints an opaque room code for the given game type. Codes are
// UUIDs, so no conflict retry is needed.
func (u *Usecase) Create(ctx context.Context, gameType string) (Record, error) {
	cfg, ok := model.GameConfigFor(gameType)
	if !ok {
		return Record{}, ErrUnknownGameType
	}

	rec := Record{
		Code:       model.RoomCode(uuid.NewString()),
		GameType:   cfg.GameType,
		MinPlayers: cfg.MinPlayers,
		MaxPlayers: cfg.MaxPlayers,
		CreatedAt:  time.Now().UTC(),
	}
	if err := u.registry.Store(ctx, rec, u.ttl); err != nil {
		return Record{}, errors.Join(ErrInternal, err)
	}
	return rec, nil
}

// Info resolves a room code back to its registered metadata.
func (u *Usecase) Info(ctx context.Context, code model.RoomCode) (Record, error) {
	rec, err := u.registry.Load(ctx, code)
	if err != nil {
		if errors.Is(err, ErrResourceNotFound) {
			return Record{}, ErrResourceNotFound
		}
		return Record{}, errors.Join(ErrInternal, err)
	}
	return rec, nil
}
