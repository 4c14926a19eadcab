package infra_redis_room_registry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
	"github.com/ivanmolchanov/roomsync/internal/model"
	usecase_room "github.com/ivanmolchanov/roomsync/internal/usecase/room"
)

type Driver struct {
	client *redis.Client
	key    string
}

func New(
	client *redis.Client,
	key string,
) *Driver {
	return &Driver{
		client: client,
		key:    key,
	}
}

func (d *Driver) Store(ctx context.Context, rec usecase_room.Record, ttl time.Duration) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return d.client.Set(d.getFullKey(string(rec.Code)), raw, ttl).Err()
}

func (d *Driver) Load(ctx context.Context, code model.RoomCode) (usecase_room.Record, error) {
	raw, err := d.client.Get(d.getFullKey(string(code))).Bytes()
	if err != nil {
		if err == redis.Nil {
			return usecase_room.Record{}, usecase_room.ErrResourceNotFound
		}
		return usecase_room.Record{}, err
	}

	var rec usecase_room.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return usecase_room.Record{}, err
	}
	return rec, nil
}

func (d *Driver) getFullKey(key string) string {
	if d.key != "" {
		return d.key + ":" + key
	}
	return key
}
