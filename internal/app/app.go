package app

import (
	"github.com/ivanmolchanov/roomsync/internal/config"
	http_init "github.com/ivanmolchanov/roomsync/internal/delivery/http/init"
	http_room "github.com/ivanmolchanov/roomsync/internal/delivery/http/room"
	ws_relay "github.com/ivanmolchanov/roomsync/internal/delivery/ws/relay"
	infra_redis_init "github.com/ivanmolchanov/roomsync/internal/infra/redis/init"
	infra_redis_room_registry "github.com/ivanmolchanov/roomsync/internal/infra/redis/room_registry"
	realtime_broker "github.com/ivanmolchanov/roomsync/internal/realtime/broker"
	usecase_room "github.com/ivanmolchanov/roomsync/internal/usecase/room"
)

func Go(cfg *config.Config) {
	redisConn := infra_redis_init.MustEstablishConn(cfg.Redis)

	registry := infra_redis_room_registry.New(redisConn, "room_registry")
	roomUC := usecase_room.New(registry, cfg.Rooms.RegistryTTL)

	broker := realtime_broker.New()
	defer broker.Close()

	controllerPool := http_init.NewControllerPool()
	controllerPool.Add(http_room.New(roomUC))
	controllerPool.Add(ws_relay.NewController(broker))

	controllerPool.Register()
	controllerPool.RunAll(cfg.HTTP.Port)
}
