package main

import (
	"github.com/ivanmolchanov/roomsync/internal/app"
	"github.com/ivanmolchanov/roomsync/internal/config"
)

func main() {
	app.Go(config.Load())
}
