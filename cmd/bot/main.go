// Headless player: joins a room over the relay and plays
// rock-paper-scissors rounds with random choices. Useful as a test
// opponent and as an end-to-end exercise of the client stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"time"

	game_rps "github.com/ivanmolchanov/roomsync/internal/game/rps"
	"github.com/ivanmolchanov/roomsync/internal/model"
	realtime_wsclient "github.com/ivanmolchanov/roomsync/internal/realtime/wsclient"
	usecase_session "github.com/ivanmolchanov/roomsync/internal/usecase/session"
)

func main() {
	var (
		relayURL = flag.String("relay", "ws://localhost:8080/api/v1/realtime/ws", "relay websocket endpoint")
		roomCode = flag.String("room", "", "room code to join")
		name     = flag.String("name", "", "display name")
		rounds   = flag.Int("rounds", 0, "rounds to play before leaving (0 = until interrupted)")
	)
	flag.Parse()

	logger := slog.Default()

	if *roomCode == "" {
		fmt.Fprintln(os.Stderr, "usage: bot -room <code> [-relay <url>] [-name <name>] [-rounds <n>]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	conn, err := realtime_wsclient.Dial(ctx, *relayURL, "")
	if err != nil {
		logger.Error("relay dial failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer conn.Close()

	cfg, _ := model.GameConfigFor(model.GameTypeRPS)
	binding := conn.Channel("room:" + *roomCode)
	sess := usecase_session.New(binding, usecase_session.Config{
		RoomCode:   model.RoomCode(*roomCode),
		GameType:   cfg.GameType,
		MinPlayers: cfg.MinPlayers,
		MaxPlayers: cfg.MaxPlayers,
		ClientID:   conn.ClientID(),
		PlayerName: *name,
	})

	engine := game_rps.NewEngine(sess, logger)
	sess.OnRoomStateChange(engine.RoomStateChanged)

	if err := sess.Join(ctx); err != nil {
		logger.Error("join failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sess.Leave()

	logger.Info("joined",
		slog.String("room", *roomCode),
		slog.String("client_id", sess.CurrentPlayer().ClientID.String()))

	played := 0
	lastCounted := 0
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snap := engine.Snapshot()
		state := sess.Snapshot()

		switch {
		case state.Phase != model.PhasePlaying:
			// waiting for an opponent

		case snap.Finished:
			// A finished round stays finished until everyone votes;
			// count and vote once per round, not once per tick.
			if snap.Round == lastCounted {
				continue
			}
			lastCounted = snap.Round
			played++
			logger.Info("round finished",
				slog.Int("round", snap.Round),
				slog.String("result", string(snap.Result)))
			if *rounds > 0 && played >= *rounds {
				return
			}
			if err := engine.VotePlayAgain(ctx); err != nil {
				logger.Warn("play-again vote failed", slog.String("error", err.Error()))
			}

		case snap.MyChoice == "":
			choices := game_rps.Choices()
			choice := choices[rand.Intn(len(choices))]
			if err := engine.Choose(ctx, choice); err != nil {
				logger.Warn("choice rejected", slog.String("error", err.Error()))
			} else {
				logger.Info("chose", slog.String("choice", string(choice)))
			}
		}
	}
}
