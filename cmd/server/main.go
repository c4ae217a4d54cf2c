package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"arena-rooms/server/internal/app"
	"arena-rooms/server/internal/telemetry"
)

func main() {
	roomSize := flag.Int("room-size", 0, "players per room; overrides ARENA_SESSION_ROOM_SIZE when positive")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.New(os.Stderr, "", log.LstdFlags)
	if err := app.Run(ctx, app.Options{Logger: telemetry.WrapLogger(logger), RoomSize: *roomSize}); err != nil {
		log.Fatalf("%v", err)
	}
}
