package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/GoArmGo/PinAlbum/internal/di"
)

func main() {
	mode := flag.String("mode", "server", "Режим запуска: server (HTTP + главный цикл) или worker (реплика альбомов из очереди)")
	flag.Parse()

	// bootstrap-логгер нужен до того, как из конфига собран основной
	bootstrapLogger := slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
	)

	if *mode != "server" && *mode != "worker" {
		bootstrapLogger.Error("unknown mode", "mode", *mode)
		flag.Usage()
		os.Exit(2)
	}
	bootstrapLogger.Info("starting pinalbum", "mode", *mode)

	ctx := context.Background()

	app, err := di.BuildApp(ctx)
	if err != nil {
		bootstrapLogger.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	log := app.LoggerIns()
	if log == nil {
		bootstrapLogger.Error("main logger is nil")
		os.Exit(1)
	}

	if err := app.Run(ctx, mode); err != nil {
		log.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
