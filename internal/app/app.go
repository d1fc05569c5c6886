package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/GoArmGo/PinAlbum/internal/config"
	"github.com/GoArmGo/PinAlbum/internal/core/ports"
	"github.com/GoArmGo/PinAlbum/internal/database/client"
	"github.com/GoArmGo/PinAlbum/internal/handler"
	"github.com/GoArmGo/PinAlbum/internal/mainloop"
	"github.com/GoArmGo/PinAlbum/internal/messaging"
	"github.com/GoArmGo/PinAlbum/internal/preferences"
	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/GoArmGo/PinAlbum/internal/usecase"
)

type App struct {
	Config        *config.Config
	logger        *slog.Logger
	db            *client.Client
	loop          *mainloop.Loop
	recordStore   *store.Store
	albumService  *usecase.AlbumService
	albumHandler  *handler.AlbumHandler
	forwarder     *messaging.Forwarder
	batchConsumer ports.StoreBatchConsumer
	prefs         preferences.Store
}

func NewApp(cfg *config.Config,
	logger *slog.Logger,
	db *client.Client,
	loop *mainloop.Loop,
	recordStore *store.Store,
	albumService *usecase.AlbumService,
	albumHandler *handler.AlbumHandler,
	forwarder *messaging.Forwarder,
	batchConsumer ports.StoreBatchConsumer,
	prefs preferences.Store) *App {
	return &App{
		Config:        cfg,
		logger:        logger,
		db:            db,
		loop:          loop,
		recordStore:   recordStore,
		albumService:  albumService,
		albumHandler:  albumHandler,
		forwarder:     forwarder,
		batchConsumer: batchConsumer,
		prefs:         prefs,
	}
}

// LoggerIns возвращает основной логгер приложения
func (a *App) LoggerIns() *slog.Logger {
	return a.logger
}

func (a *App) Run(ctx context.Context, mode *string) error {
	// канал для graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.logger.Info("starting app", "mode", *mode)

	var err error

	switch *mode {
	case "server":
		err = runServer(ctx, a.Config, a.logger, a.loop, a.recordStore, a.albumService, a.albumHandler, a.forwarder)

	case "worker":
		err = runWorker(ctx, a.logger, a.batchConsumer)

	default:
		err = fmt.Errorf("неизвестный режим: %s (используйте 'server' или 'worker')", *mode)
	}

	// аккуратно закрываем ресурсы
	if closeErr := a.Shutdown(); closeErr != nil {
		a.logger.Error("shutdown finished with errors", "error", closeErr)
	}

	if err != nil {
		return err
	}
	a.logger.Info("app stopped")
	return nil
}

// Shutdown закрывает все ресурсы приложения
func (a *App) Shutdown() error {
	var errs []error

	// если consumer/настройки имеют методы Close, вызываем их
	if closer, ok := a.batchConsumer.(interface{ Close() }); ok {
		closer.Close()
	}
	if closer, ok := a.prefs.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ошибка закрытия хранилища настроек: %w", err))
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("ошибка закрытия БД: %w", err))
		}
	}

	return errors.Join(errs...)
}
