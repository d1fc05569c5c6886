package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/GoArmGo/PinAlbum/internal/config"
	"github.com/GoArmGo/PinAlbum/internal/handler"
	"github.com/GoArmGo/PinAlbum/internal/mainloop"
	"github.com/GoArmGo/PinAlbum/internal/messaging"
	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/GoArmGo/PinAlbum/internal/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// runServer запускает главный цикл, HTTP сервер и публикацию пачек хранилища.
// Блокирует до отмены ctx.
func runServer(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	loop *mainloop.Loop,
	recordStore *store.Store,
	albumService *usecase.AlbumService,
	albumHandler *handler.AlbumHandler,
	forwarder *messaging.Forwarder,
) error {
	// цикл и публикация живут дольше HTTP сервера: их останавливаем сами
	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoop()
	go loop.Run(loopCtx)

	forwarderCtx, stopForwarder := context.WithCancel(context.WithoutCancel(ctx))
	defer stopForwarder()

	err := loop.Do(ctx, func() error {
		if err := recordStore.Load(ctx); err != nil {
			return err
		}
		recordStore.Subscribe(store.Everything(), forwarder)
		// реплика воркера должна знать загруженные записи, иначе индексы
		// следующих пачек ей ни о чем не скажут
		if snapshot := recordStore.Snapshot(store.Everything()); len(snapshot.Events) > 0 {
			forwarder.OnBatch(snapshot)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка загрузки хранилища записей: %w", err)
	}
	go forwarder.Run(forwarderCtx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(handler.RequestLogger(logger))

	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		albumHandler.Routes(r)
	})
	// websocket живет дольше таймаута запроса
	albumHandler.StreamRoutes(r)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: r,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", "addr", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("ошибка при запуске сервера: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown signal received, stopping http server")

	// Graceful Shutdown
	ctxServer, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxServer); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	// незавершенные поиски и загрузки больше не найдут свои сессии
	if err := loop.Do(ctxServer, func() error {
		albumService.Close()
		return nil
	}); err != nil {
		logger.Warn("failed to close album sessions", "error", err)
	}
	stopLoop()

	stopForwarder()
	select {
	case <-forwarder.Done():
	case <-ctxServer.Done():
		logger.Warn("forwarder did not drain in time")
	}

	logger.Info("http server stopped")
	return nil
}
