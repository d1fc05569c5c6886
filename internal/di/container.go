package di

import (
	"context"

	"github.com/GoArmGo/PinAlbum/internal/adapter/flickr"
	"github.com/GoArmGo/PinAlbum/internal/adapter/kv/redis"
	"github.com/GoArmGo/PinAlbum/internal/adapter/storage/minio"
	"github.com/GoArmGo/PinAlbum/internal/app"
	"github.com/GoArmGo/PinAlbum/internal/config"
	"github.com/GoArmGo/PinAlbum/internal/core/ports"
	"github.com/GoArmGo/PinAlbum/internal/database/client"
	"github.com/GoArmGo/PinAlbum/internal/database/postgres"
	"github.com/GoArmGo/PinAlbum/internal/database/storage"
	"github.com/GoArmGo/PinAlbum/internal/handler"
	"github.com/GoArmGo/PinAlbum/internal/logger"
	"github.com/GoArmGo/PinAlbum/internal/mainloop"
	"github.com/GoArmGo/PinAlbum/internal/messaging"
	"github.com/GoArmGo/PinAlbum/internal/preferences"
	"github.com/GoArmGo/PinAlbum/internal/rabbitmq"
	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/GoArmGo/PinAlbum/internal/usecase"
)

// BuildApp инициализирует все зависимости и возвращает готовый объект App.
func BuildApp(ctx context.Context) (*app.App, error) {
	// 1. Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	slogCfg := logger.SlogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}
	slogger := logger.NewSlog(slogCfg)

	slogger.Info("logger initialized", "level", cfg.LogLevel, "format", cfg.LogFormat)

	// 2. Инициализация PostgreSQL клиента (миграции применяются здесь же)
	dbClient, err := client.NewClient(cfg, slogger)
	if err != nil {
		return nil, err
	}

	// 3. Файловое хранилище изображений: без MinIO байты лежат в бд
	var blobs ports.BlobStorage
	if cfg.MinioEnabled {
		fileStorage, err := minio.NewMinioClient(ctx, cfg, slogger) // S3 / MinIO адаптер
		if err != nil {
			_ = dbClient.Close()
			return nil, err
		}
		blobs = fileStorage
	}

	// 4. Инициализация хранилища записей
	recordStorage := storage.NewRecordStorage(dbClient.DB, blobs, slogger)
	recordStore := store.New(recordStorage, slogger)

	// 5. Инициализация клиента Flickr
	flickrClient := flickr.NewFlickrAPIClient(cfg, slogger)

	// 6. Инициализация RabbitMQ клиента и публикации пачек
	rabbitMQClient, err := rabbitmq.NewClient(cfg, slogger)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	forwarder := messaging.NewForwarder(rabbitMQClient, 0, slogger)

	// 7. Хранилище настроек карты
	var prefs preferences.Store
	switch cfg.PreferencesBackend {
	case config.PreferencesRedis:
		redisClient, err := redis.NewClient(ctx, cfg, slogger)
		if err != nil {
			rabbitMQClient.Close()
			_ = dbClient.Close()
			return nil, err
		}
		prefs = redisClient
	default:
		prefs = postgres.NewGormPreferenceStorage(dbClient.Gorm, slogger)
	}

	// 8. Главный цикл и бизнес-логика (usecases)
	loop := mainloop.New(cfg.MainLoopQueue, slogger)
	fetcher := usecase.NewImageFetcher(flickrClient, recordStore, loop, slogger)
	albumService := usecase.NewAlbumService(recordStore, flickrClient, fetcher, loop, flickrClient.ImageHost(), slogger)
	albumHandler := handler.NewAlbumHandler(albumService, loop, prefs, slogger)

	// 9. Сборка итогового приложения
	application := app.NewApp(
		cfg,
		slogger,
		dbClient,
		loop,
		recordStore,
		albumService,
		albumHandler,
		forwarder,
		rabbitMQClient,
		prefs,
	)

	slogger.Info("all dependencies initialized")
	return application, nil
}
