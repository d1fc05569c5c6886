package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/GoArmGo/PinAlbum/internal/metrics"
	"github.com/google/uuid"
)

// ImageFetcher скачивает изображения фото по требованию и записывает байты
// обратно в хранилище. Повторные вызовы для одного фото не объединяются:
// каждый запускает свою загрузку, последняя запись выигрывает.
type ImageFetcher struct {
	downloader ImageDownloader
	store      RecordStore
	loop       Executor
	logger     *slog.Logger
}

// NewImageFetcher создает новый экземпляр ImageFetcher
func NewImageFetcher(downloader ImageDownloader, store RecordStore, loop Executor, logger *slog.Logger) *ImageFetcher {
	return &ImageFetcher{
		downloader: downloader,
		store:      store,
		loop:       loop,
		logger:     logger,
	}
}

// EnsureImage запускает загрузку, если у фото нет изображения, и сообщает,
// была ли она запущена. alive (может быть nil) проверяется на главном цикле
// перед записью; ложь означает, что результат больше никому не нужен.
func (f *ImageFetcher) EnsureImage(ctx context.Context, photo domain.Photo, alive func() bool) bool {
	if !photo.Pending() {
		return false
	}

	ctx = context.WithoutCancel(ctx)
	downloader, loop := f.downloader, f.loop

	go func() {
		data, err := downloader.DownloadImage(ctx, photo.URLPath)
		if !loop.Post(func() { f.complete(ctx, photo.ID, data, err, alive) }) {
			f.logger.Warn("main loop stopped, image dropped", "photo_id", photo.ID)
		}
	}()
	return true
}

func (f *ImageFetcher) complete(ctx context.Context, photoID uuid.UUID, data []byte, err error, alive func() bool) {
	if alive != nil && !alive() {
		f.logger.Debug("image download finished after album session closed", "photo_id", photoID)
		return
	}
	if err != nil {
		// фото остается без изображения и будет запрошено при следующем показе
		metrics.ImageDownloadsTotal.WithLabelValues("error").Inc()
		f.logger.Warn("image download failed", "photo_id", photoID, "error", err)
		return
	}

	if err := f.store.SetImage(photoID, data); err != nil {
		if errors.Is(err, domain.ErrPhotoNotFound) {
			f.logger.Debug("photo deleted before image arrived", "photo_id", photoID)
			return
		}
		f.logger.Error("failed to set image", "photo_id", photoID, "error", err)
		return
	}
	if err := f.store.Save(ctx); err != nil {
		f.logger.Error("failed to commit image", "photo_id", photoID, "error", err)
		return
	}

	metrics.ImageDownloadsTotal.WithLabelValues("ok").Inc()
	f.logger.Debug("image stored", "photo_id", photoID, "bytes", len(data))
}
