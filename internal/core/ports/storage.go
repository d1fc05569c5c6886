package ports

import (
	"context"
	"io"

	"github.com/GoArmGo/PinAlbum/internal/domain"
)

// RecordPersister определяет методы для долговременного хранения записей Pin и Photo
type RecordPersister interface {
	// Load возвращает все метки и фото в порядке их создания
	Load(ctx context.Context) ([]domain.Pin, []domain.Photo, error)

	// Apply фиксирует набор изменений одной транзакцией
	Apply(ctx context.Context, changes domain.ChangeSet) error
}

// BlobStorage определяет методы для работы с файловым хранилищем (AWS S3, MinIO)
type BlobStorage interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, contentType string) (string, error)
	GetFile(ctx context.Context, key string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, key string) error
}
