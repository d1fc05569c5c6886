package usecase

import (
	"context"

	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/google/uuid"
)

// PhotoSearcher определяет интерфейс поиска фото во внешнем источнике (Flickr API).
// Вызов блокирующий, выполняется вне главного цикла.
type PhotoSearcher interface {
	SearchPhotos(ctx context.Context, latitude, longitude float64) ([]domain.PhotoDescriptor, error)
}

// ImageDownloader скачивает байты изображения по адресу.
type ImageDownloader interface {
	DownloadImage(ctx context.Context, url string) ([]byte, error)
}

// Executor — главный контекст исполнения; Post можно вызывать из любой горутины.
type Executor interface {
	Post(fn func()) bool
}

// RecordStore — хранилище записей Pin и Photo. Используется только на главном цикле.
type RecordStore interface {
	CreatePin(latitude, longitude float64) domain.Pin
	DeletePin(id uuid.UUID) error
	Pin(id uuid.UUID) (domain.Pin, bool)
	Pins() []domain.Pin

	CreatePhoto(pinID uuid.UUID, urlPath string) (domain.Photo, error)
	SetImage(photoID uuid.UUID, data []byte) error
	DeletePhoto(photoID uuid.UUID) error
	Photo(id uuid.UUID) (domain.Photo, bool)
	PhotosOfPin(pinID uuid.UUID) []domain.Photo
	PhotoCount(pinID uuid.UUID) int

	Save(ctx context.Context) error
	Subscribe(q store.Query, o store.Observer) (unsubscribe func())
}

// AlbumView — то, что альбом показывает пользователю: доступность кнопки
// "новая коллекция" и всплывающие сообщения об ошибках.
// Если реализация также store.Observer, сессия подписывает ее на фото метки;
// если у нее есть Cancel(), сессия вызывает его при закрытии.
type AlbumView interface {
	SetNewCollectionEnabled(enabled bool)
	ShowAlert(title, message string)
}

// AlbumState — состояние сессии альбома.
type AlbumState int

const (
	Idle AlbumState = iota
	Loading
	Ready
)

func (s AlbumState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "idle"
	}
}

// UpdateFailedTitle — заголовок сообщения о неудачном обновлении альбома.
const UpdateFailedTitle = "Update Failed"
