package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/GoArmGo/PinAlbum/internal/metrics"
	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/google/uuid"
)

// AlbumService — точка входа для экранов карты и альбома.
// Все методы вызываются на главном цикле.
type AlbumService struct {
	store     RecordStore
	searcher  PhotoSearcher
	fetcher   *ImageFetcher
	loop      Executor
	imageHost string
	logger    *slog.Logger

	// сессии ищутся по стабильному ID метки, а не по координатам
	sessions map[uuid.UUID]*AlbumSession
}

// NewAlbumService создает новый экземпляр AlbumService
func NewAlbumService(
	store RecordStore,
	searcher PhotoSearcher,
	fetcher *ImageFetcher,
	loop Executor,
	imageHost string,
	logger *slog.Logger,
) *AlbumService {
	if imageHost == "" {
		imageHost = domain.DefaultImageHost
	}
	return &AlbumService{
		store:     store,
		searcher:  searcher,
		fetcher:   fetcher,
		loop:      loop,
		imageHost: imageHost,
		logger:    logger,
		sessions:  make(map[uuid.UUID]*AlbumSession),
	}
}

// Pins возвращает все метки карты
func (a *AlbumService) Pins() []domain.Pin {
	return a.store.Pins()
}

// SubscribePins подписывает наблюдателя на вставки и удаления меток карты
func (a *AlbumService) SubscribePins(o store.Observer) (unsubscribe func()) {
	return a.store.Subscribe(store.AllPins(), o)
}

// AddPin создает метку по нажатию на карту и сразу фиксирует ее
func (a *AlbumService) AddPin(ctx context.Context, latitude, longitude float64) (domain.Pin, error) {
	pin := a.store.CreatePin(latitude, longitude)
	if err := a.store.Save(ctx); err != nil {
		return pin, fmt.Errorf("usecase: ошибка при сохранении метки %s: %w", pin.ID, err)
	}
	a.logger.Info("pin added", "pin_id", pin.ID, "lat", latitude, "lon", longitude)
	return pin, nil
}

// DeletePin закрывает сессию альбома метки и удаляет метку вместе с фото
func (a *AlbumService) DeletePin(ctx context.Context, pinID uuid.UUID) error {
	a.CloseAlbum(pinID)
	if err := a.store.DeletePin(pinID); err != nil {
		return fmt.Errorf("usecase: %w", err)
	}
	if err := a.store.Save(ctx); err != nil {
		return fmt.Errorf("usecase: ошибка при удалении метки %s: %w", pinID, err)
	}
	a.logger.Info("pin deleted", "pin_id", pinID)
	return nil
}

// OpenAlbum открывает (или возвращает уже открытую) сессию альбома и активирует ее.
// Пока идет поиск, повторная активация ничего не делает.
func (a *AlbumService) OpenAlbum(ctx context.Context, pinID uuid.UUID, view AlbumView) (*AlbumSession, error) {
	if session, ok := a.sessions[pinID]; ok {
		// повторный показ пустого альбома снова запускает поиск
		session.Activate(ctx)
		return session, nil
	}

	pin, ok := a.store.Pin(pinID)
	if !ok {
		return nil, fmt.Errorf("usecase: open album %s: %w", pinID, domain.ErrPinNotFound)
	}

	session := newAlbumSession(pin, a.store, a.searcher, a.fetcher, a.loop, view, a.imageHost, a.logger)
	a.sessions[pinID] = session
	metrics.ActiveAlbumSessions.Inc()

	session.Activate(ctx)
	return session, nil
}

// Session возвращает открытую сессию альбома метки
func (a *AlbumService) Session(pinID uuid.UUID) (*AlbumSession, bool) {
	session, ok := a.sessions[pinID]
	return session, ok
}

// CloseAlbum закрывает сессию; незавершенные запросы просто не найдут ее
func (a *AlbumService) CloseAlbum(pinID uuid.UUID) {
	session, ok := a.sessions[pinID]
	if !ok {
		return
	}
	delete(a.sessions, pinID)
	session.Close()
	metrics.ActiveAlbumSessions.Dec()
}

// Photo возвращает фото по ID
func (a *AlbumService) Photo(photoID uuid.UUID) (domain.Photo, bool) {
	return a.store.Photo(photoID)
}

// EnsureImage запускает загрузку изображения фото, если его еще нет.
// Без открытой сессии загрузка привязывается только к существованию фото.
func (a *AlbumService) EnsureImage(ctx context.Context, photoID uuid.UUID) (bool, error) {
	photo, ok := a.store.Photo(photoID)
	if !ok {
		return false, fmt.Errorf("usecase: %w", domain.ErrPhotoNotFound)
	}
	if session, ok := a.sessions[photo.PinID]; ok {
		return session.EnsureImage(ctx, photoID)
	}
	return a.fetcher.EnsureImage(ctx, photo, nil), nil
}

// DeletePhoto удаляет одно фото по выбору пользователя
func (a *AlbumService) DeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	photo, ok := a.store.Photo(photoID)
	if !ok {
		return fmt.Errorf("usecase: %w", domain.ErrPhotoNotFound)
	}
	if session, ok := a.sessions[photo.PinID]; ok {
		return session.DeletePhoto(ctx, photoID)
	}
	if err := a.store.DeletePhoto(photoID); err != nil {
		return fmt.Errorf("usecase: %w", err)
	}
	if err := a.store.Save(ctx); err != nil {
		return fmt.Errorf("usecase: ошибка при удалении фото %s: %w", photoID, err)
	}
	return nil
}

// Close закрывает все сессии (при остановке приложения)
func (a *AlbumService) Close() {
	for pinID := range a.sessions {
		a.CloseAlbum(pinID)
	}
}
