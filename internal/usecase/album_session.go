package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"weak"

	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/google/uuid"
)

// AlbumSession — альбом одной метки: синхронизирует результаты поиска с
// хранилищем. Состояния Idle -> Loading -> Ready; ошибка состояние не меняет.
//
// Пока идет поиск, кнопка "новая коллекция" выключена: это единственное,
// что не дает запустить второй поиск для той же метки.
type AlbumSession struct {
	pin       domain.Pin
	store     RecordStore
	searcher  PhotoSearcher
	fetcher   *ImageFetcher
	loop      Executor
	view      AlbumView
	imageHost string
	logger    *slog.Logger

	state         AlbumState
	actionEnabled bool
	closed        bool
	unsubscribe   func()
}

func newAlbumSession(
	pin domain.Pin,
	recordStore RecordStore,
	searcher PhotoSearcher,
	fetcher *ImageFetcher,
	loop Executor,
	view AlbumView,
	imageHost string,
	logger *slog.Logger,
) *AlbumSession {
	s := &AlbumSession{
		pin:           pin,
		store:         recordStore,
		searcher:      searcher,
		fetcher:       fetcher,
		loop:          loop,
		view:          view,
		imageHost:     imageHost,
		logger:        logger.With("pin_id", pin.ID),
		actionEnabled: true,
	}
	if observer, ok := view.(store.Observer); ok {
		s.unsubscribe = recordStore.Subscribe(store.PhotosOf(pin.ID), observer)
	}
	return s
}

// Pin возвращает метку альбома
func (s *AlbumSession) Pin() domain.Pin { return s.pin }

// State возвращает текущее состояние сессии
func (s *AlbumSession) State() AlbumState { return s.state }

// ActionEnabled сообщает, доступна ли кнопка "новая коллекция"
func (s *AlbumSession) ActionEnabled() bool { return s.actionEnabled }

// Closed сообщает, закрыта ли сессия
func (s *AlbumSession) Closed() bool { return s.closed }

// Photos возвращает фото альбома
func (s *AlbumSession) Photos() []domain.Photo {
	return s.store.PhotosOfPin(s.pin.ID)
}

// Activate вызывается при показе альбома: пустой альбом запускает поиск.
func (s *AlbumSession) Activate(ctx context.Context) {
	if s.closed || s.state == Loading {
		return
	}
	if s.store.PhotoCount(s.pin.ID) > 0 {
		s.state = Ready
		s.setActionEnabled(true)
		return
	}
	s.fetch(ctx)
}

// Refresh удаляет все фото метки и загружает новую случайную выборку.
// Во время поиска игнорируется.
func (s *AlbumSession) Refresh(ctx context.Context) error {
	if s.closed {
		return domain.ErrSessionClosed
	}
	if !s.actionEnabled || s.state == Loading {
		s.logger.Debug("refresh ignored, search in progress")
		return nil
	}
	s.setActionEnabled(false)

	for _, photo := range s.store.PhotosOfPin(s.pin.ID) {
		if err := s.store.DeletePhoto(photo.ID); err != nil {
			s.logger.Error("failed to delete photo before refresh", "photo_id", photo.ID, "error", err)
		}
	}
	if err := s.store.Save(ctx); err != nil {
		s.logger.Error("failed to commit album clear", "error", err)
		s.view.ShowAlert(UpdateFailedTitle, err.Error())
		s.setActionEnabled(true)
		return fmt.Errorf("usecase: refresh album: %w", err)
	}

	s.fetch(ctx)
	return nil
}

// EnsureImage запускает загрузку изображения фото альбома, если его еще нет.
func (s *AlbumSession) EnsureImage(ctx context.Context, photoID uuid.UUID) (bool, error) {
	if s.closed {
		return false, domain.ErrSessionClosed
	}
	photo, ok := s.store.Photo(photoID)
	if !ok || photo.PinID != s.pin.ID {
		return false, fmt.Errorf("usecase: %w", domain.ErrPhotoNotFound)
	}
	return s.fetcher.EnsureImage(ctx, photo, s.aliveFunc()), nil
}

// DeletePhoto удаляет одно фото альбома.
func (s *AlbumSession) DeletePhoto(ctx context.Context, photoID uuid.UUID) error {
	photo, ok := s.store.Photo(photoID)
	if !ok || photo.PinID != s.pin.ID {
		return fmt.Errorf("usecase: %w", domain.ErrPhotoNotFound)
	}
	if err := s.store.DeletePhoto(photoID); err != nil {
		return fmt.Errorf("usecase: %w", err)
	}
	if err := s.store.Save(ctx); err != nil {
		s.logger.Error("failed to commit photo deletion", "photo_id", photoID, "error", err)
		return fmt.Errorf("usecase: ошибка при удалении фото %s: %w", photoID, err)
	}
	return nil
}

// Close завершает сессию: отписывает представление и отменяет его
// незавершенные пачки. Сетевые запросы не отменяются.
func (s *AlbumSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if canceler, ok := s.view.(interface{ Cancel() }); ok {
		canceler.Cancel()
	}
	s.logger.Info("album session closed")
}

func (s *AlbumSession) fetch(ctx context.Context) {
	s.state = Loading
	s.setActionEnabled(false)

	// запрос переживает HTTP-вызов, который его запустил
	ctx = context.WithoutCancel(ctx)
	pin, searcher, loop := s.pin, s.searcher, s.loop
	ref := weak.Make(s)
	logger := s.logger

	go func() {
		descriptors, err := searcher.SearchPhotos(ctx, pin.Latitude, pin.Longitude)
		posted := loop.Post(func() {
			session := ref.Value()
			if session == nil || session.closed {
				logger.Debug("search completed after album session closed")
				return
			}
			session.handleSearchResponse(ctx, descriptors, err)
		})
		if !posted {
			logger.Warn("main loop stopped, search result dropped")
		}
	}()
}

func (s *AlbumSession) handleSearchResponse(ctx context.Context, descriptors []domain.PhotoDescriptor, err error) {
	if err != nil {
		s.logger.Warn("photo search failed", "error", err)
		s.view.ShowAlert(UpdateFailedTitle, err.Error())
	}

	for _, d := range descriptors {
		if _, createErr := s.store.CreatePhoto(s.pin.ID, d.URLOn(s.imageHost)); createErr != nil {
			s.logger.Error("failed to create photo", "flickr_id", d.ID, "error", createErr)
		}
	}
	if saveErr := s.store.Save(ctx); saveErr != nil {
		s.logger.Error("failed to commit search results", "error", saveErr)
		s.view.ShowAlert(UpdateFailedTitle, saveErr.Error())
	}

	if s.store.PhotoCount(s.pin.ID) > 0 {
		s.state = Ready
	} else {
		s.state = Idle
	}
	s.setActionEnabled(true)

	s.logger.Info("album updated", "found", len(descriptors), "photos", s.store.PhotoCount(s.pin.ID))
}

func (s *AlbumSession) setActionEnabled(enabled bool) {
	s.actionEnabled = enabled
	s.view.SetNewCollectionEnabled(enabled)
}

// aliveFunc проверяет сессию через слабую ссылку, не удерживая ее.
func (s *AlbumSession) aliveFunc() func() bool {
	ref := weak.Make(s)
	return func() bool {
		session := ref.Value()
		return session != nil && !session.closed
	}
}
