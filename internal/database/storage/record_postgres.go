package storage

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/GoArmGo/PinAlbum/internal/core/ports"
	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type pinRow struct {
	ID        uuid.UUID `db:"id"`
	Latitude  float64   `db:"latitude"`
	Longitude float64   `db:"longitude"`
	CreatedAt time.Time `db:"created_at"`
}

type photoRow struct {
	ID        uuid.UUID      `db:"id"`
	PinID     uuid.UUID      `db:"pin_id"`
	URLPath   string         `db:"url_path"`
	ImageData []byte         `db:"image_data"`
	ImageKey  sql.NullString `db:"image_key"`
	CreatedAt time.Time      `db:"created_at"`
}

// RecordStorage реализует ports.RecordPersister поверх PostgreSQL.
// Если blobs задан, байты изображений уходят в объектное хранилище,
// а в таблице остается только ключ объекта.
type RecordStorage struct {
	db     *sqlx.DB
	blobs  ports.BlobStorage
	logger *slog.Logger
}

// NewRecordStorage создает новый экземпляр RecordStorage; blobs может быть nil
func NewRecordStorage(db *sqlx.DB, blobs ports.BlobStorage, logger *slog.Logger) *RecordStorage {
	return &RecordStorage{db: db, blobs: blobs, logger: logger}
}

// Load возвращает все метки и фото в порядке создания
func (s *RecordStorage) Load(ctx context.Context) ([]domain.Pin, []domain.Photo, error) {
	start := time.Now()

	var pinRows []pinRow
	if err := s.db.SelectContext(ctx, &pinRows,
		`SELECT id, latitude, longitude, created_at FROM pins ORDER BY seq`); err != nil {
		s.logger.Error("failed to load pins", "error", err)
		return nil, nil, fmt.Errorf("ошибка при загрузке меток: %w", err)
	}

	var photoRows []photoRow
	if err := s.db.SelectContext(ctx, &photoRows,
		`SELECT id, pin_id, url_path, image_data, image_key, created_at FROM photos ORDER BY seq`); err != nil {
		s.logger.Error("failed to load photos", "error", err)
		return nil, nil, fmt.Errorf("ошибка при загрузке фото: %w", err)
	}

	pins := make([]domain.Pin, 0, len(pinRows))
	for _, r := range pinRows {
		pins = append(pins, domain.Pin{ID: r.ID, Latitude: r.Latitude, Longitude: r.Longitude, CreatedAt: r.CreatedAt})
	}

	photos := make([]domain.Photo, 0, len(photoRows))
	for _, r := range photoRows {
		photo := domain.Photo{ID: r.ID, PinID: r.PinID, URLPath: r.URLPath, ImageData: r.ImageData, CreatedAt: r.CreatedAt}
		if r.ImageKey.Valid && s.blobs != nil {
			data, err := s.readBlob(ctx, r.ImageKey.String)
			if err != nil {
				// фото снова станет "ожидающим" и будет скачано при показе
				s.logger.Warn("failed to read image blob", "photo_id", r.ID, "key", r.ImageKey.String, "error", err)
			} else {
				photo.ImageData = data
			}
		}
		photos = append(photos, photo)
	}

	s.logger.Info("records loaded",
		"pins", len(pins),
		"photos", len(photos),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return pins, photos, nil
}

// Apply фиксирует набор изменений одной транзакцией
func (s *RecordStorage) Apply(ctx context.Context, changes domain.ChangeSet) error {
	if changes.Empty() {
		return nil
	}
	start := time.Now()

	keys, err := s.uploadImages(ctx, append(append([]domain.Photo(nil), changes.PhotosCreated...), changes.PhotosUpdated...))
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("failed to rollback transaction", "error", rbErr)
			}
		}
	}()

	var orphanKeys []string
	if len(changes.PhotosDeleted) > 0 {
		if err = tx.SelectContext(ctx, &orphanKeys,
			`SELECT image_key FROM photos WHERE id = ANY($1) AND image_key IS NOT NULL`,
			pq.Array(uuidStrings(changes.PhotosDeleted))); err != nil {
			return fmt.Errorf("ошибка при поиске объектов удаляемых фото: %w", err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM photos WHERE id = ANY($1)`,
			pq.Array(uuidStrings(changes.PhotosDeleted))); err != nil {
			return fmt.Errorf("ошибка при удалении фото: %w", err)
		}
	}

	if len(changes.PinsDeleted) > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM pins WHERE id = ANY($1)`,
			pq.Array(uuidStrings(changes.PinsDeleted))); err != nil {
			return fmt.Errorf("ошибка при удалении меток: %w", err)
		}
	}

	for _, pin := range changes.PinsCreated {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO pins (id, latitude, longitude, created_at) VALUES ($1, $2, $3, $4)`,
			pin.ID, pin.Latitude, pin.Longitude, pin.CreatedAt); err != nil {
			return fmt.Errorf("ошибка при сохранении метки %s: %w", pin.ID, err)
		}
	}

	for _, photo := range changes.PhotosCreated {
		data, key := s.imageColumns(photo, keys)
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO photos (id, pin_id, url_path, image_data, image_key, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			photo.ID, photo.PinID, photo.URLPath, data, key, photo.CreatedAt); err != nil {
			return fmt.Errorf("ошибка при сохранении фото %s: %w", photo.ID, err)
		}
	}

	for _, photo := range changes.PhotosUpdated {
		data, key := s.imageColumns(photo, keys)
		if _, err = tx.ExecContext(ctx,
			`UPDATE photos SET image_data = $2, image_key = $3 WHERE id = $1`,
			photo.ID, data, key); err != nil {
			return fmt.Errorf("ошибка при обновлении фото %s: %w", photo.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	s.deleteBlobs(ctx, orphanKeys)

	s.logger.Debug("changes applied",
		"pins_created", len(changes.PinsCreated),
		"pins_deleted", len(changes.PinsDeleted),
		"photos_created", len(changes.PhotosCreated),
		"photos_updated", len(changes.PhotosUpdated),
		"photos_deleted", len(changes.PhotosDeleted),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// uploadImages выгружает байты изображений в объектное хранилище
// и возвращает ключи объектов по ID фото.
func (s *RecordStorage) uploadImages(ctx context.Context, photos []domain.Photo) (map[uuid.UUID]string, error) {
	keys := make(map[uuid.UUID]string)
	if s.blobs == nil {
		return keys, nil
	}
	for _, photo := range photos {
		if photo.Pending() {
			continue
		}
		key := ImageKey(photo.ID)
		if _, err := s.blobs.UploadFile(ctx, key, bytes.NewReader(photo.ImageData), "image/jpeg"); err != nil {
			s.logger.Error("failed to upload image", "photo_id", photo.ID, "error", err)
			return nil, fmt.Errorf("ошибка загрузки изображения %s в хранилище: %w", photo.ID, err)
		}
		keys[photo.ID] = key
	}
	return keys, nil
}

func (s *RecordStorage) imageColumns(photo domain.Photo, keys map[uuid.UUID]string) ([]byte, sql.NullString) {
	if key, ok := keys[photo.ID]; ok {
		return nil, sql.NullString{String: key, Valid: true}
	}
	return photo.ImageData, sql.NullString{}
}

func (s *RecordStorage) readBlob(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.blobs.GetFile(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *RecordStorage) deleteBlobs(ctx context.Context, keys []string) {
	if s.blobs == nil {
		return
	}
	for _, key := range keys {
		if err := s.blobs.DeleteFile(ctx, key); err != nil {
			s.logger.Warn("failed to delete image blob", "key", key, "error", err)
		}
	}
}

// ImageKey возвращает ключ объекта изображения фото
func ImageKey(photoID uuid.UUID) string {
	return fmt.Sprintf("photos/%s.jpg", photoID)
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
