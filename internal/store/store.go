package store

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/GoArmGo/PinAlbum/internal/core/ports"
	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/GoArmGo/PinAlbum/internal/metrics"
	"github.com/google/uuid"
)

// Store — коллекция записей Pin и Photo, единственный источник истины для
// альбомов. Не потокобезопасен: используется только на главном цикле.
//
// Изменения сначала видны в запросах, но наблюдатели и persister узнают о них
// только при Save.
type Store struct {
	pins     map[uuid.UUID]*domain.Pin
	pinOrder []uuid.UUID
	photos   map[uuid.UUID]*domain.Photo
	byPin    map[uuid.UUID][]uuid.UUID

	// состояние на момент последней фиксации, нужно для старых индексов
	committedPinOrder []uuid.UUID
	committedByPin    map[uuid.UUID][]uuid.UUID

	pending pendingChanges

	subs    []subscription
	nextSub int
	seq     uint64

	persister ports.RecordPersister
	now       func() time.Time
	logger    *slog.Logger
}

type subscription struct {
	id       int
	query    Query
	observer Observer
}

type pendingChanges struct {
	createdPins   []uuid.UUID
	deletedPins   []uuid.UUID
	createdPhotos []uuid.UUID
	updatedPhotos map[uuid.UUID]struct{}
	deletedPhotos []uuid.UUID
}

func (p *pendingChanges) empty() bool {
	return len(p.createdPins) == 0 && len(p.deletedPins) == 0 &&
		len(p.createdPhotos) == 0 && len(p.updatedPhotos) == 0 && len(p.deletedPhotos) == 0
}

func (p *pendingChanges) reset() {
	*p = pendingChanges{updatedPhotos: make(map[uuid.UUID]struct{})}
}

// New создает пустое хранилище. persister может быть nil, тогда записи живут только в памяти.
func New(persister ports.RecordPersister, logger *slog.Logger) *Store {
	s := &Store{
		pins:           make(map[uuid.UUID]*domain.Pin),
		photos:         make(map[uuid.UUID]*domain.Photo),
		byPin:          make(map[uuid.UUID][]uuid.UUID),
		committedByPin: make(map[uuid.UUID][]uuid.UUID),
		persister:      persister,
		now:            time.Now,
		logger:         logger,
	}
	s.pending.reset()
	return s
}

// Load заполняет хранилище сохраненными записями. Наблюдатели не уведомляются.
func (s *Store) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	start := time.Now()

	pins, photos, err := s.persister.Load(ctx)
	if err != nil {
		return &domain.LocalStoreError{Op: "load", Err: err}
	}

	for i := range pins {
		pin := pins[i]
		s.pins[pin.ID] = &pin
		s.pinOrder = append(s.pinOrder, pin.ID)
	}
	for i := range photos {
		photo := photos[i]
		if _, ok := s.pins[photo.PinID]; !ok {
			s.logger.Warn("skipping orphan photo", "photo_id", photo.ID, "pin_id", photo.PinID)
			continue
		}
		s.photos[photo.ID] = &photo
		s.byPin[photo.PinID] = append(s.byPin[photo.PinID], photo.ID)
	}
	s.snapshot()
	if len(s.pinOrder) > 0 {
		// загрузка считается первой фиксацией: Snapshot получает номер 1
		s.seq++
	}

	s.logger.Info("record store loaded",
		"pins", len(s.pins),
		"photos", len(s.photos),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Subscribe регистрирует наблюдателя. Возвращаемая функция отменяет подписку.
func (s *Store) Subscribe(q Query, o Observer) (unsubscribe func()) {
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, query: q, observer: o})

	return func() {
		s.subs = slices.DeleteFunc(s.subs, func(sub subscription) bool { return sub.id == id })
	}
}

// CreatePin создает метку с координатами.
func (s *Store) CreatePin(latitude, longitude float64) domain.Pin {
	pin := &domain.Pin{
		ID:        uuid.New(),
		Latitude:  latitude,
		Longitude: longitude,
		CreatedAt: s.now().UTC(),
	}
	s.pins[pin.ID] = pin
	s.pinOrder = append(s.pinOrder, pin.ID)
	s.pending.createdPins = append(s.pending.createdPins, pin.ID)
	return *pin
}

// DeletePin удаляет метку вместе со всеми ее фото.
func (s *Store) DeletePin(id uuid.UUID) error {
	if _, ok := s.pins[id]; !ok {
		return fmt.Errorf("delete pin %s: %w", id, domain.ErrPinNotFound)
	}

	for _, photoID := range slices.Clone(s.byPin[id]) {
		if err := s.DeletePhoto(photoID); err != nil {
			return err
		}
	}
	delete(s.byPin, id)
	delete(s.pins, id)
	s.pinOrder = slices.DeleteFunc(s.pinOrder, func(v uuid.UUID) bool { return v == id })

	if i := slices.Index(s.pending.createdPins, id); i >= 0 {
		s.pending.createdPins = slices.Delete(s.pending.createdPins, i, i+1)
	} else {
		s.pending.deletedPins = append(s.pending.deletedPins, id)
	}
	return nil
}

// CreatePhoto создает фото без изображения, привязанное к метке.
func (s *Store) CreatePhoto(pinID uuid.UUID, urlPath string) (domain.Photo, error) {
	if _, ok := s.pins[pinID]; !ok {
		return domain.Photo{}, fmt.Errorf("create photo for pin %s: %w", pinID, domain.ErrPinNotFound)
	}
	photo := &domain.Photo{
		ID:        uuid.New(),
		PinID:     pinID,
		URLPath:   urlPath,
		CreatedAt: s.now().UTC(),
	}
	s.photos[photo.ID] = photo
	s.byPin[pinID] = append(s.byPin[pinID], photo.ID)
	s.pending.createdPhotos = append(s.pending.createdPhotos, photo.ID)
	return *photo, nil
}

// SetImage записывает скачанные байты изображения.
func (s *Store) SetImage(photoID uuid.UUID, data []byte) error {
	photo, ok := s.photos[photoID]
	if !ok {
		return fmt.Errorf("set image for photo %s: %w", photoID, domain.ErrPhotoNotFound)
	}
	photo.ImageData = data
	if !slices.Contains(s.pending.createdPhotos, photoID) {
		s.pending.updatedPhotos[photoID] = struct{}{}
	}
	return nil
}

// DeletePhoto удаляет одно фото.
func (s *Store) DeletePhoto(photoID uuid.UUID) error {
	photo, ok := s.photos[photoID]
	if !ok {
		return fmt.Errorf("delete photo %s: %w", photoID, domain.ErrPhotoNotFound)
	}
	delete(s.photos, photoID)
	s.byPin[photo.PinID] = slices.DeleteFunc(s.byPin[photo.PinID], func(v uuid.UUID) bool { return v == photoID })
	delete(s.pending.updatedPhotos, photoID)

	if i := slices.Index(s.pending.createdPhotos, photoID); i >= 0 {
		s.pending.createdPhotos = slices.Delete(s.pending.createdPhotos, i, i+1)
	} else {
		s.pending.deletedPhotos = append(s.pending.deletedPhotos, photoID)
	}
	return nil
}

// Pin возвращает метку по ID.
func (s *Store) Pin(id uuid.UUID) (domain.Pin, bool) {
	pin, ok := s.pins[id]
	if !ok {
		return domain.Pin{}, false
	}
	return *pin, true
}

// Pins возвращает все метки в порядке создания.
func (s *Store) Pins() []domain.Pin {
	out := make([]domain.Pin, 0, len(s.pinOrder))
	for _, id := range s.pinOrder {
		out = append(out, *s.pins[id])
	}
	return out
}

// Photo возвращает фото по ID.
func (s *Store) Photo(id uuid.UUID) (domain.Photo, bool) {
	photo, ok := s.photos[id]
	if !ok {
		return domain.Photo{}, false
	}
	return *photo, true
}

// PhotosOfPin выполняет запрос "фото, где pin == pinID" в порядке создания.
func (s *Store) PhotosOfPin(pinID uuid.UUID) []domain.Photo {
	ids := s.byPin[pinID]
	out := make([]domain.Photo, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.photos[id])
	}
	return out
}

// PhotoCount возвращает число фото метки.
func (s *Store) PhotoCount(pinID uuid.UUID) int {
	return len(s.byPin[pinID])
}

// HasChanges сообщает, есть ли незафиксированные изменения.
func (s *Store) HasChanges() bool {
	return !s.pending.empty()
}

// Save фиксирует изменения: сохраняет их через persister и рассылает одну
// пачку событий подписчикам. Без изменений ничего не делает.
// При ошибке сохранения изменения остаются в ожидании, события не рассылаются.
func (s *Store) Save(ctx context.Context) error {
	if s.pending.empty() {
		return nil
	}
	start := time.Now()

	changes := s.changeSet()
	if s.persister != nil {
		if err := s.persister.Apply(ctx, changes); err != nil {
			metrics.StoreCommitsTotal.WithLabelValues("error").Inc()
			s.logger.Error("failed to commit record store changes", "error", err)
			return &domain.LocalStoreError{Op: "save", Err: err}
		}
	}

	events := s.diff()
	s.snapshot()
	s.pending.reset()
	s.seq++
	batch := Batch{Seq: s.seq, Events: events}

	metrics.StoreCommitsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("record store committed",
		"seq", batch.Seq,
		"events", len(events),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	s.notify(batch)
	return nil
}

// Snapshot описывает зафиксированное состояние как пачку вставок с
// номером последней фиксации. Нужен наблюдателям, подписанным после Load,
// которые ведут свою копию коллекций.
func (s *Store) Snapshot(q Query) Batch {
	var events []ChangeEvent
	for _, pinID := range s.committedPinOrder {
		for i, id := range s.committedByPin[pinID] {
			events = append(events, ChangeEvent{Kind: Insert, Entity: EntityPhoto, PinID: pinID, PhotoID: id, OldIndex: NoIndex, NewIndex: i})
		}
	}
	for i, pinID := range s.committedPinOrder {
		events = append(events, ChangeEvent{Kind: Insert, Entity: EntityPin, PinID: pinID, OldIndex: NoIndex, NewIndex: i})
	}
	return Batch{Seq: s.seq, Events: q.filter(events)}
}

func (s *Store) notify(batch Batch) {
	// подписка может быть отменена прямо из OnBatch
	for _, sub := range slices.Clone(s.subs) {
		events := sub.query.filter(batch.Events)
		if len(events) == 0 {
			continue
		}
		sub.observer.OnBatch(Batch{Seq: batch.Seq, Events: events})
	}
}

func (s *Store) changeSet() domain.ChangeSet {
	var cs domain.ChangeSet
	for _, id := range s.pending.createdPins {
		cs.PinsCreated = append(cs.PinsCreated, *s.pins[id])
	}
	cs.PinsDeleted = slices.Clone(s.pending.deletedPins)
	for _, id := range s.pending.createdPhotos {
		cs.PhotosCreated = append(cs.PhotosCreated, *s.photos[id])
	}
	for _, pinID := range s.pinOrder {
		for _, id := range s.byPin[pinID] {
			if _, ok := s.pending.updatedPhotos[id]; ok {
				cs.PhotosUpdated = append(cs.PhotosUpdated, *s.photos[id])
			}
		}
	}
	cs.PhotosDeleted = slices.Clone(s.pending.deletedPhotos)
	return cs
}

// diff сравнивает зафиксированное состояние с текущим.
// Порядок: для каждой метки удаления, вставки и обновления ее фото,
// затем удаления и вставки самих меток.
func (s *Store) diff() []ChangeEvent {
	var events []ChangeEvent

	seen := make(map[uuid.UUID]struct{})
	for _, pinID := range append(slices.Clone(s.committedPinOrder), s.pinOrder...) {
		if _, ok := seen[pinID]; ok {
			continue
		}
		seen[pinID] = struct{}{}

		before, after := s.committedByPin[pinID], s.byPin[pinID]
		for _, ev := range orderedDiff(before, after) {
			ev.Entity = EntityPhoto
			ev.PinID = pinID
			events = append(events, ev)
		}
		for newIndex, id := range after {
			if _, ok := s.pending.updatedPhotos[id]; !ok {
				continue
			}
			events = append(events, ChangeEvent{
				Kind:     Update,
				Entity:   EntityPhoto,
				PinID:    pinID,
				PhotoID:  id,
				OldIndex: slices.Index(before, id),
				NewIndex: newIndex,
			})
		}
	}

	for _, ev := range orderedDiff(s.committedPinOrder, s.pinOrder) {
		ev.Entity = EntityPin
		ev.PinID, ev.PhotoID = ev.PhotoID, uuid.Nil
		events = append(events, ev)
	}
	return events
}

// orderedDiff возвращает удаления (по старым индексам) и вставки (по новым).
// ID записи кладется в PhotoID, вызывающий перекладывает при необходимости.
func orderedDiff(before, after []uuid.UUID) []ChangeEvent {
	inAfter := make(map[uuid.UUID]struct{}, len(after))
	for _, id := range after {
		inAfter[id] = struct{}{}
	}
	inBefore := make(map[uuid.UUID]struct{}, len(before))
	for _, id := range before {
		inBefore[id] = struct{}{}
	}

	var events []ChangeEvent
	for i, id := range before {
		if _, ok := inAfter[id]; !ok {
			events = append(events, ChangeEvent{Kind: Delete, PhotoID: id, OldIndex: i, NewIndex: NoIndex})
		}
	}
	for i, id := range after {
		if _, ok := inBefore[id]; !ok {
			events = append(events, ChangeEvent{Kind: Insert, PhotoID: id, OldIndex: NoIndex, NewIndex: i})
		}
	}
	return events
}

func (s *Store) snapshot() {
	s.committedPinOrder = slices.Clone(s.pinOrder)
	s.committedByPin = make(map[uuid.UUID][]uuid.UUID, len(s.byPin))
	for pinID, ids := range s.byPin {
		s.committedByPin[pinID] = slices.Clone(ids)
	}
}
