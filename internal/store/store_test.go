package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePersister struct {
	pins    []domain.Pin
	photos  []domain.Photo
	applied []domain.ChangeSet
	err     error
}

func (f *fakePersister) Load(ctx context.Context) ([]domain.Pin, []domain.Photo, error) {
	return f.pins, f.photos, nil
}

func (f *fakePersister) Apply(ctx context.Context, changes domain.ChangeSet) error {
	if f.err != nil {
		return f.err
	}
	f.applied = append(f.applied, changes)
	return nil
}

type recorder struct {
	batches []Batch
}

func (r *recorder) OnBatch(b Batch) { r.batches = append(r.batches, b) }

func newTestStore(p *fakePersister) *Store {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if p == nil {
		return New(nil, logger)
	}
	return New(p, logger)
}

func TestSave_NCreatesYieldOneBatchOfInserts(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	pin := s.CreatePin(10, 20)
	require.NoError(t, s.Save(ctx))

	rec := &recorder{}
	s.Subscribe(PhotosOf(pin.ID), rec)

	for i := 0; i < 5; i++ {
		_, err := s.CreatePhoto(pin.ID, "https://example.com/p.jpg")
		require.NoError(t, err)
	}
	require.NoError(t, s.Save(ctx))

	require.Len(t, rec.batches, 1)
	batch := rec.batches[0]
	require.Len(t, batch.Events, 5)
	for i, ev := range batch.Events {
		assert.Equal(t, Insert, ev.Kind)
		assert.Equal(t, EntityPhoto, ev.Entity)
		assert.Equal(t, pin.ID, ev.PinID)
		assert.Equal(t, NoIndex, ev.OldIndex)
		assert.Equal(t, i, ev.NewIndex)
	}
}

func TestSave_NoPendingChangesIsNoop(t *testing.T) {
	p := &fakePersister{}
	s := newTestStore(p)
	rec := &recorder{}
	s.Subscribe(Everything(), rec)

	require.False(t, s.HasChanges())
	require.NoError(t, s.Save(context.Background()))
	require.NoError(t, s.Save(context.Background()))

	assert.Empty(t, rec.batches)
	assert.Empty(t, p.applied)
}

func TestSave_BatchesAreSequentialAndNotInterleaved(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	rec := &recorder{}
	s.Subscribe(Everything(), rec)

	pin := s.CreatePin(1, 1)
	require.NoError(t, s.Save(ctx))
	_, err := s.CreatePhoto(pin.ID, "a")
	require.NoError(t, err)
	_, err = s.CreatePhoto(pin.ID, "b")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))

	require.Len(t, rec.batches, 2)
	assert.Equal(t, uint64(1), rec.batches[0].Seq)
	assert.Equal(t, uint64(2), rec.batches[1].Seq)
	require.Len(t, rec.batches[0].Events, 1)
	assert.Equal(t, EntityPin, rec.batches[0].Events[0].Entity)
	require.Len(t, rec.batches[1].Events, 2)
}

func TestSave_DeleteUsesPreCommitIndexes(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	pin := s.CreatePin(0, 0)
	var ids []uuid.UUID
	for i := 0; i < 4; i++ {
		p, err := s.CreatePhoto(pin.ID, "u")
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}
	require.NoError(t, s.Save(ctx))

	rec := &recorder{}
	s.Subscribe(PhotosOf(pin.ID), rec)

	require.NoError(t, s.DeletePhoto(ids[1]))
	require.NoError(t, s.DeletePhoto(ids[3]))
	added, err := s.CreatePhoto(pin.ID, "new")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))

	require.Len(t, rec.batches, 1)
	events := rec.batches[0].Events
	require.Len(t, events, 3)
	assert.Equal(t, ChangeEvent{Kind: Delete, Entity: EntityPhoto, PinID: pin.ID, PhotoID: ids[1], OldIndex: 1, NewIndex: NoIndex}, events[0])
	assert.Equal(t, ChangeEvent{Kind: Delete, Entity: EntityPhoto, PinID: pin.ID, PhotoID: ids[3], OldIndex: 3, NewIndex: NoIndex}, events[1])
	assert.Equal(t, ChangeEvent{Kind: Insert, Entity: EntityPhoto, PinID: pin.ID, PhotoID: added.ID, OldIndex: NoIndex, NewIndex: 2}, events[2])
}

func TestSave_SetImageEmitsUpdate(t *testing.T) {
	s := newTestStore(nil)
	ctx := context.Background()
	pin := s.CreatePin(0, 0)
	photo, err := s.CreatePhoto(pin.ID, "u")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))

	rec := &recorder{}
	s.Subscribe(PhotosOf(pin.ID), rec)

	require.NoError(t, s.SetImage(photo.ID, []byte{1, 2, 3}))
	require.NoError(t, s.Save(ctx))

	require.Len(t, rec.batches, 1)
	require.Len(t, rec.batches[0].Events, 1)
	ev := rec.batches[0].Events[0]
	assert.Equal(t, Update, ev.Kind)
	assert.Equal(t, 0, ev.OldIndex)
	assert.Equal(t, 0, ev.NewIndex)

	got, ok := s.Photo(photo.ID)
	require.True(t, ok)
	assert.False(t, got.Pending())
}

func TestSave_CreateThenDeleteBeforeCommitIsInvisible(t *testing.T) {
	p := &fakePersister{}
	s := newTestStore(p)
	ctx := context.Background()
	pin := s.CreatePin(0, 0)
	require.NoError(t, s.Save(ctx))

	photo, err := s.CreatePhoto(pin.ID, "u")
	require.NoError(t, err)
	require.NoError(t, s.DeletePhoto(photo.ID))

	assert.False(t, s.HasChanges())
	require.NoError(t, s.Save(ctx))
	assert.Len(t, p.applied, 1)
}

func TestDeletePin_CascadesPhotos(t *testing.T) {
	p := &fakePersister{}
	s := newTestStore(p)
	ctx := context.Background()
	pin := s.CreatePin(5, 5)
	other := s.CreatePin(6, 6)
	for i := 0; i < 3; i++ {
		_, err := s.CreatePhoto(pin.ID, "u")
		require.NoError(t, err)
	}
	_, err := s.CreatePhoto(other.ID, "o")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))

	pinsRec := &recorder{}
	otherRec := &recorder{}
	s.Subscribe(AllPins(), pinsRec)
	s.Subscribe(PhotosOf(other.ID), otherRec)

	require.NoError(t, s.DeletePin(pin.ID))
	require.NoError(t, s.Save(ctx))

	assert.Empty(t, s.PhotosOfPin(pin.ID))
	assert.Len(t, s.PhotosOfPin(other.ID), 1)
	_, ok := s.Pin(pin.ID)
	assert.False(t, ok)

	require.Len(t, pinsRec.batches, 1)
	require.Len(t, pinsRec.batches[0].Events, 1)
	assert.Equal(t, Delete, pinsRec.batches[0].Events[0].Kind)
	assert.Equal(t, 0, pinsRec.batches[0].Events[0].OldIndex)
	assert.Empty(t, otherRec.batches)

	last := p.applied[len(p.applied)-1]
	assert.Equal(t, []uuid.UUID{pin.ID}, last.PinsDeleted)
	assert.Len(t, last.PhotosDeleted, 3)
}

func TestCreatePhoto_UnknownPin(t *testing.T) {
	s := newTestStore(nil)
	_, err := s.CreatePhoto(uuid.New(), "u")
	require.ErrorIs(t, err, domain.ErrPinNotFound)
}

func TestSave_PersisterFailureKeepsChangesPending(t *testing.T) {
	p := &fakePersister{err: errors.New("disk full")}
	s := newTestStore(p)
	rec := &recorder{}
	s.Subscribe(Everything(), rec)

	s.CreatePin(1, 2)
	err := s.Save(context.Background())

	var storeErr *domain.LocalStoreError
	require.ErrorAs(t, err, &storeErr)
	assert.True(t, s.HasChanges())
	assert.Empty(t, rec.batches)

	p.err = nil
	require.NoError(t, s.Save(context.Background()))
	assert.False(t, s.HasChanges())
	require.Len(t, rec.batches, 1)
	require.Len(t, p.applied, 1)
	assert.Len(t, p.applied[0].PinsCreated, 1)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := newTestStore(nil)
	rec := &recorder{}
	unsubscribe := s.Subscribe(Everything(), rec)

	s.CreatePin(0, 0)
	require.NoError(t, s.Save(context.Background()))
	unsubscribe()
	s.CreatePin(1, 1)
	require.NoError(t, s.Save(context.Background()))

	assert.Len(t, rec.batches, 1)
}

func TestLoad_RestoresOrderAndIndex(t *testing.T) {
	pin := domain.Pin{ID: uuid.New(), Latitude: 1, Longitude: 2}
	first := domain.Photo{ID: uuid.New(), PinID: pin.ID, URLPath: "a", ImageData: []byte("x")}
	second := domain.Photo{ID: uuid.New(), PinID: pin.ID, URLPath: "b"}
	orphan := domain.Photo{ID: uuid.New(), PinID: uuid.New(), URLPath: "c"}
	p := &fakePersister{pins: []domain.Pin{pin}, photos: []domain.Photo{first, second, orphan}}

	s := newTestStore(p)
	require.NoError(t, s.Load(context.Background()))

	photos := s.PhotosOfPin(pin.ID)
	require.Len(t, photos, 2)
	assert.Equal(t, first.ID, photos[0].ID)
	assert.Equal(t, second.ID, photos[1].ID)
	assert.True(t, photos[1].Pending())
	assert.False(t, s.HasChanges())

	rec := &recorder{}
	s.Subscribe(PhotosOf(pin.ID), rec)
	require.NoError(t, s.DeletePhoto(second.ID))
	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, 1, rec.batches[0].Events[0].OldIndex)
}

func TestSnapshot_AfterLoad(t *testing.T) {
	first := domain.Pin{ID: uuid.New()}
	second := domain.Pin{ID: uuid.New()}
	a := domain.Photo{ID: uuid.New(), PinID: first.ID}
	b := domain.Photo{ID: uuid.New(), PinID: first.ID}
	p := &fakePersister{pins: []domain.Pin{first, second}, photos: []domain.Photo{a, b}}

	s := newTestStore(p)
	require.NoError(t, s.Load(context.Background()))

	snap := s.Snapshot(Everything())
	assert.Equal(t, uint64(1), snap.Seq)
	require.Len(t, snap.Events, 4)
	assert.Equal(t, ChangeEvent{Kind: Insert, Entity: EntityPhoto, PinID: first.ID, PhotoID: b.ID, OldIndex: NoIndex, NewIndex: 1}, snap.Events[1])
	assert.Equal(t, ChangeEvent{Kind: Insert, Entity: EntityPin, PinID: second.ID, OldIndex: NoIndex, NewIndex: 1}, snap.Events[3])

	pins := s.Snapshot(AllPins())
	assert.Len(t, pins.Events, 2)

	// следующая фиксация продолжает нумерацию после загрузки
	rec := &recorder{}
	s.Subscribe(Everything(), rec)
	require.NoError(t, s.DeletePhoto(a.ID))
	require.NoError(t, s.Save(context.Background()))
	assert.Equal(t, uint64(2), rec.batches[0].Seq)
}

func TestSnapshot_EmptyStore(t *testing.T) {
	s := newTestStore(&fakePersister{})
	require.NoError(t, s.Load(context.Background()))

	snap := s.Snapshot(Everything())
	assert.Zero(t, snap.Seq)
	assert.Empty(t, snap.Events)
}
