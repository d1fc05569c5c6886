package viewsync

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingView struct {
	updates []Update
}

func (v *recordingView) PerformBatchUpdates(u Update) { v.updates = append(v.updates, u) }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// mirror держит ListModel в точности равным альбому хранилища.
func TestSync_ListModelMirrorsStore(t *testing.T) {
	ctx := context.Background()
	s := store.New(nil, discard())
	pin := s.CreatePin(0, 0)
	require.NoError(t, s.Save(ctx))

	model := NewListModel()
	sync := New(model, store.EntityPhoto)
	s.Subscribe(store.PhotosOf(pin.ID), sync)

	ids := func() []uuid.UUID {
		var out []uuid.UUID
		for _, p := range s.PhotosOfPin(pin.ID) {
			out = append(out, p.ID)
		}
		return out
	}

	var created []uuid.UUID
	for i := 0; i < 6; i++ {
		p, err := s.CreatePhoto(pin.ID, "u")
		require.NoError(t, err)
		created = append(created, p.ID)
	}
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, ids(), model.Items())

	require.NoError(t, s.DeletePhoto(created[0]))
	require.NoError(t, s.DeletePhoto(created[3]))
	require.NoError(t, s.DeletePhoto(created[5]))
	_, err := s.CreatePhoto(pin.ID, "x")
	require.NoError(t, err)
	require.NoError(t, s.SetImage(created[2], []byte{1}))
	require.NoError(t, s.Save(ctx))

	assert.Equal(t, ids(), model.Items())
	assert.Equal(t, 4, model.Len())
}

func TestSync_OneUpdatePerBatch(t *testing.T) {
	view := &recordingView{}
	sync := New(view, store.EntityPhoto)
	pinID := uuid.New()

	sync.OnBatch(store.Batch{Seq: 7, Events: []store.ChangeEvent{
		{Kind: store.Insert, Entity: store.EntityPhoto, PinID: pinID, PhotoID: uuid.New(), OldIndex: store.NoIndex, NewIndex: 0},
		{Kind: store.Insert, Entity: store.EntityPhoto, PinID: pinID, PhotoID: uuid.New(), OldIndex: store.NoIndex, NewIndex: 1},
		{Kind: store.Insert, Entity: store.EntityPin, PinID: pinID, OldIndex: store.NoIndex, NewIndex: 0},
	}})

	require.Len(t, view.updates, 1)
	assert.Equal(t, uint64(7), view.updates[0].Seq)
	assert.Len(t, view.updates[0].Inserted, 2)
}

func TestSync_CancelDropsFurtherBatches(t *testing.T) {
	view := &recordingView{}
	sync := New(view, store.EntityPhoto)
	sync.Cancel()

	sync.OnBatch(store.Batch{Seq: 1, Events: []store.ChangeEvent{
		{Kind: store.Insert, Entity: store.EntityPhoto, PhotoID: uuid.New(), NewIndex: 0},
	}})

	assert.True(t, sync.Cancelled())
	assert.Empty(t, view.updates)
}

func TestListModel_MoveAndOutOfRange(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	model := NewListModel(a, b, c)

	model.PerformBatchUpdates(Update{Moved: []Move{{From: 0, To: 2, ID: a}}})
	assert.Equal(t, []uuid.UUID{b, c, a}, model.Items())

	model.PerformBatchUpdates(Update{Deleted: []Item{{Index: 10, ID: uuid.New()}}})
	assert.Equal(t, 3, model.Len())
}

func TestReplica_AppliesPerPinAndSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := store.New(nil, discard())
	replica := NewReplica(discard())
	s.Subscribe(store.Everything(), store.ObserverFunc(func(b store.Batch) {
		replica.Apply("stream-1", b)
	}))

	first := s.CreatePin(1, 1)
	second := s.CreatePin(2, 2)
	require.NoError(t, s.Save(ctx))
	for i := 0; i < 3; i++ {
		_, err := s.CreatePhoto(first.ID, "a")
		require.NoError(t, err)
	}
	_, err := s.CreatePhoto(second.ID, "b")
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx))

	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, replica.Pins())
	assert.Len(t, replica.Album(first.ID), 3)
	pins, photos := replica.Stats()
	assert.Equal(t, 2, pins)
	assert.Equal(t, 4, photos)

	assert.False(t, replica.Apply("stream-1", store.Batch{Seq: 1}))

	require.NoError(t, s.DeletePin(first.ID))
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, []uuid.UUID{second.ID}, replica.Pins())
	assert.Nil(t, replica.Album(first.ID))
	_, photos = replica.Stats()
	assert.Equal(t, 1, photos)
}

func TestReplica_NewStreamResets(t *testing.T) {
	replica := NewReplica(discard())
	pinID := uuid.New()
	insertPin := store.Batch{Seq: 1, Events: []store.ChangeEvent{
		{Kind: store.Insert, Entity: store.EntityPin, PinID: pinID, OldIndex: store.NoIndex, NewIndex: 0},
	}}

	require.True(t, replica.Apply("a", insertPin))
	require.True(t, replica.Apply("b", insertPin))
	assert.Equal(t, []uuid.UUID{pinID}, replica.Pins())
}

type loadedRecords struct {
	pins   []domain.Pin
	photos []domain.Photo
}

func (l loadedRecords) Load(ctx context.Context) ([]domain.Pin, []domain.Photo, error) {
	return l.pins, l.photos, nil
}

func (l loadedRecords) Apply(ctx context.Context, changes domain.ChangeSet) error { return nil }

func TestReplica_SnapshotAfterLoadKeepsIndexes(t *testing.T) {
	ctx := context.Background()
	pin := domain.Pin{ID: uuid.New()}
	photos := []domain.Photo{{ID: uuid.New(), PinID: pin.ID}, {ID: uuid.New(), PinID: pin.ID}, {ID: uuid.New(), PinID: pin.ID}}
	s := store.New(loadedRecords{pins: []domain.Pin{pin}, photos: photos}, discard())
	require.NoError(t, s.Load(ctx))

	replica := NewReplica(discard())
	s.Subscribe(store.Everything(), store.ObserverFunc(func(b store.Batch) {
		replica.Apply("stream-1", b)
	}))
	require.True(t, replica.Apply("stream-1", s.Snapshot(store.Everything())))

	require.NoError(t, s.DeletePhoto(photos[1].ID))
	require.NoError(t, s.Save(ctx))

	assert.Equal(t, []uuid.UUID{pin.ID}, replica.Pins())
	assert.Equal(t, []uuid.UUID{photos[0].ID, photos[2].ID}, replica.Album(pin.ID))
	pins, count := replica.Stats()
	assert.Equal(t, 1, pins)
	assert.Equal(t, 2, count)
}
