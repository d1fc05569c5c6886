package preferences

import (
	"context"
	"errors"
	"testing"

	"github.com/GoArmGo/PinAlbum/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	values map[string]string
	err    error
}

func (m *mapStore) Get(ctx context.Context, key string) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *mapStore) Set(ctx context.Context, key, value string) error {
	if m.err != nil {
		return m.err
	}
	m.values[key] = value
	return nil
}

func TestViewport_SaveThenLoad(t *testing.T) {
	kv := &mapStore{values: map[string]string{}}
	want := domain.Viewport{Latitude: 48.8566, Longitude: 2.3522, LatitudeDelta: 0.5, LongitudeDelta: 0.75}

	require.NoError(t, SaveViewport(context.Background(), kv, want))
	assert.Equal(t, "48.8566", kv.values[KeyLatitude])
	assert.Len(t, kv.values, 4)

	got, ok, err := LoadViewport(context.Background(), kv)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestLoadViewport_MissingKeyMeansDefault(t *testing.T) {
	kv := &mapStore{values: map[string]string{KeyLatitude: "1", KeyLongitude: "2", KeyLatitudeDelta: "3"}}

	got, ok, err := LoadViewport(context.Background(), kv)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, domain.Viewport{}, got)
}

func TestLoadViewport_BadValue(t *testing.T) {
	kv := &mapStore{values: map[string]string{KeyLatitude: "north"}}
	_, _, err := LoadViewport(context.Background(), kv)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lat")
}

func TestViewport_StoreError(t *testing.T) {
	kv := &mapStore{values: map[string]string{}, err: errors.New("connection refused")}
	require.Error(t, SaveViewport(context.Background(), kv, domain.Viewport{}))
	_, _, err := LoadViewport(context.Background(), kv)
	require.ErrorIs(t, err, kv.err)
}
