package preferences

import (
	"context"
	"fmt"
	"strconv"

	"github.com/GoArmGo/PinAlbum/internal/domain"
)

// Ключи области карты в хранилище настроек.
const (
	KeyLatitude       = "lat"
	KeyLongitude      = "long"
	KeyLatitudeDelta  = "latDelta"
	KeyLongitudeDelta = "longDelta"
)

// Store — хранилище настроек "ключ-значение" (Redis или PostgreSQL).
type Store interface {
	// Get возвращает значение; ok == false, если ключа нет
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// LoadViewport читает сохраненную область карты. Если хотя бы одного ключа нет,
// возвращает ok == false и карта остается в области по умолчанию.
func LoadViewport(ctx context.Context, kv Store) (domain.Viewport, bool, error) {
	var v domain.Viewport
	fields := []struct {
		key string
		dst *float64
	}{
		{KeyLatitude, &v.Latitude},
		{KeyLongitude, &v.Longitude},
		{KeyLatitudeDelta, &v.LatitudeDelta},
		{KeyLongitudeDelta, &v.LongitudeDelta},
	}

	for _, f := range fields {
		raw, ok, err := kv.Get(ctx, f.key)
		if err != nil {
			return domain.Viewport{}, false, fmt.Errorf("preferences: read %s: %w", f.key, err)
		}
		if !ok {
			return domain.Viewport{}, false, nil
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Viewport{}, false, fmt.Errorf("preferences: parse %s=%q: %w", f.key, raw, err)
		}
		*f.dst = value
	}
	return v, true, nil
}

// SaveViewport сохраняет область карты.
func SaveViewport(ctx context.Context, kv Store, v domain.Viewport) error {
	values := map[string]float64{
		KeyLatitude:       v.Latitude,
		KeyLongitude:      v.Longitude,
		KeyLatitudeDelta:  v.LatitudeDelta,
		KeyLongitudeDelta: v.LongitudeDelta,
	}
	for key, value := range values {
		if err := kv.Set(ctx, key, strconv.FormatFloat(value, 'g', -1, 64)); err != nil {
			return fmt.Errorf("preferences: write %s: %w", key, err)
		}
	}
	return nil
}
