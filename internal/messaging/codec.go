package messaging

import (
	"fmt"

	"github.com/GoArmGo/PinAlbum/internal/messaging/payloads"
	"github.com/GoArmGo/PinAlbum/internal/store"
)

// EncodeBatch переводит пачку хранилища в сообщение очереди.
func EncodeBatch(stream string, batch store.Batch) payloads.StoreBatchPayload {
	payload := payloads.StoreBatchPayload{
		Stream: stream,
		Seq:    batch.Seq,
		Events: make([]payloads.StoreEventPayload, 0, len(batch.Events)),
	}
	for _, ev := range batch.Events {
		payload.Events = append(payload.Events, payloads.StoreEventPayload{
			Kind:     ev.Kind.String(),
			Entity:   ev.Entity.String(),
			PinID:    ev.PinID,
			PhotoID:  ev.PhotoID,
			OldIndex: ev.OldIndex,
			NewIndex: ev.NewIndex,
		})
	}
	return payload
}

// DecodeBatch восстанавливает пачку из сообщения очереди.
func DecodeBatch(payload payloads.StoreBatchPayload) (store.Batch, error) {
	batch := store.Batch{Seq: payload.Seq, Events: make([]store.ChangeEvent, 0, len(payload.Events))}
	for i, ev := range payload.Events {
		kind, err := parseKind(ev.Kind)
		if err != nil {
			return store.Batch{}, fmt.Errorf("event %d: %w", i, err)
		}
		entity, err := parseEntity(ev.Entity)
		if err != nil {
			return store.Batch{}, fmt.Errorf("event %d: %w", i, err)
		}
		batch.Events = append(batch.Events, store.ChangeEvent{
			Kind:     kind,
			Entity:   entity,
			PinID:    ev.PinID,
			PhotoID:  ev.PhotoID,
			OldIndex: ev.OldIndex,
			NewIndex: ev.NewIndex,
		})
	}
	return batch, nil
}

func parseKind(s string) (store.ChangeKind, error) {
	for _, k := range []store.ChangeKind{store.Insert, store.Update, store.Delete, store.Move} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown change kind %q", s)
}

func parseEntity(s string) (store.Entity, error) {
	switch s {
	case store.EntityPin.String():
		return store.EntityPin, nil
	case store.EntityPhoto.String():
		return store.EntityPhoto, nil
	}
	return 0, fmt.Errorf("unknown entity %q", s)
}
