package payloads

import "github.com/google/uuid"

// StoreBatchPayload представляет одну зафиксированную пачку изменений хранилища,
// передаваемую через RabbitMQ. Пачка всегда публикуется одним сообщением.
// Stream меняется при каждом запуске сервера: Seq внутри потока начинается с 1.
type StoreBatchPayload struct {
	Stream string              `json:"stream"`
	Seq    uint64              `json:"seq"`
	Events []StoreEventPayload `json:"events"`
}

// StoreEventPayload — одно изменение записи внутри пачки.
type StoreEventPayload struct {
	Kind     string    `json:"kind"`
	Entity   string    `json:"entity"`
	PinID    uuid.UUID `json:"pin_id"`
	PhotoID  uuid.UUID `json:"photo_id"`
	OldIndex int       `json:"old_index"`
	NewIndex int       `json:"new_index"`
}
