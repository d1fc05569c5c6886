package ports

import (
	"context"

	"github.com/GoArmGo/PinAlbum/internal/messaging/payloads"
)

// StoreBatchPublisher публикует зафиксированные пачки изменений хранилища
type StoreBatchPublisher interface {
	PublishStoreBatch(ctx context.Context, payload payloads.StoreBatchPayload) error
}

// StoreBatchConsumer потребляет пачки изменений из очереди,
// будет использоваться воркером для воспроизведения их в реплике альбомов
type StoreBatchConsumer interface {
	// StartConsumingStoreBatches начинает прослушивание очереди;
	// handler вызывается для каждой пачки в порядке получения
	StartConsumingStoreBatches(ctx context.Context, handler func(context.Context, payloads.StoreBatchPayload) error) error
}
