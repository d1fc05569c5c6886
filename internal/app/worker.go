package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/GoArmGo/PinAlbum/internal/core/ports"
	"github.com/GoArmGo/PinAlbum/internal/messaging"
	"github.com/GoArmGo/PinAlbum/internal/messaging/payloads"
	"github.com/GoArmGo/PinAlbum/internal/viewsync"
)

// runWorker запускает потребителя RabbitMQ и воспроизводит пачки хранилища
// в реплике альбомов. Блокирует до отмены ctx.
func runWorker(
	ctx context.Context,
	logger *slog.Logger,
	batchConsumer ports.StoreBatchConsumer,
) error {
	logger.Info("worker started, waiting for store batches")

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	replica := viewsync.NewReplica(logger)

	// Определяем функцию-обработчик для сообщений RabbitMQ.
	// Потребитель вызывает ее из одной горутины, поэтому реплика без блокировок.
	messageHandler := func(ctx context.Context, payload payloads.StoreBatchPayload) error {
		batch, err := messaging.DecodeBatch(payload)
		if err != nil {
			// повтор не поможет: сообщение подтверждаем и пропускаем
			logger.Error("skipping undecodable store batch", "stream", payload.Stream, "seq", payload.Seq, "error", err)
			return nil
		}
		if !replica.Apply(payload.Stream, batch) {
			return nil
		}
		pins, photos := replica.Stats()
		logger.Info("store batch replayed",
			"stream", payload.Stream,
			"seq", batch.Seq,
			"events", len(batch.Events),
			"pins", pins,
			"photos", photos,
		)
		return nil
	}

	// Запускаем потребление сообщений
	if err := batchConsumer.StartConsumingStoreBatches(workerCtx, messageHandler); err != nil {
		return fmt.Errorf("ошибка при запуске потребителя RabbitMQ: %w", err)
	}

	<-workerCtx.Done()
	logger.Info("worker stopped")
	return nil
}
