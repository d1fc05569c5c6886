package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/GoArmGo/PinAlbum/internal/core/ports"
	"github.com/GoArmGo/PinAlbum/internal/messaging/payloads"
	"github.com/GoArmGo/PinAlbum/internal/metrics"
	"github.com/GoArmGo/PinAlbum/internal/store"
	"github.com/google/uuid"
)

// Forwarder публикует пачки хранилища в очередь в порядке фиксаций.
// OnBatch вызывается на главном цикле и не блокирует его: пачки копятся
// в буфере, публикует их одна горутина Run.
type Forwarder struct {
	publisher ports.StoreBatchPublisher
	stream    string
	queue     chan payloads.StoreBatchPayload
	done      chan struct{}
	logger    *slog.Logger
}

// NewForwarder создает Forwarder с буфером на buffer пачек.
func NewForwarder(publisher ports.StoreBatchPublisher, buffer int, logger *slog.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = 1024
	}
	stream := uuid.NewString()
	return &Forwarder{
		publisher: publisher,
		stream:    stream,
		queue:     make(chan payloads.StoreBatchPayload, buffer),
		done:      make(chan struct{}),
		logger:    logger.With("component", "forwarder", "stream", stream),
	}
}

// Stream возвращает идентификатор потока пачек этого процесса
func (f *Forwarder) Stream() string { return f.stream }

// OnBatch реализует store.Observer.
func (f *Forwarder) OnBatch(batch store.Batch) {
	payload := EncodeBatch(f.stream, batch)
	select {
	case f.queue <- payload:
	default:
		metrics.BrokerMessagesTotal.WithLabelValues("publish", "dropped").Inc()
		f.logger.Warn("forward buffer full, store batch dropped", "seq", batch.Seq)
	}
}

// Run публикует пачки до отмены ctx, затем дописывает то, что осталось в буфере.
func (f *Forwarder) Run(ctx context.Context) {
	defer close(f.done)
	for {
		select {
		case payload := <-f.queue:
			f.publish(ctx, payload)
		case <-ctx.Done():
			f.drain()
			return
		}
	}
}

// Done закрывается после завершения Run
func (f *Forwarder) Done() <-chan struct{} { return f.done }

func (f *Forwarder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case payload := <-f.queue:
			f.publish(ctx, payload)
		default:
			return
		}
	}
}

func (f *Forwarder) publish(ctx context.Context, payload payloads.StoreBatchPayload) {
	if err := f.publisher.PublishStoreBatch(ctx, payload); err != nil {
		f.logger.Error("failed to publish store batch", "seq", payload.Seq, "error", err)
	}
}
