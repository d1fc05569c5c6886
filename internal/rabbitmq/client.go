package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/GoArmGo/PinAlbum/internal/config"
	"github.com/GoArmGo/PinAlbum/internal/messaging/payloads"
	"github.com/GoArmGo/PinAlbum/internal/metrics"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client представляет собой клиент RabbitMQ.
// Реализует ports.StoreBatchPublisher и ports.StoreBatchConsumer.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
	logger  *slog.Logger
}

// NewClient подключается к RabbitMQ и объявляет очередь пачек.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	client := &Client{logger: logger.With("component", "rabbitmq")}

	conn, err := amqp.Dial(cfg.RabbitMQ.RabbitMQURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	client.conn = conn

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	client.channel = ch

	// пачки применяются строго по порядку, поэтому потребитель получает
	// по одному сообщению за раз
	if err := ch.Qos(1, 0, false); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.RabbitMQ.RabbitMQQueueName, // name
		true,                           // durable
		false,                          // delete when unused
		false,                          // exclusive
		false,                          // no-wait
		nil,                            // arguments
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to declare a queue: %w", err)
	}
	client.queue = q
	client.logger.Info("queue declared", "queue", q.Name, "messages", q.Messages)

	return client, nil
}

// Close закрывает канал и соединение RabbitMQ
func (c *Client) Close() {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.logger.Warn("error closing channel", "error", err)
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("error closing connection", "error", err)
		}
	}
	c.logger.Info("rabbitmq connection closed")
}

// PublishStoreBatch публикует одну пачку изменений одним сообщением.
func (c *Client) PublishStoreBatch(ctx context.Context, payload payloads.StoreBatchPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		metrics.BrokerMessagesTotal.WithLabelValues("publish", "error").Inc()
		return fmt.Errorf("failed to marshal payload to JSON: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		publishCtx,
		"",           // exchange
		c.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("batch-%d", payload.Seq),
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		metrics.BrokerMessagesTotal.WithLabelValues("publish", "error").Inc()
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	metrics.BrokerMessagesTotal.WithLabelValues("publish", "ok").Inc()
	c.logger.Debug("store batch published", "seq", payload.Seq, "events", len(payload.Events))
	return nil
}

// StartConsumingStoreBatches регистрирует потребителя и обрабатывает
// сообщения в отдельной горутине до отмены ctx.
func (c *Client) StartConsumingStoreBatches(ctx context.Context, handler func(context.Context, payloads.StoreBatchPayload) error) error {
	msgs, err := c.channel.Consume(
		c.queue.Name, // queue
		"",           // consumer
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}

	c.logger.Info("consumer registered, waiting for messages", "queue", c.queue.Name)

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					c.logger.Info("delivery channel closed, stopping consumer")
					return
				}
				c.handleDelivery(ctx, msg, handler)
			case <-ctx.Done():
				c.logger.Info("context cancelled, stopping consumer")
				return
			}
		}
	}()

	return nil
}

func (c *Client) handleDelivery(ctx context.Context, msg amqp.Delivery, handler func(context.Context, payloads.StoreBatchPayload) error) {
	var payload payloads.StoreBatchPayload
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		// битое сообщение не возвращаем в очередь, иначе застрянем на нем
		metrics.BrokerMessagesTotal.WithLabelValues("consume", "malformed").Inc()
		c.logger.Error("error unmarshalling message", "error", err, "body", string(msg.Body))
		if err := msg.Nack(false, false); err != nil {
			c.logger.Error("error NACKing malformed message", "error", err)
		}
		return
	}

	if err := handler(ctx, payload); err != nil {
		metrics.BrokerMessagesTotal.WithLabelValues("consume", "error").Inc()
		c.logger.Error("error processing store batch", "seq", payload.Seq, "error", err)
		if err := msg.Nack(false, true); err != nil {
			c.logger.Error("error NACKing message", "error", err)
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("error ACKing message", "error", err)
		return
	}
	metrics.BrokerMessagesTotal.WithLabelValues("consume", "ok").Inc()
	c.logger.Debug("store batch processed", "seq", payload.Seq, "events", len(payload.Events))
}
