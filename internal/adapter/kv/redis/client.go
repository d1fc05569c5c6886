package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/GoArmGo/PinAlbum/internal/config"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "pinalbum:prefs:"

// Client хранит настройки в Redis. Реализует preferences.Store.
type Client struct {
	connect *redis.Client
	logger  *slog.Logger
}

// NewClient подключается к Redis и проверяет соединение.
func NewClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	c := New(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}), logger)

	if err := c.connect.Ping(ctx).Err(); err != nil {
		_ = c.connect.Close()
		logger.Error("failed to establish redis connection", "addr", cfg.Redis.Addr, "error", err)
		return nil, fmt.Errorf("ошибка подключения к Redis: %w", err)
	}
	logger.Info("redis connection established", "addr", cfg.Redis.Addr)
	return c, nil
}

// New оборачивает готовый клиент go-redis
func New(connect *redis.Client, logger *slog.Logger) *Client {
	return &Client{connect: connect, logger: logger}
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.connect.Get(ctx, keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (c *Client) Set(ctx context.Context, key, value string) error {
	if err := c.connect.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Close закрывает соединение
func (c *Client) Close() error {
	if err := c.connect.Close(); err != nil {
		return err
	}
	c.logger.Info("redis connection closed")
	return nil
}
