package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client caches availability-listing responses as raw JSON with a short TTL.
// It is strictly display-path: reservation decisions always go through the
// locked ledger row, never through this cache.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

type Config struct {
	Addr     string
	Password string
	TTL      time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           0,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		DialTimeout:  5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Second
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

func stockKey(eventID string) string {
	return "stock:list:" + eventID
}

// GetStockListRaw returns the cached listing as raw JSON to skip an
// unmarshal/marshal round trip on the hot path.
func (c *Client) GetStockListRaw(ctx context.Context, eventID string) ([]byte, error) {
	data, err := c.rdb.Get(ctx, stockKey(eventID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("stock list not cached for event %s", eventID)
		}
		return nil, err
	}
	return data, nil
}

func (c *Client) SetStockList(ctx context.Context, eventID string, response any) error {
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, stockKey(eventID), data, c.ttl).Err()
}

// InvalidateStockList drops the cached listing after an admin mutation so the
// next read reflects it immediately instead of after TTL expiry.
func (c *Client) InvalidateStockList(ctx context.Context, eventID string) error {
	return c.rdb.Del(ctx, stockKey(eventID)).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
