package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/convo/internal/push"
)

// Подписки Web Push: список JSON по ключу push:subs:{user}, не больше maxSubsPerUser, TTL 30 дней.
const (
	pushKeyPrefix   = "push:subs:"
	maxSubsPerUser  = 10
	subscriptionTTL = 30 * 24 * time.Hour
)

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

// NewFromClient оборачивает готовый клиент (тесты).
func NewFromClient(cli *redis.Client) *Client {
	return &Client{cli: cli}
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SaveSubscription добавляет подписку; старые сверх лимита отбрасываются.
func (c *Client) SaveSubscription(ctx context.Context, userID string, sub push.Subscription) error {
	raw, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	key := pushKeyPrefix + userID
	if err := c.RemoveSubscription(ctx, userID, sub.Endpoint); err != nil {
		return err
	}
	pipe := c.cli.TxPipeline()
	pipe.RPush(ctx, key, string(raw))
	pipe.LTrim(ctx, key, -maxSubsPerUser, -1)
	pipe.Expire(ctx, key, subscriptionTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *Client) Subscriptions(ctx context.Context, userID string) ([]push.Subscription, error) {
	list, err := c.cli.LRange(ctx, pushKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]push.Subscription, 0, len(list))
	for _, item := range list {
		var sub push.Subscription
		if json.Unmarshal([]byte(item), &sub) == nil && sub.Endpoint != "" {
			out = append(out, sub)
		}
	}
	return out, nil
}

// RemoveSubscription удаляет подписку по endpoint; отсутствие подписки не ошибка.
func (c *Client) RemoveSubscription(ctx context.Context, userID, endpoint string) error {
	key := pushKeyPrefix + userID
	list, err := c.cli.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return err
	}
	for _, item := range list {
		var sub push.Subscription
		if json.Unmarshal([]byte(item), &sub) != nil || sub.Endpoint == endpoint {
			if err := c.cli.LRem(ctx, key, 0, item).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushDB очищает текущую БД Redis (тесты).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
