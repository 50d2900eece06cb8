// Package oracle 基于 Redis 的喂价缓存，价格由行情消费者写入
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amitk-codes/lendity-fi/internal/lending/domain"
)

type PriceCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewPriceCache 创建喂价缓存。
// ttl 通常设为最大可接受价格时效的数倍，时效校验仍以价格自身时间戳为准。
func NewPriceCache(client redis.UniversalClient, ttl time.Duration) *PriceCache {
	return &PriceCache{
		client: client,
		prefix: "lending:price:",
		ttl:    ttl,
	}
}

// GetPrice 读取资产最新喂价，无记录返回 ErrMissingPrice
func (c *PriceCache) GetPrice(ctx context.Context, assetID string, _ time.Duration) (*domain.Price, error) {
	data, err := c.client.Get(ctx, c.prefix+assetID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, domain.ErrMissingPrice
		}
		return nil, fmt.Errorf("failed to get price from redis: %w", err)
	}
	var price domain.Price
	if err := json.Unmarshal(data, &price); err != nil {
		return nil, fmt.Errorf("failed to unmarshal price: %w", err)
	}
	return &price, nil
}

// SetPrice 写入资产喂价
func (c *PriceCache) SetPrice(ctx context.Context, price *domain.Price) error {
	data, err := json.Marshal(price)
	if err != nil {
		return fmt.Errorf("failed to marshal price: %w", err)
	}
	return c.client.Set(ctx, c.prefix+price.AssetID, data, c.ttl).Err()
}
