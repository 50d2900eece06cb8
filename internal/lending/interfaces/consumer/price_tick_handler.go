// Package consumer 行情喂价消费者，将价格写入借贷服务的喂价缓存
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pkg/messagequeue/kafka"

	"github.com/amitk-codes/lendity-fi/internal/lending/domain"
	"github.com/amitk-codes/lendity-fi/internal/lending/infrastructure/oracle"
)

type PriceTickHandler struct {
	cache  *oracle.PriceCache
	logger *slog.Logger
}

func NewPriceTickHandler(cache *oracle.PriceCache, logger *slog.Logger) *PriceTickHandler {
	return &PriceTickHandler{
		cache:  cache,
		logger: logger.With("module", "price_tick_handler"),
	}
}

// HandlePriceTick 消费行情事件并更新喂价缓存。
// 格式错误的消息记录告警后丢弃，不阻塞分区消费。
func (h *PriceTickHandler) HandlePriceTick(ctx context.Context, msg kafkago.Message) error {
	var event struct {
		AssetID   string `json:"asset_id"`
		Price     string `json:"price"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.WarnContext(ctx, "dropping malformed price tick", "error", err)
		return nil
	}

	price, err := decimal.NewFromString(event.Price)
	if err != nil || price.LessThanOrEqual(decimal.Zero) {
		h.logger.WarnContext(ctx, "dropping invalid price tick", "asset_id", event.AssetID, "price", event.Price)
		return nil
	}

	return h.cache.SetPrice(ctx, &domain.Price{
		AssetID:   event.AssetID,
		Value:     price,
		Timestamp: time.Unix(event.Timestamp, 0),
	})
}

func (h *PriceTickHandler) Subscribe(ctx context.Context, consumer *kafka.Consumer) {
	consumer.Start(ctx, 1, h.HandlePriceTick)
}
