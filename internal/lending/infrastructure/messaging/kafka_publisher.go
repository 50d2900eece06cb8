// Package messaging 借贷领域事件的 Kafka 发布实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wyfcoding/pkg/messagequeue/kafka"
)

type KafkaEventPublisher struct {
	producer *kafka.Producer
}

func NewKafkaEventPublisher(producer *kafka.Producer) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer}
}

// Publish 序列化事件并按 key 分区发布，同一 key 的事件保序
func (p *KafkaEventPublisher) Publish(ctx context.Context, topic, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.producer.PublishToTopic(ctx, topic, []byte(key), payload)
}
