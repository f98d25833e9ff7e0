// Package notify доставляет уведомления о новых сообщениях получателям вне realtime-канала:
// через очередь Kafka (потребитель — сервис push) или напрямую в push-сервис по HTTP.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/convo/internal/logger"
	"github.com/convo/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier публикует model.NewMessagePayload в топик; ключ — получатель,
// поэтому уведомления одного пользователя попадают в одну партицию по порядку.
type KafkaNotifier struct {
	w messageWriter
}

func NewKafkaNotifier(brokers, topic string) *KafkaNotifier {
	return &KafkaNotifier{w: &kafka.Writer{
		Addr:         kafka.TCP(SplitBrokers(brokers)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (n *KafkaNotifier) Notify(ctx context.Context, p model.NewMessagePayload) error {
	value, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify.Kafka marshal: %w", err)
	}
	if err := n.w.WriteMessages(ctx, kafka.Message{Key: []byte(p.RecipientID), Value: value, Time: time.Now()}); err != nil {
		return fmt.Errorf("notify.Kafka write: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error { return n.w.Close() }

// SplitBrokers разбирает список брокеров "host1:9092,host2:9092".
func SplitBrokers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler обрабатывает одно уведомление из очереди.
type Handler func(ctx context.Context, p model.NewMessagePayload) error

// Consumer читает уведомления из топика в составе consumer group.
// Ошибка обработчика логируется, сообщение всё равно коммитится: уведомления best-effort.
type Consumer struct {
	reader messageReader
	handle Handler
}

func NewConsumer(brokers, groupID, topic string, h Handler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        SplitBrokers(brokers),
			GroupID:        groupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		}),
		handle: h,
	}
}

// Run блокируется до отмены ctx.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			logger.Errorf("notify consumer close: %v", err)
		}
	}()
	logger.Info("notify consumer started")
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info("notify consumer stopped")
				return nil
			}
			logger.Errorf("notify consumer fetch: %v", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		var p model.NewMessagePayload
		if err := json.Unmarshal(m.Value, &p); err != nil {
			logger.Errorw("notify consumer: bad payload", "offset", m.Offset, "error", err)
		} else if err := c.handle(ctx, p); err != nil {
			logger.Errorw("notify consumer: handler failed", "recipient", p.RecipientID, "error", err)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			logger.Errorf("notify consumer commit: %v", err)
		}
	}
}
