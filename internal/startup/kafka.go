package startup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/convo/internal/notify"
)

// EnsureKafkaTopicWithRetry ждёт доступности брокеров и создаёт топик уведомлений, если его нет.
func EnsureKafkaTopicWithRetry(brokers, topic string, partitions int, maxWait time.Duration, logPrefix string) {
	retryUntil("kafka", maxWait, logPrefix, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ensureTopic(ctx, notify.SplitBrokers(brokers), topic, partitions)
	})
}

// ensureTopic создаёт топик через контроллер кластера; существующий топик не ошибка.
func ensureTopic(ctx context.Context, brokers []string, topic string, partitions int) error {
	if len(brokers) == 0 {
		return fmt.Errorf("no kafka brokers")
	}
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return err
	}
	defer conn.Close()
	controller, err := conn.Controller()
	if err != nil {
		return err
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return err
	}
	defer cc.Close()
	err = cc.CreateTopics(kafka.TopicConfig{Topic: topic, NumPartitions: partitions, ReplicationFactor: 1})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return err
	}
	return nil
}
