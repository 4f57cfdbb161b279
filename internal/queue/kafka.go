package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/cryptofolio/tp-monitor/internal/metrics"
)

// KafkaPublisher publishes jobs to Kafka and waits for the broker ack, so a
// reported publish is a durable one.
type KafkaPublisher struct {
	producer *kafka.Producer
}

func NewKafkaPublisher(brokers string) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaPublisher{producer: p}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	delivery := make(chan kafka.Event, 1)
	err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          payload,
	}, delivery)
	if err != nil {
		return fmt.Errorf("produce to %s: %w", topic, err)
	}

	select {
	case ev := <-delivery:
		msg, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected delivery event %T", ev)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("deliver to %s: %w", topic, msg.TopicPartition.Error)
		}
		metrics.JobsPublishedTotal.WithLabelValues(topic).Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *KafkaPublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}

// KafkaConsumer polls the subscribed topics and dispatches each message to
// the handler registered for its topic. Offsets are committed only after a
// handler returns nil, so a crashed or failing handler leaves the job to be
// redelivered.
type KafkaConsumer struct {
	consumer *kafka.Consumer
	handlers map[string]Handler
	logger   *slog.Logger
}

func NewKafkaConsumer(brokers, group string, handlers map[string]Handler, logger *slog.Logger) (*KafkaConsumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           group,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	topics := make([]string, 0, len(handlers))
	for t := range handlers {
		topics = append(topics, t)
	}
	if err := c.SubscribeTopics(topics, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribe %v: %w", topics, err)
	}

	return &KafkaConsumer{consumer: c, handlers: handlers, logger: logger}, nil
}

// Run consumes until the context is cancelled. Handler errors are logged
// and the message is left uncommitted for redelivery.
func (c *KafkaConsumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := c.consumer.ReadMessage(time.Second)
		if err != nil {
			if kerr, ok := err.(kafka.Error); ok && kerr.IsTimeout() {
				continue
			}
			c.logger.Error("kafka read failed", "error", err)
			continue
		}

		topic := ""
		if msg.TopicPartition.Topic != nil {
			topic = *msg.TopicPartition.Topic
		}
		handler, ok := c.handlers[topic]
		if !ok {
			c.logger.Warn("no handler for topic", "topic", topic)
			continue
		}

		if err := handler(ctx, msg.Value); err != nil {
			metrics.JobsConsumedTotal.WithLabelValues(topic, "error").Inc()
			c.logger.Error("job failed, leaving uncommitted for redelivery",
				"topic", topic, "error", err)
			continue
		}

		metrics.JobsConsumedTotal.WithLabelValues(topic, "ok").Inc()
		if _, err := c.consumer.CommitMessage(msg); err != nil {
			c.logger.Error("commit failed", "topic", topic, "error", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.consumer.Close()
}
