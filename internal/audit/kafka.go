package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"policydesk/pkg/platform/circuit"
)

// Producer is the subset of *kgo.Client the Kafka sink needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// KafkaSink publishes events as JSON records keyed by policy ID, so each
// policy's events stay ordered within a partition. Once the breaker opens,
// events are logged and dropped until the broker recovers.
type KafkaSink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewKafkaSink(producer Producer, topic string, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("audit-kafka", circuit.WithFailureThreshold(5), circuit.WithSuccessThreshold(2)),
		logger:   logger,
	}
}

// NewKafkaClient builds a franz-go client for the given seed brokers.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32) error {
	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, partitions, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (k *KafkaSink) Append(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(strconv.FormatInt(event.PolicyID, 10)),
		Value: value,
	}
	if err := k.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		useFallback, change := k.breaker.RecordFailure()
		if change.Opened {
			k.logger.WarnContext(ctx, "audit kafka circuit opened", "topic", k.topic, "error", err)
		}
		if useFallback {
			k.logger.InfoContext(ctx, "audit event dropped", "action", event.Action, "policy_id", event.PolicyID)
			return nil
		}
		return fmt.Errorf("produce audit event: %w", err)
	}
	if _, change := k.breaker.RecordSuccess(); change.Closed {
		k.logger.InfoContext(ctx, "audit kafka circuit closed", "topic", k.topic)
	}
	return nil
}
