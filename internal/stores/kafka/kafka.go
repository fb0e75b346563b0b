package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const recordDeliveryTimeout = 10 * time.Second

type Conf struct {
	client *kgo.Client
}

func NewConf(brokers []string) (*Conf, error) {
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordDeliveryTimeout(recordDeliveryTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &Conf{client: client}, nil
}

// EnsureTopics creates the storefront topics, ignoring topics that already exist.
func (k *Conf) EnsureTopics(ctx context.Context) error {
	adm := kadm.NewClient(k.client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, Topics...)
	if err != nil {
		return fmt.Errorf("failed to create topics: %w", err)
	}
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("failed to create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

func (k *Conf) ProduceMessage(ctx context.Context, topic string, key, value []byte) error {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message to %s: %w", topic, err)
	}
	return nil
}

// Publish JSON-encodes event and produces it keyed by key.
func (k *Conf) Publish(ctx context.Context, topic, key string, event any) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", topic, err)
	}
	if err := k.ProduceMessage(ctx, topic, []byte(key), jsonData); err != nil {
		return err
	}
	slog.Debug("message produced", slog.String("topic", topic), slog.String("key", key))
	return nil
}

func (k *Conf) Close() {
	k.client.Close()
}
