package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaMirror publishes ledger entries to a Kafka topic keyed by sequence
// number, so downstream consumers can detect gaps.
type KafkaMirror struct {
	client *kgo.Client
	topic  string
}

// NewKafkaMirror connects to the brokers and ensures the mirror topic exists.
func NewKafkaMirror(ctx context.Context, brokers []string, topic string) (*KafkaMirror, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	if _, err := adm.CreateTopic(ctx, 1, 1, nil, topic); err != nil {
		// Topic may already exist; only connectivity failures are fatal.
		if !isTopicExists(err) {
			client.Close()
			return nil, fmt.Errorf("ensure mirror topic: %w", err)
		}
	}

	return &KafkaMirror{client: client, topic: topic}, nil
}

func (m *KafkaMirror) Publish(ctx context.Context, entry Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal mirror record: %w", err)
	}
	record := &kgo.Record{
		Topic: m.topic,
		Key:   []byte(strconv.FormatUint(entry.Seq, 10)),
		Value: value,
	}
	return m.client.ProduceSync(ctx, record).FirstErr()
}

func (m *KafkaMirror) Close() {
	m.client.Close()
}

func isTopicExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "TOPIC_ALREADY_EXISTS")
}
