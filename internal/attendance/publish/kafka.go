package publish

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures the Kafka producer.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

// KafkaPublisher produces each envelope synchronously with all-ISR acks and
// idempotent writes. The marker is "topic/partition/offset".
type KafkaPublisher struct {
	client *kgo.Client
}

func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "tally"
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, topic Topic, env Envelope) (SequenceMarker, error) {
	rec := &kgo.Record{
		Topic: topic.String(),
		Key:   []byte(env.Key),
		Value: env.Payload,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(env.Kind)},
			{Key: "record_id", Value: []byte(env.ID)},
		},
	}
	produced, err := p.client.ProduceSync(ctx, rec).First()
	if err != nil {
		return "", Failed(err, "kafka produce failed")
	}
	return SequenceMarker(fmt.Sprintf("%s/%d/%d", produced.Topic, produced.Partition, produced.Offset)), nil
}

// EnsureTopics creates missing topics. Existing topics are left untouched.
func (p *KafkaPublisher) EnsureTopics(ctx context.Context, partitions int32, replication int16, topics ...Topic) error {
	if partitions <= 0 {
		partitions = 1
	}
	if replication <= 0 {
		replication = 1
	}
	names := make([]string, 0, len(topics))
	for _, t := range topics {
		names = append(names, t.String())
	}

	resp, err := kadm.NewClient(p.client).CreateTopics(ctx, partitions, replication, nil, names...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	var failed []string
	for _, r := range resp.Sorted() {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			failed = append(failed, fmt.Sprintf("%s: %v", r.Topic, r.Err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("create topics: %s", strings.Join(failed, "; "))
	}
	return nil
}

// Health pings the cluster.
func (p *KafkaPublisher) Health(ctx context.Context) error {
	return p.client.Ping(ctx)
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
