// Package events publishes run lifecycle events to Kafka so downstream
// dashboard services can refresh on completed syncs instead of polling the
// run history table. Publishing is optional: with no brokers configured the
// publisher is nil and every call is a no-op.
package events

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

	"scoresync/internal/platform/config"
)

// RunEvent is the wire payload for one completed run.
type RunEvent struct {
	RunID      string    `json:"run_id"`
	Result     string    `json:"result"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Summary    string    `json:"summary"`
}

// Publisher produces run events to a single topic.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option customizes a Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// New connects to the configured brokers and ensures the topic exists.
// Returns nil when no brokers are configured.
func New(ctx context.Context, cfg config.Kafka, opts ...Option) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}

	p := &Publisher{client: client, topic: cfg.Topic, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.ensureTopic(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureTopic(ctx context.Context) error {
	resps, err := kadm.NewClient(p.client).CreateTopics(ctx, 1, 1, nil, p.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", p.topic, err)
	}
	for _, resp := range resps {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// PublishRun emits one run event, keyed by run id. Safe on a nil Publisher.
func (p *Publisher) PublishRun(ctx context.Context, event RunEvent) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal run event: %w", err)
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.RunID),
		Value: payload,
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce run event: %w", err)
	}
	p.logger.Info("run event published", "topic", p.topic, "run_id", event.RunID, "result", event.Result)
	return nil
}

// Close flushes and releases the client. Safe on a nil Publisher.
func (p *Publisher) Close() {
	if p != nil {
		p.client.Close()
	}
}
