// Package redpanda publishes and consumes exercise score change events.
//
// Events are keyed by learner so every change of one learner lands on the same
// partition and the certification projector sees them in order.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

const (
	headerEventID    = "event_id"
	headerExerciseID = "exercise_id"
	headerKind       = "exercise_kind"
)

// Producer implements domain.EventPublisher on top of a franz-go client.
type Producer struct {
	client *kgo.Client
	topic  string
}

var _ domain.EventPublisher = (*Producer)(nil)

func kotelHooks() kgo.Opt {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	return kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()...)
}

// NewProducer connects to brokers and makes sure topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string, partitions int32) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}
	if err := ensureTopic(ctx, client, topic, partitions, 1); err != nil {
		slog.Warn("failed to ensure topic", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("redpanda producer ready", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Producer{client: client, topic: topic}, nil
}

// PublishScoreChanged writes ev synchronously.
func (p *Producer) PublishScoreChanged(ctx domain.Context, ev domain.ScoreChangedEvent) error {
	rec, err := encodeEvent(p.topic, ev)
	if err != nil {
		observability.ObserveEvent("produce", "invalid")
		return fmt.Errorf("op=events.publish: %w", err)
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		observability.ObserveEvent("produce", "error")
		return fmt.Errorf("op=events.publish: %w", err)
	}
	observability.ObserveEvent("produce", "ok")
	return nil
}

// Ping checks broker connectivity.
func (p *Producer) Ping(ctx context.Context) error { return p.client.Ping(ctx) }

// Close flushes pending records and closes the client.
func (p *Producer) Close() error {
	if p.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}

func encodeEvent(topic string, ev domain.ScoreChangedEvent) (*kgo.Record, error) {
	if ev.LearnerID == "" || ev.ExerciseID == "" {
		return nil, fmt.Errorf("%w: event without learner or exercise", domain.ErrInvalidArgument)
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(ev.LearnerID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: headerEventID, Value: []byte(ev.EventID)},
			{Key: headerExerciseID, Value: []byte(ev.ExerciseID)},
			{Key: headerKind, Value: []byte(ev.Kind)},
		},
	}, nil
}

func decodeEvent(rec *kgo.Record) (domain.ScoreChangedEvent, error) {
	var ev domain.ScoreChangedEvent
	if err := json.Unmarshal(rec.Value, &ev); err != nil {
		return ev, fmt.Errorf("decode event: %w", err)
	}
	if ev.LearnerID == "" {
		return ev, fmt.Errorf("decode event: %w: missing learner id", domain.ErrInvalidArgument)
	}
	return ev, nil
}
