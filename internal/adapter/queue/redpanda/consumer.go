package redpanda

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fairyhunter13/sales-cert-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/sales-cert-evaluator/internal/domain"
)

// EventHandler reacts to one score change event.
type EventHandler func(ctx context.Context, ev domain.ScoreChangedEvent) error

// Consumer reads score change events within a consumer group and hands them
// to an EventHandler. Offsets are committed only after the handler returned.
type Consumer struct {
	client  *kgo.Client
	handler EventHandler
	topic   string
	groupID string
	// maxElapsed bounds handler retries for a single record.
	maxElapsed time.Duration
}

// NewConsumer constructs a Consumer for topic within groupID.
func NewConsumer(ctx context.Context, brokers []string, groupID, topic string, partitions int32, handler EventHandler) (*Consumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if handler == nil {
		return nil, fmt.Errorf("missing event handler")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.DisableAutoCommit(),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda consumer client: %w", err)
	}
	if err := ensureTopic(ctx, client, topic, partitions, 1); err != nil {
		slog.Warn("failed to ensure topic", slog.String("topic", topic), slog.Any("error", err))
	}
	return &Consumer{client: client, handler: handler, topic: topic, groupID: groupID, maxElapsed: 30 * time.Second}, nil
}

// Start polls until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	slog.Info("starting score event consumer", slog.String("group_id", c.groupID), slog.String("topic", c.topic))
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if fetches.IsClientClosed() {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			slog.Error("fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
		})

		var done []*kgo.Record
		fetches.EachRecord(func(rec *kgo.Record) {
			if ctx.Err() != nil {
				return
			}
			c.process(ctx, rec)
			done = append(done, rec)
		})
		if len(done) == 0 {
			continue
		}
		if err := c.client.CommitRecords(ctx, done...); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("commit failed", slog.Int("records", len(done)), slog.Any("error", err))
		}
	}
}

// process runs the handler with retries. A record that keeps failing is
// logged and skipped; the next event of the same learner repairs the projection.
func (c *Consumer) process(ctx context.Context, rec *kgo.Record) {
	ev, err := decodeEvent(rec)
	if err != nil {
		observability.ObserveEvent("consume", "invalid")
		slog.Warn("dropping undecodable score event",
			slog.String("topic", rec.Topic), slog.Int64("offset", rec.Offset), slog.Any("error", err))
		return
	}
	log := slog.With(slog.String("event_id", ev.EventID), slog.String("learner_id", ev.LearnerID), slog.String("exercise_id", ev.ExerciseID))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.maxElapsed
	op := func() error {
		if err := c.handler(ctx, ev); err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		observability.ObserveEvent("consume", "error")
		log.Error("score event handler failed", slog.Any("error", err))
		return
	}
	observability.ObserveEvent("consume", "ok")
	log.Debug("score event handled", slog.Int64("offset", rec.Offset))
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
