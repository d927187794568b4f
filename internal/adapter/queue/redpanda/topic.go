package redpanda

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// errTopicAlreadyExists is TOPIC_ALREADY_EXISTS in the Kafka protocol.
const errTopicAlreadyExists int16 = 36

// requester is the part of kgo.Client used for admin requests.
type requester interface {
	Request(ctx context.Context, req kmsg.Request) (kmsg.Response, error)
}

var _ requester = (*kgo.Client)(nil)

// ensureTopic creates topic when it does not exist yet. An existing topic is not an error.
func ensureTopic(ctx context.Context, client requester, topic string, partitions int32, replicationFactor int16) error {
	if topic == "" {
		return fmt.Errorf("topic name cannot be empty")
	}
	if partitions <= 0 {
		return fmt.Errorf("partitions must be greater than 0")
	}
	if replicationFactor <= 0 {
		return fmt.Errorf("replication factor must be greater than 0")
	}

	req := kmsg.NewCreateTopicsRequest()
	req.TimeoutMillis = 30000
	t := kmsg.NewCreateTopicsRequestTopic()
	t.Topic = topic
	t.NumPartitions = partitions
	t.ReplicationFactor = replicationFactor
	req.Topics = append(req.Topics, t)

	resp, err := client.Request(ctx, &req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	created, ok := resp.(*kmsg.CreateTopicsResponse)
	if !ok {
		return fmt.Errorf("unexpected response type: %T", resp)
	}
	for _, tr := range created.Topics {
		switch tr.ErrorCode {
		case 0:
			slog.Info("topic created", slog.String("topic", tr.Topic), slog.Int("partitions", int(partitions)))
		case errTopicAlreadyExists:
			slog.Debug("topic already exists", slog.String("topic", tr.Topic))
		default:
			msg := ""
			if tr.ErrorMessage != nil {
				msg = *tr.ErrorMessage
			}
			return fmt.Errorf("create topic error: %s (code %d)", msg, tr.ErrorCode)
		}
	}
	return nil
}
