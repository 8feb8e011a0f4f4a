package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vhorak/payflow/internal/domain/saga"
)

const (
	// CommandStream carries saga step commands to the workers.
	CommandStream = "payflow:saga:commands"
	// DLQStream receives commands the workers gave up on.
	DLQStream = "payflow:saga:dlq"
)

// CommandProducer publishes saga commands onto the command stream. It
// implements the orchestrator's CommandPublisher port.
type CommandProducer struct {
	client *redis.Client
}

func NewCommandProducer(client *redis.Client) *CommandProducer {
	return &CommandProducer{client: client}
}

// Publish appends the command to the stream as a first delivery.
func (p *CommandProducer) Publish(ctx context.Context, cmd saga.Command) error {
	return p.publish(ctx, cmd, 0)
}

// Requeue re-publishes a command that could not be processed, carrying its
// delivery attempt count so the worker can park it after too many failures.
func (p *CommandProducer) Requeue(ctx context.Context, cmd saga.Command, attempt int) error {
	return p.publish(ctx, cmd, attempt)
}

func (p *CommandProducer) publish(ctx context.Context, cmd saga.Command, attempt int) error {
	values, err := commandValues(cmd, attempt)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: CommandStream,
		Values: values,
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish command: %w", err)
	}
	return nil
}

func commandValues(cmd saga.Command, attempt int) (map[string]any, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}
	return map[string]any{
		"kind":           string(cmd.Kind),
		"correlation_id": cmd.CorrelationID.String(),
		"payload":        string(payload),
		"attempt":        strconv.Itoa(attempt),
		"timestamp":      time.Now().Unix(),
	}, nil
}

// PublishToDLQ parks a command the worker could not process.
func (p *CommandProducer) PublishToDLQ(ctx context.Context, cmd saga.Command, reason string) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: DLQStream,
		Values: map[string]any{
			"kind":           string(cmd.Kind),
			"correlation_id": cmd.CorrelationID.String(),
			"reason":         reason,
			"payload":        string(payload),
			"timestamp":      time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

// DecodeCommand extracts a saga command and its delivery attempt count from a
// stream message. Messages without an attempt field count as first delivery.
func DecodeCommand(msg redis.XMessage) (saga.Command, int, error) {
	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return saga.Command{}, 0, fmt.Errorf("message %s has no payload", msg.ID)
	}
	var cmd saga.Command
	if err := json.Unmarshal([]byte(raw), &cmd); err != nil {
		return saga.Command{}, 0, fmt.Errorf("failed to unmarshal command: %w", err)
	}

	attempt := 0
	if rawAttempt, ok := msg.Values["attempt"].(string); ok {
		if n, err := strconv.Atoi(rawAttempt); err == nil && n > 0 {
			attempt = n
		}
	}
	return cmd, attempt, nil
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return streams, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	err := c.client.XAck(ctx, c.stream, c.group, messageID).Err()
	if err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Claim takes over pending messages another consumer left idle, scanning the
// pending entries list from the start cursor. It returns the claimed messages
// and the cursor for the next scan; "0-0" restarts from the beginning.
func (c *StreamConsumer) Claim(ctx context.Context, minIdleTime time.Duration, start string) ([]redis.XMessage, string, error) {
	messages, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdleTime,
		Start:    start,
		Count:    c.batchSize,
	}).Result()

	if err != nil {
		return nil, "", fmt.Errorf("failed to claim messages: %w", err)
	}

	return messages, next, nil
}
