// Package sqsqueue carries tasks over an Amazon SQS queue so that workers on
// other machines can run them.
package sqsqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/programme-lv/disttester/internal/metrics"
	"github.com/programme-lv/disttester/internal/tasks"
)

// Client is the part of *sqs.Client the queue uses.
type Client interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

func NewClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

type Queue struct {
	client   Client
	queueURL string
	logger   *slog.Logger
	// WaitTime is the long-poll duration of a receive call.
	WaitTime time.Duration
}

var _ tasks.Dispatcher = (*Queue)(nil)

func New(client Client, queueURL string, logger *slog.Logger) *Queue {
	return &Queue{client: client, queueURL: queueURL, logger: logger, WaitTime: 5 * time.Second}
}

func (q *Queue) Dispatch(ctx context.Context, t tasks.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	b, err := tasks.Encode(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(b)),
	})
	if err != nil {
		return fmt.Errorf("failed to send task %s: %w", t.ID, err)
	}
	return nil
}

// Consume receives tasks until ctx is cancelled. A message is deleted only
// after h handled it, so failed tasks come back once their visibility
// timeout expires. Malformed messages are deleted.
func (q *Queue) Consume(ctx context.Context, h tasks.Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		output, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(q.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     int32(q.WaitTime / time.Second),
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			q.logger.Error("failed to receive messages", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range output.Messages {
			q.handle(ctx, h, msg)
		}
	}
}

func (q *Queue) handle(ctx context.Context, h tasks.Handler, msg types.Message) {
	if msg.Body == nil || msg.ReceiptHandle == nil {
		q.logger.Error("received message without body or receipt handle")
		return
	}
	t, err := tasks.Decode([]byte(*msg.Body))
	if err != nil {
		q.logger.Error("dropping malformed task", "error", err)
		q.delete(ctx, msg.ReceiptHandle)
		return
	}
	if n, err := strconv.Atoi(msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil {
		t.Attempt = n
	}

	logger := q.logger.With("task_id", t.ID, "kind", t.Kind, "attempt", t.Attempt)
	if err := h.Handle(ctx, t); err != nil {
		metrics.Tasks.WithLabelValues(string(t.Kind), "retry").Inc()
		logger.Warn("task failed, leaving it for redelivery", "error", err)
		return
	}
	metrics.Tasks.WithLabelValues(string(t.Kind), "ok").Inc()
	q.delete(ctx, msg.ReceiptHandle)
}

func (q *Queue) delete(ctx context.Context, handle *string) {
	_, err := q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(q.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		q.logger.Error("failed to delete message", "error", err)
	}
}
