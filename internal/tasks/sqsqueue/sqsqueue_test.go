package sqsqueue_test

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/programme-lv/disttester/internal/tasks"
	"github.com/programme-lv/disttester/internal/tasks/sqsqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSQS keeps sent messages in memory. Receiving from an empty queue
// cancels the consumer.
type fakeSQS struct {
	mu      sync.Mutex
	queue   []types.Message
	deleted []string
	seq     int
	cancel  context.CancelFunc
}

func (f *fakeSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.queue = append(f.queue, types.Message{
		Body:          in.MessageBody,
		ReceiptHandle: aws.String("rh-" + strconv.Itoa(f.seq)),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	})
	return &sqs.SendMessageOutput{}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		f.cancel()
		return nil, context.Canceled
	}
	msgs := f.queue
	f.queue = nil
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func TestDispatchAndConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := &fakeSQS{cancel: cancel}
	q := sqsqueue.New(client, "https://sqs.example/queue", slog.Default())

	ok := tasks.IncrementScores("a1", []string{"s1", "s2"})
	bad := tasks.PostComment("a1", "s3", "hello")
	require.NoError(t, q.Dispatch(ctx, ok))
	require.NoError(t, q.Dispatch(ctx, bad))
	client.queue = append(client.queue, types.Message{Body: aws.String("garbage"), ReceiptHandle: aws.String("rh-x")})

	var handled []tasks.Task
	err := q.Consume(ctx, tasks.HandlerFunc(func(ctx context.Context, task tasks.Task) error {
		handled = append(handled, task)
		if task.Kind == tasks.KindPostComment {
			return errors.New("lms is down")
		}
		return nil
	}))
	require.NoError(t, err)

	require.Len(t, handled, 2)
	assert.Equal(t, ok.ID, handled[0].ID)
	assert.Equal(t, 1, handled[0].Attempt)
	// the failed comment stays queued for redelivery
	assert.Equal(t, []string{"rh-1", "rh-x"}, client.deleted)
}

func TestDispatchValidates(t *testing.T) {
	q := sqsqueue.New(&fakeSQS{}, "url", slog.Default())
	err := q.Dispatch(context.Background(), tasks.Task{Kind: tasks.KindPostComment, AssignmentID: "a1"})
	assert.Error(t, err)
}
