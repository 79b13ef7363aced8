package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/outreach-dispatch/internal/config"
	"github.com/ignite/outreach-dispatch/internal/domain"
)

// ReviewQueue parks actions that need a human approval.
type ReviewQueue interface {
	// Enqueue adds item and reports whether it was new. An item whose
	// idempotency key is already queued is not queued again.
	Enqueue(ctx context.Context, item domain.ReviewItem) (bool, error)
}

// MemoryReviewQueue keeps pending items in process memory.
type MemoryReviewQueue struct {
	mu    sync.Mutex
	items []domain.ReviewItem
	seen  map[string]bool
}

// NewMemoryReviewQueue creates an empty queue.
func NewMemoryReviewQueue() *MemoryReviewQueue {
	return &MemoryReviewQueue{seen: make(map[string]bool)}
}

func (q *MemoryReviewQueue) Enqueue(_ context.Context, item domain.ReviewItem) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.seen[item.IdempotencyKey] {
		return false, nil
	}
	q.seen[item.IdempotencyKey] = true
	q.items = append(q.items, item)
	return true, nil
}

// Pending returns a copy of the queued items in arrival order.
func (q *MemoryReviewQueue) Pending() []domain.ReviewItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.ReviewItem(nil), q.items...)
}

// Remove drops the item with key, e.g. once it has been approved.
func (q *MemoryReviewQueue) Remove(key string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.seen, key)
	for i, it := range q.items {
		if it.IdempotencyKey == key {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return
		}
	}
}

// sqsAPI is the subset of the SQS client the queue uses.
type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSReviewQueue publishes review items to an SQS queue consumed by the
// approval UI. Consumers dedupe on the idempotency_key attribute.
type SQSReviewQueue struct {
	client   sqsAPI
	queueURL string
}

// NewSQSReviewQueue creates a queue publisher for queueURL.
func NewSQSReviewQueue(ctx context.Context, queueURL string, creds config.AWSConfig) (*SQSReviewQueue, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(creds.Region)}
	if creds.AccessKey != "" && creds.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("review queue: load aws config: %w", err)
	}
	return newSQSReviewQueue(sqs.NewFromConfig(awsCfg), queueURL), nil
}

func newSQSReviewQueue(client sqsAPI, queueURL string) *SQSReviewQueue {
	return &SQSReviewQueue{client: client, queueURL: queueURL}
}

func (q *SQSReviewQueue) Enqueue(ctx context.Context, item domain.ReviewItem) (bool, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return false, fmt.Errorf("marshal review item: %w", err)
	}
	attrs := map[string]types.MessageAttributeValue{
		"idempotency_key": {DataType: aws.String("String"), StringValue: aws.String(item.IdempotencyKey)},
	}
	if item.ClientID != "" {
		attrs["client_id"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(item.ClientID)}
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(q.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	})
	if err != nil {
		return false, fmt.Errorf("publish review item: %w", err)
	}
	return true, nil
}
