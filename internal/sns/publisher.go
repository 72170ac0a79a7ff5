package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/lalithlochan/clipforge/internal/db"
)

// Event types published on the lifecycle topic.
const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
)

// Event is the SNS message body for a terminal job.
type Event struct {
	Event        string   `json:"event"`
	JobID        string   `json:"job_id"`
	UserID       string   `json:"user_id"`
	Module       string   `json:"module"`
	Status       string   `json:"status"`
	FinalURLs    []string `json:"final_urls,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	OccurredAt   string   `json:"occurred_at"`
}

type snsAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher fans terminal job events out to subscribers of a topic
// (analytics, billing, webhooks to customers).
type Publisher struct {
	client   snsAPI
	topicARN string
	now      func() time.Time
}

func NewPublisher(ctx context.Context, topicARN string, optFns ...func(*config.LoadOptions) error) (*Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Publisher{
		client:   sns.NewFromConfig(cfg),
		topicARN: topicARN,
		now:      time.Now,
	}, nil
}

// NewPublisherWithEndpoint targets a custom endpoint such as LocalStack.
func NewPublisherWithEndpoint(ctx context.Context, topicARN, endpoint, region string) (*Publisher, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := sns.NewFromConfig(cfg, func(o *sns.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &Publisher{
		client:   client,
		topicARN: topicARN,
		now:      time.Now,
	}, nil
}

// EventFor builds the lifecycle event for a terminal job.
func EventFor(job *db.Job, at time.Time) (Event, error) {
	ev := Event{
		JobID:      job.ID.String(),
		UserID:     job.UserID,
		Module:     job.Module,
		Status:     job.Status,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
	switch job.Status {
	case db.StatusCompleted:
		ev.Event = EventJobCompleted
		ev.FinalURLs = job.FinalURLs
	case db.StatusFailed:
		ev.Event = EventJobFailed
		if job.ErrorMessage != nil {
			ev.ErrorMessage = *job.ErrorMessage
		}
	default:
		return Event{}, fmt.Errorf("job %s is not terminal (status %s)", job.ID, job.Status)
	}
	return ev, nil
}

// PublishJobEvent implements notify.EventPublisher.
func (p *Publisher) PublishJobEvent(ctx context.Context, job *db.Job) (string, error) {
	ev, err := EventFor(job, p.now())
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	result, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.Event),
			},
			"module": {
				DataType:    aws.String("String"),
				StringValue: aws.String(ev.Module),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to publish to SNS: %w", err)
	}
	return aws.ToString(result.MessageId), nil
}
