package sns

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	"github.com/lalithlochan/clipforge/internal/db"
)

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

var fixedNow = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func TestEventFor(t *testing.T) {
	msg := "Content policy violation"
	tests := []struct {
		name      string
		job       *db.Job
		wantEvent string
		wantErr   bool
	}{
		{
			name:      "completed",
			job:       &db.Job{ID: uuid.New(), Status: db.StatusCompleted, FinalURLs: []string{"https://x/v.mp4"}},
			wantEvent: EventJobCompleted,
		},
		{
			name:      "failed",
			job:       &db.Job{ID: uuid.New(), Status: db.StatusFailed, ErrorMessage: &msg},
			wantEvent: EventJobFailed,
		},
		{
			name:    "processing_is_not_terminal",
			job:     &db.Job{ID: uuid.New(), Status: db.StatusProcessing},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := EventFor(tt.job, fixedNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if ev.Event != tt.wantEvent {
				t.Errorf("event = %q, want %q", ev.Event, tt.wantEvent)
			}
			if ev.OccurredAt != "2026-02-03T04:05:06Z" {
				t.Errorf("occurred_at = %q", ev.OccurredAt)
			}
		})
	}
}

func TestPublisher_PublishJobEvent(t *testing.T) {
	api := &fakeSNS{}
	p := &Publisher{client: api, topicARN: "arn:aws:sns:us-east-1:123:clipforge-jobs", now: func() time.Time { return fixedNow }}

	msg := "Generation timed out"
	job := &db.Job{ID: uuid.New(), UserID: "u1", Module: db.ModuleUGCVideo, Status: db.StatusFailed, ErrorMessage: &msg}

	id, err := p.PublishJobEvent(context.Background(), job)
	if err != nil {
		t.Fatalf("PublishJobEvent() failed: %v", err)
	}
	if id != "sns-1" {
		t.Errorf("message id = %q", id)
	}
	if got := aws.ToString(api.input.MessageAttributes["event"].StringValue); got != EventJobFailed {
		t.Errorf("event attribute = %q", got)
	}

	var ev Event
	if err := json.Unmarshal([]byte(aws.ToString(api.input.Message)), &ev); err != nil {
		t.Fatalf("invalid message body: %v", err)
	}
	if ev.ErrorMessage != msg || ev.UserID != "u1" {
		t.Errorf("unexpected event %+v", ev)
	}

	var raw map[string]any
	_ = json.Unmarshal([]byte(aws.ToString(api.input.Message)), &raw)
	if _, ok := raw["final_urls"]; ok {
		t.Error("final_urls should be omitted for failed jobs")
	}
}

func TestPublisher_PublishError(t *testing.T) {
	p := &Publisher{client: &fakeSNS{err: errors.New("denied")}, now: time.Now}
	job := &db.Job{ID: uuid.New(), Status: db.StatusCompleted}
	if _, err := p.PublishJobEvent(context.Background(), job); err == nil {
		t.Fatal("expected error")
	}
}
