package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/jobs"
)

type mockTracker struct {
	mu          sync.Mutex
	batch       []*db.Job
	claimErr    error
	rescheduled map[uuid.UUID]time.Time
	failed      map[uuid.UUID]string

	overdue       []*db.Job
	reclaimCutoff time.Time
	overdueCutoff time.Time
	reclaimed     int
}

func newMockTracker(batch ...*db.Job) *mockTracker {
	return &mockTracker{
		batch:       batch,
		rescheduled: make(map[uuid.UUID]time.Time),
		failed:      make(map[uuid.UUID]string),
	}
}

func (m *mockTracker) Claim(ctx context.Context, limit int) ([]*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	out := m.batch
	if len(out) > limit {
		out = out[:limit]
	}
	m.batch = nil
	return out, nil
}

func (m *mockTracker) Reschedule(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rescheduled[id] = at
	return nil
}

func (m *mockTracker) Fail(ctx context.Context, id uuid.UUID, msg string) (*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[id] = msg
	return &db.Job{ID: id, Status: db.StatusFailed, ErrorMessage: &msg}, nil
}

func (m *mockTracker) ReclaimStale(ctx context.Context, claimedBefore time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reclaimCutoff = claimedBefore
	return m.reclaimed, nil
}

func (m *mockTracker) Overdue(ctx context.Context, createdBefore time.Time, limit int) ([]*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overdueCutoff = createdBefore
	out := m.overdue
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockProvider struct {
	mu        sync.Mutex
	err       error
	submitted []uuid.UUID
	modules   map[string]bool
}

func (p *mockProvider) Submit(ctx context.Context, job *db.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, job.ID)
	return p.err
}

func (p *mockProvider) SupportsModule(module string) bool {
	return p.modules == nil || p.modules[module]
}

func queuedJob(attempt int) *db.Job {
	return &db.Job{ID: uuid.New(), Module: db.ModuleImageToVideo, Status: db.StatusQueued, Attempt: attempt}
}

func TestWorker_DispatchSuccess(t *testing.T) {
	job := queuedJob(1)
	tracker := newMockTracker(job)
	provider := &mockProvider{}
	w := New(tracker, provider, Config{}, zap.NewNop())

	if n := w.ProcessBatch(context.Background()); n != 1 {
		t.Fatalf("expected 1 claimed job, got %d", n)
	}
	if len(provider.submitted) != 1 || provider.submitted[0] != job.ID {
		t.Errorf("expected job %s submitted, got %v", job.ID, provider.submitted)
	}
	if len(tracker.rescheduled) != 0 || len(tracker.failed) != 0 {
		t.Errorf("successful dispatch should not reschedule or fail")
	}
}

func TestWorker_RetrySchedule(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"first_attempt", 1, 10 * time.Second},
		{"second_attempt", 2, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := queuedJob(tt.attempt)
			tracker := newMockTracker(job)
			w := New(tracker, &mockProvider{err: errors.New("provider down")}, Config{MaxAttempts: 5}, zap.NewNop())
			w.now = func() time.Time { return base }

			w.ProcessBatch(context.Background())

			at, ok := tracker.rescheduled[job.ID]
			if !ok {
				t.Fatalf("expected job to be rescheduled")
			}
			if got := at.Sub(base); got != tt.want {
				t.Errorf("retry delay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorker_CalculateNextRetryCapsAtLastDelay(t *testing.T) {
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	w := New(newMockTracker(), &mockProvider{}, Config{}, zap.NewNop())
	w.now = func() time.Time { return base }

	if got := w.calculateNextRetry(9).Sub(base); got != 2*time.Minute {
		t.Errorf("expected 2m cap, got %v", got)
	}
	if got := w.calculateNextRetry(0).Sub(base); got != 10*time.Second {
		t.Errorf("expected first delay for attempt 0, got %v", got)
	}
}

func TestWorker_FailsAfterMaxAttempts(t *testing.T) {
	job := queuedJob(3)
	tracker := newMockTracker(job)
	w := New(tracker, &mockProvider{err: errors.New("provider down")}, Config{MaxAttempts: 3}, zap.NewNop())

	w.ProcessBatch(context.Background())

	msg, ok := tracker.failed[job.ID]
	if !ok {
		t.Fatalf("expected job to be failed")
	}
	if msg != dispatchFailedMessage {
		t.Errorf("unexpected failure message %q", msg)
	}
	if _, ok := tracker.rescheduled[job.ID]; ok {
		t.Errorf("failed job should not be rescheduled")
	}
}

func TestWorker_ClaimError(t *testing.T) {
	tracker := newMockTracker()
	tracker.claimErr = errors.New("db down")
	provider := &mockProvider{}
	w := New(tracker, provider, Config{}, zap.NewNop())

	if n := w.ProcessBatch(context.Background()); n != 0 {
		t.Errorf("expected 0, got %d", n)
	}
	if len(provider.submitted) != 0 {
		t.Errorf("nothing should be submitted")
	}
}

func TestWorker_StartStopsOnCancel(t *testing.T) {
	w := New(newMockTracker(), &mockProvider{}, Config{PollInterval: time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestMultiProviderRouting(t *testing.T) {
	images := &mockProvider{modules: map[string]bool{db.ModuleImage: true}}
	videos := &mockProvider{modules: map[string]bool{db.ModuleImageToVideo: true, db.ModuleUGCVideo: true}}
	multi := NewMultiProvider(zap.NewNop(), images, videos)

	tests := []struct {
		module string
		want   bool
	}{
		{db.ModuleImage, true},
		{db.ModuleUGCVideo, true},
		{db.ModuleTextToSpeech, false},
	}
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			if got := multi.SupportsModule(tt.module); got != tt.want {
				t.Errorf("SupportsModule(%s) = %v, want %v", tt.module, got, tt.want)
			}
		})
	}

	job := &db.Job{ID: uuid.New(), Module: db.ModuleUGCVideo}
	if err := multi.Submit(context.Background(), job); err != nil {
		t.Fatalf("Submit() failed: %v", err)
	}
	if len(videos.submitted) != 1 || len(images.submitted) != 0 {
		t.Errorf("job routed to wrong provider")
	}

	if err := multi.Submit(context.Background(), &db.Job{ID: uuid.New(), Module: db.ModuleTextToSpeech}); err == nil {
		t.Errorf("expected error for unsupported module")
	}
}

func TestWorker_SweepUsesLeaseAndDeadline(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	stuck := &db.Job{ID: uuid.New(), Module: db.ModuleImage, Status: db.StatusProcessing, CreatedAt: now.Add(-time.Hour)}
	tracker := newMockTracker()
	tracker.overdue = []*db.Job{stuck}
	tracker.reclaimed = 2

	w := New(tracker, &mockProvider{}, Config{ClaimLease: 5 * time.Minute, JobDeadline: 30 * time.Minute}, zap.NewNop())
	w.now = func() time.Time { return now }

	reclaimed, expired := w.Sweep(context.Background())
	if reclaimed != 2 || expired != 1 {
		t.Fatalf("Sweep() = (%d, %d), want (2, 1)", reclaimed, expired)
	}
	if want := now.Add(-5 * time.Minute); !tracker.reclaimCutoff.Equal(want) {
		t.Errorf("reclaim cutoff = %v, want %v", tracker.reclaimCutoff, want)
	}
	if want := now.Add(-30 * time.Minute); !tracker.overdueCutoff.Equal(want) {
		t.Errorf("overdue cutoff = %v, want %v", tracker.overdueCutoff, want)
	}
	if msg := tracker.failed[stuck.ID]; msg != jobTimedOutMessage {
		t.Errorf("stuck job failed with %q", msg)
	}
}

func TestWorker_ReclaimedPastMaxAttemptsFails(t *testing.T) {
	job := queuedJob(4)
	tracker := newMockTracker(job)
	provider := &mockProvider{}
	w := New(tracker, provider, Config{MaxAttempts: 3}, zap.NewNop())

	w.ProcessBatch(context.Background())

	if len(provider.submitted) != 0 {
		t.Errorf("job past its attempts should not be resubmitted")
	}
	if tracker.failed[job.ID] != dispatchFailedMessage {
		t.Errorf("expected dispatch failure, got %q", tracker.failed[job.ID])
	}
}

// A provider that accepts the job and never reports back leaves it claimed;
// the sweep first hands it out again and finally fails it.
func TestWorker_SilentProviderJobIsRecovered(t *testing.T) {
	store := jobs.NewMemoryStore()
	svc := jobs.NewService(store, zap.NewNop())
	ctx := context.Background()

	job, _, err := svc.Create(ctx, jobs.CreateInput{
		UserID:         "u1",
		IdempotencyKey: "k",
		Module:         db.ModuleImage,
		Params:         json.RawMessage(`{"prompt":"a fox"}`),
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	provider := &mockProvider{}
	w := New(svc, provider, Config{MaxAttempts: 3, ClaimLease: time.Minute, JobDeadline: time.Hour}, zap.NewNop())
	clock := time.Now()
	w.now = func() time.Time { return clock }

	if n := w.ProcessBatch(ctx); n != 1 {
		t.Fatalf("expected one claim, got %d", n)
	}
	if n := w.ProcessBatch(ctx); n != 0 {
		t.Fatalf("claimed job should not be handed out twice, got %d", n)
	}

	clock = clock.Add(2 * time.Minute)
	if reclaimed, _ := w.Sweep(ctx); reclaimed != 1 {
		t.Fatalf("expected the silent claim to be released, got %d", reclaimed)
	}
	if n := w.ProcessBatch(ctx); n != 1 {
		t.Fatalf("expected the job to be dispatched again, got %d", n)
	}
	if len(provider.submitted) != 2 {
		t.Errorf("expected 2 submissions, got %d", len(provider.submitted))
	}

	clock = clock.Add(2 * time.Hour)
	if _, expired := w.Sweep(ctx); expired != 1 {
		t.Fatalf("expected the job to expire, got %d", expired)
	}
	got, err := svc.Get(ctx, "u1", job.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Status != db.StatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != jobTimedOutMessage {
		t.Errorf("expected timed-out failure, got %s %v", got.Status, got.ErrorMessage)
	}
}
