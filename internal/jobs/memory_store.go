package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lalithlochan/clipforge/internal/db"
)

// MemoryStore is an in-process Repository. It copies jobs on the way in
// and out so callers never share state with the store.
type MemoryStore struct {
	mu    sync.Mutex
	jobs  map[uuid.UUID]*db.Job
	byKey map[string]uuid.UUID
	now   func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:  make(map[uuid.UUID]*db.Job),
		byKey: make(map[string]uuid.UUID),
		now:   time.Now,
	}
}

func idempotencyIndex(userID, key string) string {
	return userID + "\x00" + key
}

func (m *MemoryStore) CreateJob(ctx context.Context, job *db.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := idempotencyIndex(job.UserID, job.IdempotencyKey)
	if _, exists := m.byKey[idx]; exists {
		return fmt.Errorf("insert job: %w", db.ErrConflict)
	}
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("insert job: %w", db.ErrConflict)
	}

	now := m.now()
	job.CreatedAt = now
	job.UpdatedAt = now
	m.jobs[job.ID] = job.Clone()
	m.byKey[idx] = job.ID
	return nil
}

func (m *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", id, db.ErrNotFound)
	}
	return job.Clone(), nil
}

func (m *MemoryStore) GetJobByIdempotencyKey(ctx context.Context, userID, key string) (*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[idempotencyIndex(userID, key)]
	if !ok {
		return nil, fmt.Errorf("job for key %q: %w", key, db.ErrNotFound)
	}
	return m.jobs[id].Clone(), nil
}

func (m *MemoryStore) ListJobsByUser(ctx context.Context, userID string, limit, offset int) ([]*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var owned []*db.Job
	for _, job := range m.jobs {
		if job.UserID == userID {
			owned = append(owned, job)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	if offset >= len(owned) {
		return nil, nil
	}
	end := min(offset+limit, len(owned))

	out := make([]*db.Job, 0, end-offset)
	for _, job := range owned[offset:end] {
		out = append(out, job.Clone())
	}
	return out, nil
}

func (m *MemoryStore) UpdateJob(ctx context.Context, job *db.Job, expectedStatus string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[job.ID]
	if !ok || stored.Status != expectedStatus {
		return fmt.Errorf("update job %s: %w", job.ID, db.ErrConflict)
	}

	updated := stored.Clone()
	fresh := job.Clone()
	updated.Status = fresh.Status
	updated.Progress = fresh.Progress
	updated.PreviewURL = fresh.PreviewURL
	updated.FinalURLs = fresh.FinalURLs
	updated.ErrorMessage = fresh.ErrorMessage
	updated.UpdatedAt = m.now()

	m.jobs[job.ID] = updated
	job.UpdatedAt = updated.UpdatedAt
	return nil
}

func (m *MemoryStore) ClaimDispatchable(ctx context.Context, limit int) ([]*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var ready []*db.Job
	for _, job := range m.jobs {
		if job.Status != db.StatusQueued || job.DispatchedAt != nil {
			continue
		}
		if job.NextDispatchAt != nil && job.NextDispatchAt.After(now) {
			continue
		}
		ready = append(ready, job)
	}
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}

	out := make([]*db.Job, 0, len(ready))
	for _, job := range ready {
		stamp := now
		job.DispatchedAt = &stamp
		job.Attempt++
		job.UpdatedAt = now
		out = append(out, job.Clone())
	}
	return out, nil
}

func (m *MemoryStore) RescheduleDispatch(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[id]
	if !ok || job.Status != db.StatusQueued {
		return fmt.Errorf("reschedule job %s: %w", id, db.ErrConflict)
	}
	next := at
	job.NextDispatchAt = &next
	job.DispatchedAt = nil
	job.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	released := 0
	for _, job := range m.jobs {
		if job.Status != db.StatusQueued || job.DispatchedAt == nil || !job.DispatchedAt.Before(cutoff) {
			continue
		}
		job.DispatchedAt = nil
		job.NextDispatchAt = nil
		job.UpdatedAt = m.now()
		released++
	}
	return released, nil
}

func (m *MemoryStore) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]*db.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var overdue []*db.Job
	for _, job := range m.jobs {
		if job.IsTerminal() || !job.CreatedAt.Before(cutoff) {
			continue
		}
		overdue = append(overdue, job)
	}
	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].CreatedAt.Before(overdue[j].CreatedAt)
	})
	if len(overdue) > limit {
		overdue = overdue[:limit]
	}

	out := make([]*db.Job, 0, len(overdue))
	for _, job := range overdue {
		out = append(out, job.Clone())
	}
	return out, nil
}
