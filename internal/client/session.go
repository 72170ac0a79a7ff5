package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrJobInFlight is returned by Submit while the current job is still
// queued or processing.
var ErrJobInFlight = errors.New("a job is already in progress")

// createFailedMessage is shown when a job could not be created at all.
const createFailedMessage = "Could not start the generation. Please try again."

// JobAPI is the part of Client a Session needs.
type JobAPI interface {
	CreateJob(ctx context.Context, in CreateJobRequest) (*CreateJobResult, error)
	WaitForJob(ctx context.Context, id string, onUpdate func(*Job)) (*Job, error)
}

// View is what a tool page renders for its current job.
type View struct {
	Status       string `json:"status,omitempty"`
	Spinner      bool   `json:"spinner"`
	Progress     int    `json:"progress"`
	PreviewURL   string `json:"preview_url,omitempty"`
	MediaURL     string `json:"media_url,omitempty"`
	DownloadURL  string `json:"download_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CanRetry     bool   `json:"can_retry"`
	CanSubmit    bool   `json:"can_submit"`
}

// Session tracks one tool page: at most one job at a time, followed until
// it finishes. It is safe for concurrent use.
type Session struct {
	api    JobAPI
	module string

	mu         sync.Mutex
	job        *Job
	createErr  string
	submitting bool // a CreateJob call is outstanding
}

func NewSession(api JobAPI, module string) *Session {
	return &Session{api: api, module: module}
}

// Submit creates a job for params. If creation fails no job is recorded,
// the view shows an error and nothing is retried automatically.
func (s *Session) Submit(ctx context.Context, params json.RawMessage) (*CreateJobResult, error) {
	s.mu.Lock()
	if s.submitting || (s.job != nil && !s.job.IsTerminal()) {
		s.mu.Unlock()
		return nil, ErrJobInFlight
	}
	s.submitting = true
	s.job = nil
	s.createErr = ""
	s.mu.Unlock()

	res, err := s.api.CreateJob(ctx, CreateJobRequest{Module: s.module, Params: params})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitting = false
	if err != nil {
		s.createErr = createFailedMessage
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Detail != "" {
			s.createErr = apiErr.Detail
		}
		return nil, err
	}
	s.job = &Job{ID: res.ID, Module: s.module, Status: res.Status}
	return res, nil
}

// Follow waits for the current job and keeps the view updated.
func (s *Session) Follow(ctx context.Context) (*Job, error) {
	s.mu.Lock()
	if s.job == nil {
		s.mu.Unlock()
		return nil, errors.New("no job to follow")
	}
	id := s.job.ID
	s.mu.Unlock()

	return s.api.WaitForJob(ctx, id, s.Observe)
}

// Observe records a status snapshot for the current job. Snapshots for
// other jobs are ignored.
func (s *Session) Observe(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.job == nil || s.job.ID != job.ID {
		return
	}
	cp := *job
	s.job = &cp
}

// Reset drops local job state so a new submission is possible.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = nil
	s.createErr = ""
}

// View derives what the page shows from the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.job == nil && s.submitting {
		return View{Spinner: true}
	}
	if s.job == nil {
		return View{
			ErrorMessage: s.createErr,
			CanRetry:     s.createErr != "",
			CanSubmit:    true,
		}
	}

	j := s.job
	v := View{Status: j.Status}
	if j.Progress != nil {
		v.Progress = *j.Progress
	}
	if j.PreviewURL != nil {
		v.PreviewURL = *j.PreviewURL
	}

	switch j.Status {
	case StatusQueued, StatusProcessing:
		v.Spinner = true
	case StatusCompleted:
		if len(j.FinalURLs) > 0 {
			v.MediaURL = j.FinalURLs[0]
			v.DownloadURL = j.FinalURLs[0]
		}
		v.CanSubmit = true
	case StatusFailed:
		if j.ErrorMessage != nil {
			v.ErrorMessage = *j.ErrorMessage
		}
		v.CanRetry = true
		v.CanSubmit = true
	}
	return v
}
