// Package client is a small Go SDK for the clipforge /v1 API. It is what
// clipctl and the tool Session use to create jobs and follow them to a
// terminal status.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Job statuses as reported by the API.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var (
	// ErrWaitTimeout is returned when a job does not finish within the
	// configured maximum wait.
	ErrWaitTimeout = errors.New("timed out waiting for job")

	errJobPending = errors.New("job not finished")
)

// Job is the status snapshot returned by GET /v1/jobs/{id}.
type Job struct {
	ID           string          `json:"id"`
	Module       string          `json:"module"`
	Params       json.RawMessage `json:"params,omitempty"`
	Status       string          `json:"status"`
	Progress     *int            `json:"progress,omitempty"`
	PreviewURL   *string         `json:"preview_url,omitempty"`
	FinalURLs    []string        `json:"final_urls,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// CreateJobRequest describes a generation request.
type CreateJobRequest struct {
	Module string          `json:"module"`
	Params json.RawMessage `json:"params"`
	// IdempotencyKey is generated when empty. Reuse it to retry safely.
	IdempotencyKey string `json:"-"`
}

// CreateJobResult is returned by CreateJob.
type CreateJobResult struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	IdempotencyKey string `json:"-"`
	Replayed       bool   `json:"-"`
}

// APIError is a problem+json error returned by the gateway.
type APIError struct {
	StatusCode int    `json:"status"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Detail     string `json:"detail,omitempty"`
}

func (e *APIError) Error() string {
	msg := e.Title
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return fmt.Sprintf("clipforge: %d %s", e.StatusCode, msg)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// WaitConfig bounds WaitForJob.
type WaitConfig struct {
	InitialInterval time.Duration // default 1s
	MaxInterval     time.Duration // default 10s
	MaxWait         time.Duration // default 10m
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	wait       WaitConfig
	newKey     func() string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithWaitConfig(w WaitConfig) Option {
	return func(c *Client) { c.wait = w }
}

// New creates a client for baseURL authenticating with a bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		newKey:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.wait.InitialInterval <= 0 {
		c.wait.InitialInterval = time.Second
	}
	if c.wait.MaxInterval <= 0 {
		c.wait.MaxInterval = 10 * time.Second
	}
	if c.wait.MaxWait <= 0 {
		c.wait.MaxWait = 10 * time.Minute
	}
	return c
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// do sends req and decodes a JSON body into out. Non-2xx answers become
// *APIError.
func (c *Client) do(req *http.Request, out any) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, decodeError(resp)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Title == "" {
		apiErr.Title = strings.TrimSpace(string(data))
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}

// CreateJob submits a job. A missing idempotency key is generated and
// returned so callers can retry without creating a duplicate.
func (c *Client) CreateJob(ctx context.Context, in CreateJobRequest) (*CreateJobResult, error) {
	key := in.IdempotencyKey
	if key == "" {
		key = c.newKey()
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/jobs", in)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Idempotency-Key", key)

	var out CreateJobResult
	resp, err := c.do(req, &out)
	if err != nil {
		return nil, err
	}
	out.IdempotencyKey = key
	out.Replayed = resp.Header.Get("X-Idempotency-Replayed") == "true"
	return &out, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	var job Job
	if _, err := c.do(req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) ListJobs(ctx context.Context, limit, offset int) ([]Job, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Data []Job `json:"data"`
	}
	if _, err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// WaitForJob polls id with exponential backoff until the job is completed
// or failed, ctx is cancelled, or the maximum wait elapses. onUpdate, if
// set, sees every snapshot whose status or progress changed. The backoff
// restarts from the initial interval whenever the job makes progress.
func (c *Client) WaitForJob(ctx context.Context, id string, onUpdate func(*Job)) (*Job, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.wait.InitialInterval
	b.MaxInterval = c.wait.MaxInterval

	var last *Job
	op := func() (*Job, error) {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.Temporary() {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if changed(last, job) {
			if last != nil {
				b.Reset()
			}
			last = job
			if onUpdate != nil {
				onUpdate(job)
			}
		}
		if job.IsTerminal() {
			return job, nil
		}
		return nil, errJobPending
	}

	job, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(c.wait.MaxWait),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return last, ctxErr
		}
		if errors.Is(err, errJobPending) {
			return last, fmt.Errorf("%w %s after %s", ErrWaitTimeout, id, c.wait.MaxWait)
		}
		return last, err
	}
	return job, nil
}

func changed(prev, next *Job) bool {
	if prev == nil {
		return true
	}
	if prev.Status != next.Status {
		return true
	}
	return progressOf(prev) != progressOf(next)
}

func progressOf(j *Job) int {
	if j.Progress == nil {
		return -1
	}
	return *j.Progress
}

// Chat sends one user message and copies the revealed reply to w as it
// arrives.
func (c *Client) Chat(ctx context.Context, message string, w io.Writer) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/chat", map[string]string{"message": message})
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST /v1/chat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("read chat reply: %w", err)
	}
	return nil
}
