package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
)

// WebhookProvider posts jobs to an external generation endpoint. The
// endpoint reports back through the job callback URL.
type WebhookProvider struct {
	client *http.Client
	config WebhookConfig
	logger *zap.Logger
}

type WebhookConfig struct {
	URL             string
	Timeout         time.Duration
	CallbackBaseURL string // public base of this gateway, e.g. https://api.clipforge.dev
	CallbackSecret  string
	Modules         []string // empty means every module
}

// submission is the body sent to the generation endpoint.
type submission struct {
	JobID         string          `json:"job_id"`
	Module        string          `json:"module"`
	Params        json.RawMessage `json:"params"`
	CallbackURL   string          `json:"callback_url"`
	CallbackToken string          `json:"callback_token,omitempty"`
}

func NewWebhookProvider(cfg WebhookConfig, logger *zap.Logger) *WebhookProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &WebhookProvider{
		client: &http.Client{Timeout: cfg.Timeout},
		config: cfg,
		logger: logger,
	}
}

// CallbackURL is where the provider reports status for job id.
func (p *WebhookProvider) CallbackURL(id string) string {
	return strings.TrimRight(p.config.CallbackBaseURL, "/") + "/v1/jobs/" + id + "/callback"
}

func (p *WebhookProvider) Submit(ctx context.Context, job *db.Job) error {
	if p.config.URL == "" {
		return fmt.Errorf("webhook provider has no url configured")
	}

	body, err := json.Marshal(submission{
		JobID:         job.ID.String(),
		Module:        job.Module,
		Params:        job.Params,
		CallbackURL:   p.CallbackURL(job.ID.String()),
		CallbackToken: p.config.CallbackSecret,
	})
	if err != nil {
		return fmt.Errorf("failed to encode submission: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "ClipForge/1.0.0")
	req.Header.Set("X-ClipForge-Job-ID", job.ID.String())
	req.Header.Set("X-ClipForge-Attempt", fmt.Sprint(job.Attempt))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider returned non-2xx status: %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	p.logger.Info("job accepted by provider",
		zap.String("job_id", job.ID.String()),
		zap.String("url", p.config.URL),
		zap.Int("status_code", resp.StatusCode),
	)
	return nil
}

func (p *WebhookProvider) SupportsModule(module string) bool {
	if len(p.config.Modules) == 0 {
		return true
	}
	for _, m := range p.config.Modules {
		if m == module {
			return true
		}
	}
	return false
}
