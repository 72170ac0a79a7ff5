package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
)

// Provider hands a claimed job to a generation backend. A nil error means
// the backend accepted the job and will report progress on its own.
// Implementations: SimulatedProvider, WebhookProvider
type Provider interface {
	Submit(ctx context.Context, job *db.Job) error
	SupportsModule(module string) bool
}

// MultiProvider routes jobs to the first provider that supports the module
type MultiProvider struct {
	providers []Provider
	logger    *zap.Logger
}

func NewMultiProvider(logger *zap.Logger, providers ...Provider) *MultiProvider {
	return &MultiProvider{
		providers: providers,
		logger:    logger,
	}
}

func (m *MultiProvider) Submit(ctx context.Context, job *db.Job) error {
	for _, p := range m.providers {
		if p.SupportsModule(job.Module) {
			m.logger.Debug("routing job to provider",
				zap.String("module", job.Module),
				zap.String("job_id", job.ID.String()),
			)
			return p.Submit(ctx, job)
		}
	}
	return fmt.Errorf("no provider found for module: %s", job.Module)
}

func (m *MultiProvider) SupportsModule(module string) bool {
	for _, p := range m.providers {
		if p.SupportsModule(module) {
			return true
		}
	}
	return false
}
