package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
)

// Provider mirrors worker.Provider so the worker package stays free of
// breaker imports.
type Provider interface {
	Submit(ctx context.Context, job *db.Job) error
	SupportsModule(module string) bool
}

// ProtectedProvider wraps a generation provider with a CircuitBreaker.
// While the breaker is open, Submit returns ErrCircuitOpen without calling
// the provider, and the dispatcher reschedules the job.
type ProtectedProvider struct {
	provider Provider
	breaker  *CircuitBreaker
	logger   *zap.Logger
}

func NewProtectedProvider(provider Provider, breaker *CircuitBreaker, logger *zap.Logger) *ProtectedProvider {
	return &ProtectedProvider{
		provider: provider,
		breaker:  breaker,
		logger:   logger,
	}
}

func (p *ProtectedProvider) Submit(ctx context.Context, job *db.Job) error {
	if !p.breaker.Allow() {
		p.logger.Warn("circuit breaker rejected submission",
			zap.String("breaker", p.breaker.Name()),
			zap.String("job_id", job.ID.String()),
			zap.String("module", job.Module),
			zap.String("state", p.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: %s provider unavailable", ErrCircuitOpen, p.breaker.Name())
	}

	if err := p.provider.Submit(ctx, job); err != nil {
		p.breaker.RecordFailure()
		p.logger.Debug("circuit breaker recorded failure",
			zap.String("breaker", p.breaker.Name()),
			zap.Error(err),
		)
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

func (p *ProtectedProvider) SupportsModule(module string) bool {
	return p.provider.SupportsModule(module)
}

// Breaker exposes the breaker for /health.
func (p *ProtectedProvider) Breaker() *CircuitBreaker {
	return p.breaker
}
