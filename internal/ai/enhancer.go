package ai

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/worker"
)

const enhanceSystemPrompt = `You rewrite prompts for an AI image and video generator.
Keep the user's subject and intent. Add concrete detail about lighting, camera, composition and style.
Return ONLY the rewritten prompt on a single line, under 80 words.`

// TextGenerator is the part of Client the enhancer uses.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// PromptEnhancer wraps a worker.Provider. Jobs whose params ask for
// "enhance_prompt" get their prompt rewritten by the LLM before submission;
// everything else passes through unchanged.
type PromptEnhancer struct {
	inner  worker.Provider
	gen    TextGenerator
	logger *zap.Logger
}

func NewPromptEnhancer(inner worker.Provider, gen TextGenerator, logger *zap.Logger) *PromptEnhancer {
	return &PromptEnhancer{
		inner:  inner,
		gen:    gen,
		logger: logger,
	}
}

type enhanceFields struct {
	Prompt        string `json:"prompt"`
	EnhancePrompt bool   `json:"enhance_prompt"`
}

func (e *PromptEnhancer) Submit(ctx context.Context, job *db.Job) error {
	var f enhanceFields
	if err := json.Unmarshal(job.Params, &f); err != nil || !f.EnhancePrompt || strings.TrimSpace(f.Prompt) == "" {
		return e.inner.Submit(ctx, job)
	}

	enhanced, err := e.gen.GenerateText(ctx, enhanceSystemPrompt, f.Prompt)
	enhanced = strings.TrimSpace(enhanced)
	if err != nil || enhanced == "" {
		// Generation continues with the user's own prompt.
		e.logger.Warn("prompt enhancement failed, submitting original prompt",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
		return e.inner.Submit(ctx, job)
	}

	var params map[string]any
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return e.inner.Submit(ctx, job)
	}
	params["original_prompt"] = f.Prompt
	params["prompt"] = enhanced
	raw, err := json.Marshal(params)
	if err != nil {
		return e.inner.Submit(ctx, job)
	}

	enriched := job.Clone()
	enriched.Params = raw

	e.logger.Info("prompt enhanced",
		zap.String("job_id", job.ID.String()),
		zap.Int("original_length", len(f.Prompt)),
		zap.Int("enhanced_length", len(enhanced)),
	)
	return e.inner.Submit(ctx, enriched)
}

func (e *PromptEnhancer) SupportsModule(module string) bool {
	return e.inner.SupportsModule(module)
}
