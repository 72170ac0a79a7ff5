package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/jobs"
)

// Updater applies status reports to jobs; jobs.Service implements it.
type Updater interface {
	Apply(ctx context.Context, id uuid.UUID, u jobs.Update) (*db.Job, error)
}

type SimulatedConfig struct {
	Step        time.Duration // pause between progress reports
	FailureRate float64       // 0..1
	MediaBase   string
}

var simulatedFailures = []string{
	"Content policy violation: the prompt was flagged by the safety filter.",
	"The source image could not be processed. Try a different image.",
	"Generation timed out. Please try again.",
}

// SimulatedProvider plays a provider locally: it walks each job through
// processing with a preview and then completes it with sample media.
type SimulatedProvider struct {
	updater Updater
	config  SimulatedConfig
	roll    func() float64
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewSimulatedProvider(updater Updater, cfg SimulatedConfig, logger *zap.Logger) *SimulatedProvider {
	if cfg.Step == 0 {
		cfg.Step = 2 * time.Second
	}
	if cfg.MediaBase == "" {
		cfg.MediaBase = "https://cdn.clipforge.dev/samples"
	}
	return &SimulatedProvider{
		updater: updater,
		config:  cfg,
		roll:    rand.Float64,
		logger:  logger,
	}
}

func (p *SimulatedProvider) SupportsModule(module string) bool {
	for _, m := range jobs.Modules() {
		if m == module {
			return true
		}
	}
	return false
}

// Submit accepts the job and runs it in the background. The run outlives
// the caller's cancellation but not the process.
func (p *SimulatedProvider) Submit(ctx context.Context, job *db.Job) error {
	if !p.SupportsModule(job.Module) {
		return fmt.Errorf("simulated provider does not support module: %s", job.Module)
	}
	fail := p.roll() < p.config.FailureRate
	failure := simulatedFailures[min(int(p.roll()*float64(len(simulatedFailures))), len(simulatedFailures)-1)]

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(context.WithoutCancel(ctx), job.Clone(), fail, failure)
	}()
	return nil
}

// Wait blocks until every submitted job finished its run.
func (p *SimulatedProvider) Wait() {
	p.wg.Wait()
}

func (p *SimulatedProvider) run(ctx context.Context, job *db.Job, fail bool, failure string) {
	progress := func(v int) *int { return &v }
	preview := p.previewURL(job)

	steps := []jobs.Update{
		{Status: db.StatusProcessing, Progress: progress(5)},
		{Progress: progress(35)},
		{Progress: progress(60), PreviewURL: &preview},
		{Progress: progress(85)},
	}
	if fail {
		steps = steps[:2]
	}

	for _, u := range steps {
		if !p.apply(ctx, job.ID, u) {
			return
		}
		time.Sleep(p.config.Step)
	}

	if fail {
		p.apply(ctx, job.ID, jobs.Update{Status: db.StatusFailed, ErrorMessage: &failure})
		return
	}
	p.apply(ctx, job.ID, jobs.Update{Status: db.StatusCompleted, FinalURLs: p.finalURLs(job)})
}

func (p *SimulatedProvider) apply(ctx context.Context, id uuid.UUID, u jobs.Update) bool {
	if _, err := p.updater.Apply(ctx, id, u); err != nil {
		p.logger.Warn("simulated provider update rejected",
			zap.String("job_id", id.String()),
			zap.String("status", u.Status),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (p *SimulatedProvider) media(name string) string {
	return strings.TrimRight(p.config.MediaBase, "/") + "/" + name
}

func (p *SimulatedProvider) previewURL(job *db.Job) string {
	switch job.Module {
	case db.ModuleTextToSpeech:
		return p.media("speech-waveform.png")
	case db.ModuleImage:
		return p.media("image-preview.jpg")
	default:
		return p.media("video-preview.jpg")
	}
}

func (p *SimulatedProvider) finalURLs(job *db.Job) []string {
	switch job.Module {
	case db.ModuleImage:
		var params jobs.ImageParams
		_ = json.Unmarshal(job.Params, &params)
		count := max(params.Count, 1)
		urls := make([]string, 0, count)
		for i := 1; i <= count; i++ {
			urls = append(urls, p.media(fmt.Sprintf("image-%d.jpg", i)))
		}
		return urls
	case db.ModuleTextToSpeech:
		return []string{p.media("speech.mp3")}
	case db.ModuleImageToVideo:
		var params jobs.ImageToVideoParams
		_ = json.Unmarshal(job.Params, &params)
		return []string{p.media(fmt.Sprintf("image-to-video-%ds.mp4", max(params.Duration, 5)))}
	default:
		return []string{p.media(job.Module + ".mp4")}
	}
}
