package notify

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/metrics"
)

// Target is what the simulator writes into.
type Target interface {
	Users() []string
	Add(ctx context.Context, n *db.Notification) error
}

type SimulatorConfig struct {
	Tick   time.Duration
	Chance float64 // per user, per tick
}

// Simulator occasionally synthesizes a notification for each known user,
// so the notification bell has something new to show in demos.
type Simulator struct {
	target Target
	config SimulatorConfig
	roll   func() float64
	now    func() time.Time
	logger *zap.Logger
}

func NewSimulator(target Target, cfg SimulatorConfig, logger *zap.Logger) *Simulator {
	if cfg.Tick == 0 {
		cfg.Tick = 30 * time.Second
	}
	if cfg.Chance <= 0 {
		cfg.Chance = 0.1
	}
	return &Simulator{
		target: target,
		config: cfg,
		roll:   rand.Float64,
		now:    time.Now,
		logger: logger,
	}
}

// Run ticks until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("notification simulator stopping")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick rolls once per user and returns how many notifications were added.
func (s *Simulator) Tick(ctx context.Context) int {
	added := 0
	for _, userID := range s.target.Users() {
		if s.roll() >= s.config.Chance {
			continue
		}

		idx := int(s.roll() * float64(len(simulatedTemplates)))
		idx = min(idx, len(simulatedTemplates)-1)
		n := simulatedTemplates[idx].build(userID, s.now())

		if err := s.target.Add(ctx, n); err != nil {
			s.logger.Warn("failed to add simulated notification",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		metrics.RecordNotificationCreated(n.Type)
		added++
	}
	return added
}
