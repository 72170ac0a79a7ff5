package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sequence(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestSimulator_TickRespectsChance(t *testing.T) {
	c := NewCenter()
	ctx := context.Background()
	_, _ = c.List(ctx, "a", 0, 0)
	_, _ = c.List(ctx, "b", 0, 0)

	sim := NewSimulator(c, SimulatorConfig{Chance: 0.2}, zap.NewNop())
	// a: 0.1 < 0.2 hits, template roll 0.0; b: 0.9 misses.
	sim.roll = sequence(0.1, 0.0, 0.9)

	added := sim.Tick(ctx)
	assert.Equal(t, 1, added)

	listA, _ := c.List(ctx, "a", 0, 0)
	require.Len(t, listA, 1)
	assert.Equal(t, simulatedTemplates[0].Type, listA[0].Type)
	assert.False(t, listA[0].IsRead)

	listB, _ := c.List(ctx, "b", 0, 0)
	assert.Empty(t, listB)
}

func TestSimulator_TemplateIndexClamped(t *testing.T) {
	c := NewCenter()
	ctx := context.Background()
	_, _ = c.List(ctx, "a", 0, 0)

	sim := NewSimulator(c, SimulatorConfig{Chance: 1}, zap.NewNop())
	sim.roll = sequence(0.0, 0.99999999)

	require.Equal(t, 1, sim.Tick(ctx))
	list, _ := c.List(ctx, "a", 0, 0)
	assert.Equal(t, simulatedTemplates[len(simulatedTemplates)-1].Type, list[0].Type)
}

func TestSimulator_NoUsersNoWork(t *testing.T) {
	sim := NewSimulator(NewCenter(), SimulatorConfig{Chance: 1}, zap.NewNop())
	assert.Zero(t, sim.Tick(context.Background()))
}

func TestSimulator_RunStopsOnCancel(t *testing.T) {
	sim := NewSimulator(NewCenter(), SimulatorConfig{Tick: time.Millisecond}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		sim.Run(ctx)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("simulator did not stop after cancel")
	}
}
