package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestProbeCheckerHealthyAfterFirstProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewProbeChecker("store", func(ctx context.Context) error { return nil }, time.Second, zerolog.Nop())
	require.False(t, c.IsHealthy(), "starts unhealthy")

	go c.Start(ctx, 10*time.Millisecond)
	waitFor(t, c.IsHealthy)
}

func TestProbeCheckerReportsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := NewProbeChecker("embedder", func(ctx context.Context) error { return errors.New("down") }, time.Second, zerolog.Nop())
	go c.Start(ctx, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, c.IsHealthy())
}

func TestServiceCheckerAggregates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ok := NewProbeChecker("a", func(ctx context.Context) error { return nil }, time.Second, zerolog.Nop())
	bad := NewProbeChecker("b", func(ctx context.Context) error { return errors.New("down") }, time.Second, zerolog.Nop())
	go ok.Start(ctx, 10*time.Millisecond)
	go bad.Start(ctx, 10*time.Millisecond)

	svc := NewServiceChecker(zerolog.Nop(), ok, bad)
	go svc.Start(ctx, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, svc.IsHealthy())

	healthyOnly := NewServiceChecker(zerolog.Nop(), ok)
	go healthyOnly.Start(ctx, 10*time.Millisecond)
	waitFor(t, healthyOnly.IsHealthy)
}
