package healthsrv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wasmind-run/fabric/internal/bus"
	"github.com/wasmind-run/fabric/internal/coordinator"
	"github.com/wasmind-run/fabric/internal/fabscope"
	"github.com/wasmind-run/fabric/internal/resolve"
)

func TestServerChecksOnceReportsServing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := coordinator.NewCoordinator(
		map[string]resolve.ResolvedActor{}, nil, bus.New(8), fabscope.NewTree(),
	)
	ref := c.Start(ctx)

	s := New(ref)
	s.checkOnce(ctx)

	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}

func TestServerStartStopPollsAtLeastOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := coordinator.NewCoordinator(
		map[string]resolve.ResolvedActor{}, nil, bus.New(8), fabscope.NewTree(),
	)
	ref := c.Start(ctx)

	s := New(ref)
	s.Start(ctx)
	defer s.Stop()

	require.Eventually(t, func() bool {
		resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)
}
