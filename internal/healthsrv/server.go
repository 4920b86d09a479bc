// Package healthsrv exposes Coordinator liveness over the standard
// grpc.health.v1 service, polling the Coordinator's own serialized state
// through its actor reference rather than reaching into it directly.
package healthsrv

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wasmind-run/fabric/internal/baselib/actor"
	"github.com/wasmind-run/fabric/internal/coordinator"
)

// PollInterval is how often liveness is re-checked and republished to the
// underlying grpc.health.v1 service.
const PollInterval = 5 * time.Second

// ServiceName is the health-checked service name external probes and
// fabricctl query against.
const ServiceName = "fabric.Coordinator"

// Server wraps google.golang.org/grpc/health's reference implementation,
// keeping its serving status in sync with the Coordinator's own liveness
// reporting.
type Server struct {
	health *health.Server
	coord  actor.ActorRef[coordinator.CoordinatorCommand, coordinator.CoordinatorResult]

	cancel context.CancelFunc
}

// New wraps coord, starting in NOT_SERVING until the first successful poll.
func New(
	coord actor.ActorRef[coordinator.CoordinatorCommand, coordinator.CoordinatorResult],
) *Server {

	h := health.NewServer()
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &Server{health: h, coord: coord}
}

// Register wires the health service into a gRPC server.
func (s *Server) Register(grpcServer *grpc.Server) {
	healthpb.RegisterHealthServer(grpcServer, s.health)
}

// Start begins polling the Coordinator's liveness on PollInterval until ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.poll(ctx)
}

// Stop halts the polling loop. It does not close the underlying gRPC server.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Server) poll(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	s.checkOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkOnce(ctx)
		}
	}
}

func (s *Server) checkOnce(ctx context.Context) {
	result, err := s.coord.Ask(ctx, coordinator.LivenessCmd{}).Await(ctx).Unpack()
	if err != nil {
		log.WarnS(ctx, "liveness check failed", "err", err)
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}

	live, ok := result.(coordinator.LivenessResult)
	if !ok || !live.Alive {
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}

	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}
