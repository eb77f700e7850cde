package grpc

import (
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/weiawesome/wes-io-chat/internal/persistence"
	"github.com/weiawesome/wes-io-chat/pkg/log"
)

// PersistenceService is the health service name that follows the
// persistence gateway mode.
const PersistenceService = "chat.persistence"

// Health reports the process as serving and the persistence service as
// serving only while writes go straight to storage.
type Health struct {
	srv *health.Server
}

func NewHealth() *Health {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	srv.SetServingStatus(PersistenceService, healthpb.HealthCheckResponse_SERVING)
	return &Health{srv: srv}
}

// OnModeChange matches persistence.Gateway.OnModeChange.
func (h *Health) OnModeChange(from, to persistence.Mode) {
	h.SetMode(to)
}

func (h *Health) SetMode(mode persistence.Mode) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if mode == persistence.Normal {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.srv.SetServingStatus(PersistenceService, status)
}

// Shutdown marks every service NOT_SERVING.
func (h *Health) Shutdown() {
	h.srv.Shutdown()
}

func NewServer(h *Health, logger zerolog.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.UnaryInterceptor(log.UnaryServerInterceptor(logger)),
		grpc.StreamInterceptor(log.StreamServerInterceptor(logger)),
	)
	healthpb.RegisterHealthServer(s, h.srv)
	return s
}

func StartGRPCServer(addr string, h *Health, logger zerolog.Logger) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := NewServer(h, logger)

	go func() {
		l := log.L()
		l.Info().Str("address", addr).Msg("chat grpc server listening")
		if err := s.Serve(lis); err != nil {
			l.Error().Err(err).Msg("grpc server error")
		}
	}()

	return s, nil
}
