package grpc

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported for the order engine.
const ServiceName = "stockres.OrderService"

type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	log    *slog.Logger
	gs     *grpc.Server
	health *health.Server
}

func NewServer(log *slog.Logger, opts ...grpc.ServerOption) *Server {
	gs := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Server{log: log, gs: gs, health: hs}
}

// Serve blocks until ctx is canceled, then drains in-flight RPCs.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.gs.Serve(lis)
	}()
	s.log.Info("grpc listening", "addr", lis.Addr().String())

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.gs.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) Run(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// WatchDatabase flips the health status with the result of a periodic ping
// until ctx is canceled.
func (s *Server) WatchDatabase(ctx context.Context, db Pinger, interval time.Duration) error {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		status := healthpb.HealthCheckResponse_SERVING
		if err := db.Ping(pingCtx); err != nil {
			s.log.Warn("database ping failed", "err", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		s.health.SetServingStatus(ServiceName, status)
		s.health.SetServingStatus("", status)
	}

	check()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			check()
		}
	}
}
