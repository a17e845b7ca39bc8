package httpapi

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"hometracker.app/internal/auth"
	"hometracker.app/internal/obs"
)

const healthMethodPrefix = "/grpc.health.v1.Health/"

// GRPCServer exposes the standard health service and authenticates every
// other call with the same bearer tokens as the HTTP API.
type GRPCServer struct {
	health    *health.Server
	readiness readinessChecker
	auth      *auth.Service
	version   string
	log       logrus.FieldLogger
}

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(r readinessChecker, version string, svc *auth.Service) *GRPCServer {
	if r == nil {
		r = ReadyProbe{}
	}
	return &GRPCServer{
		health:    health.NewServer(),
		readiness: r,
		auth:      svc,
		version:   version,
		log:       obs.Logger().WithField("component", "grpc"),
	}
}

// NewServer builds a grpc.Server with the auth interceptors and registers
// the health service on it.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(s.unaryAuth),
		grpc.ChainStreamInterceptor(s.streamAuth),
	}, opts...)
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, s.health)
	return srv
}

// Refresh re-evaluates readiness and publishes it through the health service.
func (s *GRPCServer) Refresh(ctx context.Context) bool {
	st := healthpb.HealthCheckResponse_SERVING
	if err := s.readiness.Check(ctx); err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.log.WithField("error", err.Error()).Warn("not ready")
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(serviceName, st)
	ready := st == healthpb.HealthCheckResponse_SERVING
	obs.SetReady(ready)
	return ready
}

// MonitorReadiness refreshes the health status every interval until ctx ends.
func (s *GRPCServer) MonitorReadiness(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Run serves on addr until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context, addr string) error {
	listen, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := s.NewServer()

	go func() {
		<-ctx.Done()
		s.log.Info("stopping gRPC server")
		srv.GracefulStop()
	}()
	go s.MonitorReadiness(ctx, 10*time.Second)

	s.log.WithFields(logrus.Fields{"address": addr, "version": s.version}).Info("starting gRPC server")
	if err := srv.Serve(listen); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func (s *GRPCServer) authenticate(ctx context.Context, method string) (context.Context, error) {
	if strings.HasPrefix(method, healthMethodPrefix) {
		return ctx, nil
	}
	if s.auth == nil {
		return nil, status.Error(codes.Unauthenticated, "authentication unavailable")
	}
	var header string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("authorization"); len(values) > 0 {
			header = values[0]
		}
	}
	id, err := s.auth.Authenticate(ctx, header)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAuthenticationRequired):
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		case errors.Is(err, auth.ErrInvalidToken):
			return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
		default:
			return nil, status.Error(codes.Internal, "internal error")
		}
	}
	token, _ := auth.BearerToken(header)
	ctx = auth.ContextWithIdentity(ctx, id)
	return auth.ContextWithToken(ctx, token), nil
}

func (s *GRPCServer) unaryAuth(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func (s *GRPCServer) streamAuth(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}
