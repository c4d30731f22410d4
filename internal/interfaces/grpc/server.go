package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/turtacn/authstore/internal/config"
	"github.com/turtacn/authstore/internal/interfaces/http/handlers"
	"github.com/turtacn/authstore/pkg/logger"
)

// Server is the gRPC listener of the store. It serves grpc.health.v1.Health and
// server reflection behind the recovery and logging interceptors.
// Server 是存储服务的 gRPC 服务端。
type Server struct {
	server *grpc.Server
	health *HealthServer
	addr   string
	log    logger.Logger
}

// NewServer creates the gRPC server over the named dependency checks.
func NewServer(cfg config.ServerConfig, checks map[string]handlers.Pinger, log logger.Logger) *Server {
	chain := NewInterceptorChain(log)
	s := grpc.NewServer(chain.ServerOptions()...)
	h := NewHealthServer(checks, cfg.HealthInterval, log)
	healthpb.RegisterHealthServer(s, h.Server())
	reflection.Register(s)
	return &Server{server: s, health: h, addr: cfg.GRPCAddress(), log: log.WithComponent("grpc_server")}
}

// Health returns the health status publisher of the server.
func (s *Server) Health() *HealthServer { return s.health }

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve serves on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.log.Info(context.Background(), "gRPC server listening", logger.String("address", lis.Addr().String()))
	return s.server.Serve(lis)
}

// Stop drains in-flight calls, forcing the remaining ones closed once ctx is done.
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.server.Stop()
		<-done
	}
}
