// Package grpc serves the standard gRPC health service of the store next to the
// HTTP health endpoints.
package grpc

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/turtacn/authstore/internal/interfaces/http/handlers"
	"github.com/turtacn/authstore/pkg/logger"
)

const (
	defaultHealthInterval = 10 * time.Second
	healthCheckTimeout    = 3 * time.Second
)

// HealthServer keeps the statuses of a grpc health.Server in step with the
// dependency checks behind the HTTP health endpoints. Every dependency is reported
// under its own service name; the empty service name is SERVING only while all of
// them answer.
// HealthServer 依据依赖检查结果维护 gRPC 健康状态。
type HealthServer struct {
	server   *health.Server
	checks   map[string]handlers.Pinger
	interval time.Duration
	log      logger.Logger
}

// NewHealthServer creates a HealthServer. Every status starts as NOT_SERVING until
// the first Refresh.
func NewHealthServer(checks map[string]handlers.Pinger, interval time.Duration, log logger.Logger) *HealthServer {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	h := &HealthServer{
		server:   health.NewServer(),
		checks:   checks,
		interval: interval,
		log:      log.WithComponent("grpc_health"),
	}
	h.server.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for name := range checks {
		h.server.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return h
}

// Server returns the health service implementation to register.
func (h *HealthServer) Server() healthpb.HealthServer { return h.server }

// Refresh pings every dependency concurrently and publishes the results.
func (h *HealthServer) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var mu sync.Mutex
	healthy := true
	var g errgroup.Group
	for name, check := range h.checks {
		g.Go(func() error {
			st := healthpb.HealthCheckResponse_SERVING
			if err := check.Ping(ctx); err != nil {
				st = healthpb.HealthCheckResponse_NOT_SERVING
				h.log.Warn(ctx, "Health check failed", logger.String("dependency", name), logger.Err(err))
			}
			h.server.SetServingStatus(name, st)
			if st != healthpb.HealthCheckResponse_SERVING {
				mu.Lock()
				healthy = false
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	overall := healthpb.HealthCheckResponse_SERVING
	if !healthy {
		overall = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.server.SetServingStatus("", overall)
}

// Run refreshes the statuses every interval until ctx is done, then marks every
// service NOT_SERVING for good.
func (h *HealthServer) Run(ctx context.Context) {
	h.Refresh(ctx)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Refresh(ctx)
		}
	}
}
