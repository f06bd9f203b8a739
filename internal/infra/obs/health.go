package obs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Check reports whether a dependency is usable.
type Check func(ctx context.Context) error

// Health aggregates readiness checks. Results are cached between Refresh
// calls so probes stay cheap.
type Health struct {
	Timeout time.Duration
	Logger  *slog.Logger

	mu      sync.RWMutex
	checks  map[string]Check
	last    map[string]error
	checked bool
	grpc    *health.Server
}

func NewHealth(timeout time.Duration, logger *slog.Logger) *Health {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Health{Timeout: timeout, Logger: logger, checks: map[string]Check{}, last: map[string]error{}}
}

// Register adds a named check. Nil checks are ignored.
func (h *Health) Register(name string, check Check) {
	if check == nil {
		return
	}
	h.mu.Lock()
	h.checks[name] = check
	h.checked = false
	h.mu.Unlock()
}

// Refresh runs every check and records the outcome.
func (h *Health) Refresh(ctx context.Context) error {
	h.mu.RLock()
	checks := make(map[string]Check, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	results := make(map[string]error, len(checks))
	for name, c := range checks {
		cctx, cancel := context.WithTimeout(ctx, h.Timeout)
		err := c(cctx)
		cancel()
		results[name] = err
		if err != nil && h.Logger != nil {
			h.Logger.Warn("health check failed", "check", name, "err", err)
		}
	}

	h.mu.Lock()
	h.last = results
	h.checked = true
	srv := h.grpc
	h.mu.Unlock()

	err := joinResults(results)
	if srv != nil {
		status := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus("", status)
	}
	return err
}

// Ready returns the cached result, running the checks on first use.
func (h *Health) Ready(ctx context.Context) error {
	h.mu.RLock()
	checked, last := h.checked, h.last
	h.mu.RUnlock()
	if !checked {
		return h.Refresh(ctx)
	}
	return joinResults(last)
}

func joinResults(results map[string]error) error {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err := results[name]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Health) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h *Health) Readyz(c *gin.Context) {
	if err := h.Ready(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// ServeGRPC exposes the standard grpc.health.v1 service on addr until ctx is
// done. Its status follows Refresh.
func (h *Health) ServeGRPC(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("obs: listen %s: %w", addr, err)
	}
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	h.mu.Lock()
	h.grpc = hs
	h.mu.Unlock()
	if err := h.Refresh(ctx); err != nil {
		hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}

	go func() {
		<-ctx.Done()
		hs.Shutdown()
		srv.GracefulStop()
	}()
	if h.Logger != nil {
		h.Logger.Info("grpc health listening", "addr", addr)
	}
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
