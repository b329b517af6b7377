package health

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// FaceService is the gRPC health service name reporting face API reachability.
const FaceService = "faceflow.FaceService"

// Pinger checks a dependency. faceclient.Client satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the last probe outcome.
type Status struct {
	Serving   bool      `json:"serving"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Monitor probes the face service on an interval and publishes the result
// through the standard gRPC health service.
type Monitor struct {
	pinger   Pinger
	server   *health.Server
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	mu   sync.RWMutex
	last Status
}

// NewMonitor returns a monitor reporting NOT_SERVING until the first probe.
func NewMonitor(pinger Pinger, interval time.Duration, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	srv := health.NewServer()
	srv.SetServingStatus(FaceService, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Monitor{
		pinger:   pinger,
		server:   srv,
		interval: interval,
		timeout:  5 * time.Second,
		logger:   logger.Named("health"),
	}
}

// Check probes once and records the outcome.
func (m *Monitor) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	st := Status{Serving: true, CheckedAt: time.Now().UTC()}
	if err := m.pinger.Ping(ctx); err != nil {
		st.Serving = false
		st.Error = err.Error()
	}

	m.mu.Lock()
	changed := m.last.CheckedAt.IsZero() || m.last.Serving != st.Serving
	m.last = st
	m.mu.Unlock()

	if st.Serving {
		m.server.SetServingStatus(FaceService, healthpb.HealthCheckResponse_SERVING)
	} else {
		m.server.SetServingStatus(FaceService, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if changed {
		m.logger.Info("face service health changed", zap.Bool("serving", st.Serving), zap.String("error", st.Error))
	}
	return st
}

// Status returns the last probe outcome.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Run probes until ctx is done, then marks every service NOT_SERVING.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	m.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			m.server.Shutdown()
			return nil
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Register attaches the health service to s.
func (m *Monitor) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, m.server)
}

// Serve runs a gRPC server exposing the health service on lis until ctx is done.
func (m *Monitor) Serve(ctx context.Context, lis net.Listener) error {
	s := grpc.NewServer()
	m.Register(s)
	go func() {
		<-ctx.Done()
		s.GracefulStop()
	}()
	m.logger.Info("gRPC health listening", zap.String("addr", lis.Addr().String()))
	if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
