package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/heartlink-app/pulse/internal/bus"
	"github.com/heartlink-app/pulse/internal/connstate"
	"github.com/heartlink-app/pulse/internal/session"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health-service name the daemon reports under.
const ServiceName = "pulse.daemon"

// Server exposes the daemon's control socket: a gRPC endpoint on the
// session's Unix domain socket whose health status mirrors the realtime
// connection state.
type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
	unsub      func()
}

// NewServer creates the control server bound to the session's socket and
// subscribes it to connection-state changes.
func NewServer(p Params, b *bus.Bus, logger *zap.Logger) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = session.SocketPath(p.SessionName)
	}

	// Clean stale socket if it exists.
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	s := &Server{
		grpcServer: srv,
		health:     hs,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}
	s.unsub = b.Subscribe(bus.ConnStateChanged, s.onStateChange)
	return s, nil
}

func (s *Server) onStateChange(evt bus.Event) {
	change, ok := evt.Payload.(connstate.StateChange)
	if !ok {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if change.To == connstate.Connected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, status)
}

// Start begins serving control requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("control server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop performs a graceful shutdown and removes the socket file.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("control server stopping")
	s.unsub()
	s.grpcServer.GracefulStop()
	_ = os.Remove(s.socketPath)
}
