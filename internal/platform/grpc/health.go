package grpc

import (
	"context"
	"fmt"
	"time"

	gogrpc "google.golang.org/grpc"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	healthPollInterval = 250 * time.Millisecond
	healthCheckTimeout = time.Second
)

// WaitForHealth polls the peer's standard health service until it reports
// SERVING for service, or ctx ends. Failed checks are polled through rather
// than surfaced; the caller bounds the wait through ctx.
func WaitForHealth(ctx context.Context, conn *gogrpc.ClientConn, service string, logf func(string, ...any)) error {
	if conn == nil {
		return fmt.Errorf("grpc connection is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := grpc_health_v1.NewHealthClient(conn)
	for {
		callCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		response, err := client.Check(callCtx, &grpc_health_v1.HealthCheckRequest{Service: service})
		cancel()
		if err == nil && response.GetStatus() == grpc_health_v1.HealthCheckResponse_SERVING {
			return nil
		}
		if logf != nil {
			if err != nil {
				logf("health not ready: %v", err)
			} else {
				logf("health not ready: %s", response.GetStatus())
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for serving: %w", ctx.Err())
		case <-time.After(healthPollInterval):
		}
	}
}
