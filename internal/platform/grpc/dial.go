// Package grpc carries the client-side dial helpers shared by processes
// that depend on a peer service: plaintext in-cluster credentials, otel
// stats propagation, and a startup gate on the standard health service.
package grpc

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dialer establishes a client connection. Tests substitute one to observe
// dial behavior without a live endpoint.
type Dialer func(ctx context.Context, addr string, opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error)

// DefaultClientDialOptions returns the dial options every in-cluster client
// uses: plaintext transport and an otel stats handler so outbound calls
// carry trace context once a TracerProvider is registered.
func DefaultClientDialOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
		gogrpc.WithBlock(),
		gogrpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
}

// DialWithHealth connects to addr and blocks until the peer's health
// service reports SERVING, so a dependent process never starts work against
// a peer that is still migrating its store. The whole gate runs under
// dialTimeout when it is positive. A nil dial uses the standard dialer and
// a nil logf discards progress lines.
func DialWithHealth(ctx context.Context, dial Dialer, addr string, dialTimeout time.Duration, logf func(string, ...any), opts ...gogrpc.DialOption) (*gogrpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if dial == nil {
		dial = gogrpc.DialContext
	}

	gateCtx := ctx
	if dialTimeout > 0 {
		var cancel context.CancelFunc
		gateCtx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}

	conn, err := dial(gateCtx, addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if err := WaitForHealth(gateCtx, conn, "", logf); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("health gate %s: %w", addr, err)
	}
	return conn, nil
}
