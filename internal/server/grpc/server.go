// Package grpc exposes SyncService over gRPC: the JSON-coded sync service,
// an access-token interceptor and the standard health service.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/financehub/internal/logging"
	pb "github.com/dmitrijs2005/financehub/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// SyncApplier applies pushed batches and serves deltas for one user.
type SyncApplier interface {
	ApplyBatch(ctx context.Context, userID string, req *pb.BatchSyncRequest) (*pb.BatchSyncResponse, error)
	PullDelta(ctx context.Context, userID string, since int64) (*pb.PullDeltaResponse, error)
}

// BackupPresigner hands out presigned backup transfer URLs.
type BackupPresigner interface {
	UploadURL(ctx context.Context, userID, deviceID, hash string, size int64) (*pb.BackupUploadURLResponse, error)
	Latest(ctx context.Context, userID, deviceID string) (*pb.LatestBackupResponse, error)
}

type GRPCServer struct {
	pb.UnimplementedSyncServiceServer
	address   string
	sync      SyncApplier
	backups   BackupPresigner
	logger    logging.Logger
	jwtSecret []byte
	now       func() time.Time
}

func NewGRPCServer(a string, l logging.Logger, sync SyncApplier, backups BackupPresigner, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		sync:      sync,
		backups:   backups,
		jwtSecret: []byte(secretKey),
		now:       time.Now,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	pb.RegisterSyncServiceServer(srv, s)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus(pb.ServiceName, healthpb.HealthCheckResponse_SERVING)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		hs.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped
	return nil
}
